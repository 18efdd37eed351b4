package session

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrUnknownCommand is returned for input that names no command.
var ErrUnknownCommand = errors.New("unknown command")

// CommandKind identifies an interactive command.
type CommandKind int

const (
	CmdPlay CommandKind = iota
	CmdPause
	CmdToggle
	CmdStop
	CmdNext
	CmdPrev
	CmdReload
	CmdShuffle
	CmdSeek   // absolute, Arg seconds
	CmdSeekBy // relative, Arg seconds
	CmdRemove // Arg index, -1 for the current track
	CmdClear
	CmdAdd // Path
	CmdList
	CmdStatus
	CmdInfo
	CmdHelp
	CmdQuit
)

// DefaultSeekStep is the distance of a bare "ff" or "rew".
const DefaultSeekStep = 10

// Command is one parsed interactive command.
type Command struct {
	Kind CommandKind
	Arg  int64
	Path string
}

var commandNames = map[string]CommandKind{
	"play":    CmdPlay,
	"resume":  CmdPlay,
	"p":       CmdToggle,
	"toggle":  CmdToggle,
	"pause":   CmdPause,
	"stop":    CmdStop,
	"next":    CmdNext,
	"n":       CmdNext,
	"prev":    CmdPrev,
	"b":       CmdPrev,
	"reload":  CmdReload,
	"shuffle": CmdShuffle,
	"seek":    CmdSeek,
	"ff":      CmdSeekBy,
	"rew":     CmdSeekBy,
	"remove":  CmdRemove,
	"rm":      CmdRemove,
	"clear":   CmdClear,
	"add":     CmdAdd,
	"list":    CmdList,
	"ls":      CmdList,
	"status":  CmdStatus,
	"info":    CmdInfo,
	"help":    CmdHelp,
	"?":       CmdHelp,
	"quit":    CmdQuit,
	"q":       CmdQuit,
	"exit":    CmdQuit,
}

// HelpText lists the interactive commands.
const HelpText = `commands:
  play | resume        start or resume playback
  pause | p | toggle   pause, or toggle pause
  stop                 pause and rewind the current track
  next | n, prev | b   jump to the next or previous track
  reload               restart the current track
  shuffle              shuffle the list and play from the top
  seek <sec>           seek to a position, "seek +30" and "seek -30" are relative
  ff [sec], rew [sec]  seek forward or back (default 10 s)
  remove | rm [n]      remove track n (1-based), or the current track
  clear                remove every track
  add <path>           append a file
  list | ls            show the playlist
  status               show the current track and position
  info                 show the metadata of the current track
  quit | q             exit`

// ParseCommand parses one input line. An empty line toggles pause.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{Kind: CmdToggle}, nil
	}
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	kind, ok := commandNames[strings.ToLower(name)]
	if !ok {
		return Command{}, errors.Wrapf(ErrUnknownCommand, "%q", name)
	}
	cmd := Command{Kind: kind}

	switch kind {
	case CmdSeek:
		if rest == "" {
			return Command{}, errors.New("seek needs a position in seconds")
		}
		n, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return Command{}, errors.Wrapf(err, "invalid position %q", rest)
		}
		if strings.HasPrefix(rest, "+") || strings.HasPrefix(rest, "-") {
			cmd.Kind = CmdSeekBy
		}
		cmd.Arg = n

	case CmdSeekBy:
		step := int64(DefaultSeekStep)
		if rest != "" {
			n, err := strconv.ParseInt(rest, 10, 64)
			if err != nil || n < 0 {
				return Command{}, errors.Newf("invalid step %q", rest)
			}
			step = n
		}
		if strings.EqualFold(name, "rew") {
			step = -step
		}
		cmd.Arg = step

	case CmdRemove:
		cmd.Arg = -1
		if rest != "" {
			n, err := strconv.Atoi(rest)
			if err != nil || n < 1 {
				return Command{}, errors.Newf("invalid track number %q", rest)
			}
			cmd.Arg = int64(n - 1)
		}

	case CmdAdd:
		if rest == "" {
			return Command{}, errors.New("add needs a path")
		}
		cmd.Path = rest
	}

	return cmd, nil
}
