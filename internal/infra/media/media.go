// Package media opens local audio files, demultiplexes them and decodes their streams.
package media

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lightmusic/internal/domain/audio"
)

// Errors
var (
	ErrUnsupportedFormat = errors.New("unsupported media format")
	ErrUnsupportedCodec  = errors.New("unsupported codec")
	ErrNoSuchStream      = errors.New("no such stream")
	ErrDecoderNotOpen    = errors.New("decoder not opened")
)

// Source is an opened media file.
// ReadPacket returns io.EOF once the selected stream is exhausted.
type Source interface {
	Info() audio.ContainerInfo
	OpenDecoder(stream int) error
	ReadPacket() (audio.Packet, error)
	Decode(pkt audio.Packet) (audio.Frame, error)
	SeekTo(t time.Duration) error
	Close() error
}

// backend is implemented by every container reader in this package.
type backend interface {
	Source
	base() *container
}

type openFunc func(f *os.File) (backend, error)

var openers = map[string]openFunc{
	".mp3":  openMP3,
	".flac": openFLAC,
	".wav":  openWAV,
	".ogg":  openOgg,
	".oga":  openOgg,
	".opus": openOgg,
}

// SupportedExtensions returns the file extensions Open understands, sorted.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(openers))
	for ext := range openers {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// IsSupported reports whether the path has a supported extension.
func IsSupported(path string) bool {
	_, ok := openers[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Open opens the file at path and reads its container and stream information.
// No decoder is opened yet.
func Open(path string) (Source, error) {
	ext := strings.ToLower(filepath.Ext(path))
	open, ok := openers[ext]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "extension %q", ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}

	tags := readTags(f)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "failed to rewind file")
	}

	src, err := open(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "failed to read %s container", strings.TrimPrefix(ext, "."))
	}

	c := src.base()
	c.info.Path = path
	c.info.Tags = tags
	if c.info.BitRate == 0 && c.info.Duration > 0 {
		if st, err := f.Stat(); err == nil {
			c.info.BitRate = int(float64(st.Size()*8) / c.info.Duration.Seconds())
		}
	}

	zlog.Debug().Msgf("media: opened: path=%s format=%s streams=%d", path, c.info.Format, len(c.info.Streams))
	return src, nil
}

// ReadInfo opens a file only to read its information.
func ReadInfo(path string) (audio.ContainerInfo, error) {
	src, err := Open(path)
	if err != nil {
		return audio.ContainerInfo{}, err
	}
	defer src.Close()
	return src.Info(), nil
}

// container holds the state every backend shares.
type container struct {
	file     *os.File
	info     audio.ContainerInfo
	selected int
}

func newContainer(f *os.File) container {
	return container{file: f, selected: -1}
}

func (c *container) base() *container {
	return c
}

// Info returns the container information.
func (c *container) Info() audio.ContainerInfo {
	return c.info
}

// selectStream validates a stream index and records it as selected.
func (c *container) selectStream(stream int) error {
	if stream < 0 || stream >= len(c.info.Streams) {
		return errors.Wrapf(ErrNoSuchStream, "stream %d", stream)
	}
	if c.info.Streams[stream].Type != audio.MediaAudio {
		return errors.Wrapf(ErrUnsupportedCodec, "stream %d is %s", stream, c.info.Streams[stream].Type)
	}
	c.selected = stream
	return nil
}

func (c *container) checkOpen() error {
	if c.selected < 0 {
		return ErrDecoderNotOpen
	}
	return nil
}

func (c *container) checkPacket(pkt audio.Packet) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if pkt.Stream != c.selected {
		return errors.Wrapf(ErrNoSuchStream, "packet of stream %d, decoder is for stream %d", pkt.Stream, c.selected)
	}
	return nil
}

func (c *container) closeFile() error {
	if err := c.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return errors.Wrap(err, "failed to close file")
	}
	return nil
}

// samplesToDuration converts a sample count at rate to a duration.
func samplesToDuration(samples int64, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(rate)
}

// durationToSamples converts a duration to a sample count at rate.
func durationToSamples(t time.Duration, rate int) int64 {
	if t < 0 {
		return 0
	}
	return int64(t.Seconds() * float64(rate))
}
