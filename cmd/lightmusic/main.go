// Package main provides the player entry point.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lightmusic/internal/app/filter"
	"github.com/osa030/lightmusic/internal/app/player"
	"github.com/osa030/lightmusic/internal/app/session"
	"github.com/osa030/lightmusic/internal/infra/config"
	"github.com/osa030/lightmusic/internal/infra/logger"
	"github.com/osa030/lightmusic/internal/infra/media"
	"github.com/osa030/lightmusic/internal/infra/output"
)

var (
	app        = kingpin.New("lightmusic", "Lightweight terminal music player")
	configPath = app.Flag("config", "Path to config file (default: searched in XDG config dirs)").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stderr)").String()
	backend    = app.Flag("backend", "Output backend").Envar("LIGHTMUSIC_BACKEND").String()
	device     = app.Flag("device", "Output device name").Envar("LIGHTMUSIC_DEVICE").String()

	// play command
	playCmd   = app.Command("play", "Play files and directories (default)").Default()
	playPaths = playCmd.Arg("paths", "Files or directories to play").Strings()
	shuffle   = playCmd.Flag("shuffle", "Shuffle the track list before playing").Bool()
	watchDirs = playCmd.Flag("watch", "Watch a directory for new files (repeatable)").Strings()

	// info command
	infoCmd  = app.Command("info", "Print the metadata of a media file")
	infoFile = infoCmd.Arg("file", "Media file").Required().ExistingFile()

	// devices command
	devicesCmd = app.Command("devices", "List output devices")

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Commands that need no configuration
	switch command {
	case listFiltersCmd.FullCommand():
		printFilters()
		return
	case infoCmd.FullCommand():
		if err := printInfo(os.Stdout, *infoFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Load config
	path := config.ResolvePath(*configPath)
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg)

	// Initialize logger
	loggerConfig := logger.Config{
		Output: cfg.Log.Output,
		Level:  cfg.Log.Level,
		File:   cfg.Log.File,
	}
	// Override with command-line flags if specified
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	closeLog, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closeLog()

	if path != "" {
		zlog.Info().Msgf("Loaded config from %s", path)
	}

	switch command {
	case devicesCmd.FullCommand():
		err = printDevices(os.Stdout, cfg.Output.Backend)
	default:
		err = run(cfg, *playPaths)
	}
	if err != nil {
		zlog.Error().Msgf("lightmusic: %v", err)
		closeLog()
		os.Exit(1)
	}
}

// applyFlags lets command-line flags override the file.
func applyFlags(cfg *config.Config) {
	if *backend != "" {
		cfg.Output.Backend = *backend
	}
	if *device != "" {
		cfg.Output.Device = *device
	}
	if *shuffle {
		cfg.Playlist.Shuffle = true
	}
	if len(*watchDirs) > 0 {
		cfg.Watch.Enabled = true
		cfg.Watch.Paths = append(cfg.Watch.Paths, *watchDirs...)
	}
}

// run plays until a signal, a quit command or the end of input.
func run(cfg *config.Config, paths []string) error {
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	if err := validateFilterConfig(cfg); err != nil {
		return errors.Wrap(err, "invalid filter config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessionMgr, err := session.NewManager(cfg, session.Options{Args: paths})
	if err != nil {
		return errors.Wrap(err, "failed to create session")
	}

	go readCommands(ctx, sessionMgr, os.Stdin)

	if err := sessionMgr.Run(ctx); err != nil {
		return err
	}
	zlog.Info().Msg("Player stopped")
	return nil
}

// readCommands feeds stdin lines to the session until input ends.
func readCommands(ctx context.Context, sessionMgr *session.Manager, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		cmd, err := session.ParseCommand(scanner.Text())
		if err != nil {
			fmt.Fprintf(os.Stdout, "error: %v (type \"help\")\n", err)
			continue
		}
		if err := sessionMgr.Submit(ctx, cmd); err != nil {
			return
		}
	}
	zlog.Debug().Msg("lightmusic: input closed")
}

// printInfo prints the container and stream metadata of a file.
func printInfo(w io.Writer, path string) error {
	src, err := media.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	containerText, streamText := player.Describe(src)
	fmt.Fprintln(w, containerText)
	fmt.Fprintln(w, streamText)
	return nil
}

// printDevices prints the devices of the configured backend.
func printDevices(w io.Writer, backendName string) error {
	devices, err := output.Devices(backendName)
	if err != nil {
		return errors.Wrapf(err, "available backends: %s", strings.Join(output.Backends(), ", "))
	}
	fmt.Fprintf(w, "Devices (%s):\n", backendName)
	for _, d := range devices {
		marker := " "
		if d.Default {
			marker = "*"
		}
		fmt.Fprintf(w, " %s %-40s channels=%d rate=%.0f\n", marker, d.Name, d.MaxChannels, d.DefaultSampleRate)
	}
	return nil
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	registry := filter.GetRegistered()
	for _, name := range filter.Names() {
		f := registry[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", name, f.Description(), codes)
	}
}

// validateFilterConfig validates filter configurations.
func validateFilterConfig(cfg *config.Config) error {
	registry := filter.GetRegistered()

	for filterName, filterCfg := range cfg.Filters {
		if !filterCfg.Enabled {
			continue
		}

		factory, exists := registry[filterName]
		if !exists {
			return errors.Newf("unknown filter %q", filterName)
		}

		f := factory()
		if err := f.ValidateConfig(filterCfg.Settings); err != nil {
			return errors.Wrapf(err, "filter %s", filterName)
		}
	}

	return nil
}
