package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wkmp/wkmp-ap/internal/playerconf"
)

// RootCommand builds the wkmpap CLI, grounded on the teacher's
// cmd.RootCommand(settings): one *Settings threaded into every subcommand,
// persistent flags for the handful of knobs worth overriding from the
// command line rather than config.yaml.
func RootCommand(settings *playerconf.Settings) *cobra.Command {
	root := &cobra.Command{
		Use:   "wkmpap",
		Short: "WKMP audio player: gapless, crossfading local playback",
	}

	root.PersistentFlags().StringVar(&settings.DeviceName, "device", settings.DeviceName, "Output audio device name (empty for system default)")
	root.PersistentFlags().StringVar(&settings.Storage.Path, "db", settings.Storage.Path, "Path to the sqlite queue/passage store")
	root.PersistentFlags().StringVar(&settings.Logging.Level, "log-level", settings.Logging.Level, "Log level: debug, info, warn, error")

	root.AddCommand(
		playCommand(settings),
		enqueueCommand(settings),
		dequeueCommand(settings),
		skipCommand(settings),
		statusCommand(settings),
	)

	return root
}

// parseLevel maps a config/flag log level string to slog.Level, the way
// internal/logging's own level handling expects.
func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unrecognized log level %q", level)
	}
}
