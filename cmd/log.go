package cmd

import (
	"log"
	"log/slog"
	"os"
)

// ConfigureLogging sets up the standard logger used for process level messages
// and the access log, and returns the structured logger handed to runners. It
// also becomes the slog default
func ConfigureLogging(verbose bool) *slog.Logger {
	log.SetPrefix("")
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
