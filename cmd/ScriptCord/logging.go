package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// initializeLogger installs a text handler writing to out and, when set, to
// file as well.
func initializeLogger(out io.Writer, file io.Writer, level slog.Level) {
	w := out
	if file != nil {
		w = io.MultiWriter(out, file)
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// parseLevel accepts the slog level names, case-insensitively.
func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// setupLogging reconfigures the default logger from settings. The returned
// function closes the log file.
func setupLogging(config Config) (func(), error) {
	level, err := parseLevel(config.LogLevel)
	if err != nil {
		return nil, err
	}
	if config.LogFile == "" {
		initializeLogger(os.Stdout, nil, level)
		return func() {}, nil
	}

	if dir := filepath.Dir(config.LogFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", config.LogFile, err)
	}
	initializeLogger(os.Stdout, f, level)
	slog.Debug("Logging to file", "path", config.LogFile, "level", level)
	return func() { _ = f.Close() }, nil
}
