// Package logger builds the application's slog logger.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Log formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

var errNoOptions = errors.New("logger options are required")

// Options configures New.
type Options struct {
	AddSource bool
	Level     string
	Format    string    // FormatJSON unless FormatText
	Writer    io.Writer // os.Stdout when nil
}

// New builds a logger and makes it the slog default. An unknown level falls back
// to info and is reported in the returned error next to a usable logger.
func New(opt *Options) (*slog.Logger, error) {
	if opt == nil {
		return nil, errNoOptions
	}

	level, err := ParseLevel(opt.Level)

	handlerOpts := &slog.HandlerOptions{
		AddSource: opt.AddSource,
		Level:     level,
	}

	w := opt.Writer
	if w == nil {
		w = os.Stdout
	}

	var handler slog.Handler = slog.NewJSONHandler(w, handlerOpts)
	if strings.EqualFold(opt.Format, FormatText) {
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log, err
}

// ParseLevel converts a string level to slog.Level.
func ParseLevel(level string) (slog.Level, error) {
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
		return slog.LevelInfo, fmt.Errorf("unknown log level: %q", level)
	}
}
