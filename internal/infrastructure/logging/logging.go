package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

type Config struct {
	Service    string
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Init installs the default slog logger, writing text records to stdout and,
// when File is set, to a size rotated file. The stdlib log package is routed
// through the same handler. The returned closer is never nil.
func Init(cfg Config) (io.Closer, error) {
	return InitTo(cfg, os.Stdout)
}

// InitTo is Init with console records going to console instead of stdout.
func InitTo(cfg Config, console io.Writer) (io.Closer, error) {
	level := ParseLevel(cfg.Level)
	writers := []io.Writer{console}

	var closer io.Closer = nopCloser{}
	if strings.TrimSpace(cfg.File) != "" {
		writer, err := NewRotatingWriter(cfg.File, cfg.MaxSizeMB, cfg.MaxBackups)
		if err != nil {
			return closer, err
		}
		closer = writer
		writers = append(writers, writer)
	}

	var handler slog.Handler = slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: level})
	if cfg.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", cfg.Service)})
	}
	slog.SetDefault(slog.New(handler))

	stdLogger := slog.NewLogLogger(handler, level)
	log.SetFlags(0)
	log.SetOutput(stdLogger.Writer())

	return closer, nil
}

func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
