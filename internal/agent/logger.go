package agent

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"vm-health-agent/internal/config"
)

// BuildLogger returns the process logger and the closer for its output.
// Logs go to stderr unless HEALTH_LOG_FILE is set, which enables rotation.
func BuildLogger(cfg config.Config) (*slog.Logger, io.Closer) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var (
		writer io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if cfg.LogFile != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAgeDays,
			Compress:   true,
		}
		writer, closer = lj, lj
	}

	hOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(writer, hOpts)
	if cfg.LogJSON {
		handler = slog.NewJSONHandler(writer, hOpts)
	}
	return slog.New(handler), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
