package application

import (
	"io"
	"log/slog"
	"strings"

	"thirdcoast.systems/sonicstream/internal/config"
)

// NewLogger builds the process logger and installs it as the slog default.
func NewLogger(w io.Writer, conf config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(conf.LogLevel)}

	var handler slog.Handler
	if strings.EqualFold(conf.LogFormat, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps debug/info/warn/error to a slog level. Unknown values are
// info.
func ParseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}
