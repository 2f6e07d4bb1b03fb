package app

import (
	"io"
	"log/slog"
	"strings"

	charmlog "github.com/charmbracelet/log"

	"github.com/mccodeai/mmgamerag/models"
)

// NewLogger builds the process logger. JSON goes to machines, text is for
// people at a terminal. quiet only lets errors through.
func NewLogger(w io.Writer, cfg models.AppConfig, quiet bool) *slog.Logger {
	level := slog.LevelInfo
	if cfg.LogLevel != "" {
		_ = level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel)))
	}
	if quiet {
		level = slog.LevelError
	}

	if cfg.LogFormat == "text" {
		handler := charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmlog.Level(level),
			ReportTimestamp: true,
		})
		return slog.New(handler)
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
