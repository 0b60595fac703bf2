package observability

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/couchcryptid/weather-snapshot-cache/internal/config"
)

// NewLogger builds the process logger. LOG_FORMAT=text selects a colored
// human-readable handler for local runs; anything else logs JSON.
func NewLogger(cfg *config.Config) *slog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	var h slog.Handler
	if cfg.LogFormat == "text" {
		h = tint.NewHandler(w, &tint.Options{
			Level:      cfg.SlogLevel(),
			TimeFormat: time.Kitchen,
		})
	} else {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: cfg.SlogLevel(),
		})
	}
	return slog.New(h).With("service", "weather-snapshot-cache")
}
