package bootstrap

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/GoSim-25-26J-441/uml-studio-backend/config"
)

// NewLogger builds the process logger: human readable in development,
// JSON everywhere else.
func NewLogger(cfg config.AppConfig) zerolog.Logger {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg config.AppConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	w := out
	if cfg.Environment == "development" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(level).With().
		Timestamp().
		Str("service", "uml-studio-backend").
		Str("version", cfg.Version).
		Logger()
}
