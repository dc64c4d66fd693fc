package logging

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/edvin/shopvault/internal/config"
)

// NewLogger creates a structured zerolog.Logger with the backup context
// attached so log lines from concurrent contexts can be told apart.
func NewLogger(cfg *config.Config) zerolog.Logger {
	ctx := zerolog.New(os.Stdout).With().Timestamp()

	if cfg.Context != "" {
		ctx = ctx.Str("context", cfg.Context)
	}

	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}
