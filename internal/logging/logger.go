package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/lex00/wetwire-fargate-go/internal/config"
)

// NewLogger creates a structured zerolog.Logger writing JSON to stdout with
// context fields from the config. Non-empty fields are added automatically.
func NewLogger(cfg *config.Config) zerolog.Logger {
	return New(os.Stdout, cfg)
}

// New is NewLogger with an explicit writer.
func New(w io.Writer, cfg *config.Config) zerolog.Logger {
	ctx := zerolog.New(w).With().Timestamp()

	if cfg.ServiceName != "" {
		ctx = ctx.Str("service", cfg.ServiceName)
	}
	if cfg.StackName != "" {
		ctx = ctx.Str("stack", cfg.StackName)
	}
	if cfg.Region != "" {
		ctx = ctx.Str("region", cfg.Region)
	}

	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}
