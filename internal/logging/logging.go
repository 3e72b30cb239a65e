package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlexYaroshenko/hades/internal/config"
)

// New builds the process logger. Level is one of trace, debug, info, warn,
// error (info when unparsable); format is json or console.
func New(cfg config.LogConfig) zerolog.Logger {
	return NewWriter(os.Stdout, cfg)
}

func NewWriter(w io.Writer, cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if strings.ToLower(cfg.Format) == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Redact keeps the first and last two characters of a secret.
func Redact(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:2] + "..." + s[len(s)-2:]
}
