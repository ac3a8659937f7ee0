package internal

import (
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger writes human readable log lines to w. Unknown levels fall back
// to info.
func NewLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	console := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
	}

	return zerolog.New(console).Level(lvl).With().
		Timestamp().
		Str("app", "memassist").
		Logger()
}
