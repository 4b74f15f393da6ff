package httpapi

import (
	"os"

	"github.com/rs/zerolog"
)

// zlog is the structured logger used by the HTTP layer. Defaults to a
// disabled logger until SetLogger installs the real one.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l }

// NewLogger builds the process logger honoring LLMGATE_LOG_LEVEL
// (debug, info, warn, error; default info).
func NewLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if v := os.Getenv("LLMGATE_LOG_LEVEL"); v != "" {
		if parsed, err := zerolog.ParseLevel(v); err == nil {
			level = parsed
		}
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}
