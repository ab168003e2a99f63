package output

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// NewLogger returns a structured logger on stderr tagged with prefix.
// VXRN_LOG_LEVEL (debug, info, warn, error) sets the minimum level.
func NewLogger(prefix string) *log.Logger {
	return NewLoggerTo(os.Stderr, prefix)
}

// NewLoggerTo is NewLogger with an explicit destination.
func NewLoggerTo(w io.Writer, prefix string) *log.Logger {
	level := log.InfoLevel
	if parsed, err := log.ParseLevel(strings.ToLower(os.Getenv("VXRN_LOG_LEVEL"))); err == nil {
		level = parsed
	}
	return log.NewWithOptions(w, log.Options{
		Prefix:          prefix,
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
}

// DeviceLevel maps a client-side console level to a log level. Unknown
// levels log at info.
func DeviceLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case "trace", "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
