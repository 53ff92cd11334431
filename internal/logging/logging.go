// Package logging wires the process-wide zerolog logger, following the
// logging posture of the corpus's zerolog-based repos: structured
// fields, a child logger per component, optional rotating file output.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the root logger.
type Options struct {
	// Level is one of debug/info/warning/error/silent, matching the
	// persisted per-device loggingLevel vocabulary (§3).
	Level string
	// FilePath, if non-empty, adds a rotating file sink alongside stderr.
	FilePath string
}

// New builds the process-wide root logger. Only cmd-level bootstrap
// calls this; every other package receives a derived child logger.
func New(opts Options) zerolog.Logger {
	level := ParseLevel(opts.Level)

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	if opts.FilePath != "" {
		fileSink := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, fileSink)
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// ParseLevel maps the daemon's level vocabulary (debug, info, warning,
// error, silent) onto zerolog's levels; an unrecognized string
// defaults to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warning", "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "silent":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// DeviceAllows reports whether a log at candidateLevel should be
// emitted for a device whose persisted loggingLevel is deviceLevel.
// This is advisory filtering only (§9's Open Question): the root
// logger's own level is still the hard floor, this only lets a device
// ask for more or less verbosity than the daemon default.
func DeviceAllows(deviceLevel string, candidateLevel zerolog.Level) bool {
	if deviceLevel == "" {
		return true
	}
	return candidateLevel >= ParseLevel(deviceLevel)
}
