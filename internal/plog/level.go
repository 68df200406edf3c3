package plog

import (
	"go.uber.org/zap/zapcore"
)

// LogLevel controls the verbosity of logs. Valid values in order of
// increasing verbosity are info, debug and trace.
type LogLevel string

const (
	// LevelInfo maps to logr V(0).
	LevelInfo LogLevel = "info"
	// LevelDebug maps to logr V(1): connection lifecycle.
	LevelDebug LogLevel = "debug"
	// LevelTrace maps to logr V(2): every request.
	LevelTrace LogLevel = "trace"
)

// logr verbosity levels.
const (
	vInfo = iota
	vDebug
	vTrace
)

// Format is the log encoding.
type Format string

// Format values.
const (
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// Error is a plog error.
type Error string

// Error satisfies the error interface.
func (err Error) Error() string {
	return string(err)
}

// Error values.
const (
	ErrInvalidLogLevel  Error = "invalid log level, valid choices are info, debug and trace"
	ErrInvalidLogFormat Error = "invalid log format, valid choices are json and console"
)

// Validate returns an error if the level is not known.
func (level LogLevel) Validate() error {
	_, err := level.verbosity()
	return err
}

func (level LogLevel) verbosity() (int, error) {
	switch level {
	case LevelInfo, "":
		return vInfo, nil
	case LevelDebug:
		return vDebug, nil
	case LevelTrace:
		return vTrace, nil
	}
	return 0, ErrInvalidLogLevel
}

// Validate returns an error if the format is not known.
func (format Format) Validate() error {
	switch format {
	case FormatJSON, FormatConsole, "":
		return nil
	}
	return ErrInvalidLogFormat
}

// zapLevelToLogLevel maps zap levels back to names. logr verbosity is
// inverted when zap handles it.
func zapLevelToLogLevel(l zapcore.Level) string {
	if l >= 0 {
		return l.String()
	}
	switch {
	case -l >= vTrace:
		return string(LevelTrace)
	default:
		return string(LevelDebug)
	}
}
