// Package plog builds the process logger: logr backed by zap.
//
// Conventions: messages are constant strings, details go in key/value pairs,
// and passwords or client secrets are never passed to a logger.
package plog

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures New.
type Options struct {
	Level  LogLevel
	Format Format
	// OutputPaths are zap output paths, stderr when empty.
	OutputPaths []string
}

// New builds a logger for the options. The returned func flushes buffered
// log entries.
func New(opts Options, zapOpts ...zap.Option) (logr.Logger, func(), error) {
	v, err := opts.Level.verbosity()
	if err != nil {
		return logr.Logger{}, nil, err
	}
	if err := opts.Format.Validate(); err != nil {
		return logr.Logger{}, nil, err
	}
	encoding := string(opts.Format)
	if encoding == "" {
		encoding = string(FormatJSON)
	}
	paths := opts.OutputPaths
	if len(paths) == 0 {
		paths = []string{"stderr"} // this is how zap refers to os.Stderr
	}
	config := zap.Config{
		Level:             zap.NewAtomicLevelAt(zapcore.Level(-v)),
		Development:       false,
		DisableCaller:     false,
		DisableStacktrace: true,
		Sampling:          nil,
		Encoding:          encoding,
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:     "message",
			LevelKey:       "level",
			TimeKey:        "timestamp",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    levelEncoder,
			EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   callerEncoder,
			// separate console fields the way klog does
			ConsoleSeparator: "  ",
		},
		OutputPaths:      paths,
		ErrorOutputPaths: paths,
	}
	if opts.Format == FormatConsole {
		config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
		config.EncoderConfig.EncodeTime = humanTimeEncoder
	}
	log, err := config.Build(zapOpts...)
	if err != nil {
		return logr.Logger{}, nil, fmt.Errorf("failed to build zap logger: %w", err)
	}
	return zapr.NewLogger(log), func() { _ = log.Sync() }, nil
}

// NewWithCore wraps an existing zap core, used by tests to observe entries.
func NewWithCore(core zapcore.Core) logr.Logger {
	return zapr.NewLogger(zap.New(core))
}

func levelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(zapLevelToLogLevel(l))
}

func callerEncoder(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(caller.String() + funcEncoder(caller))
}

func funcEncoder(caller zapcore.EntryCaller) string {
	funcName := caller.Function
	if idx := strings.LastIndexByte(funcName, '/'); idx != -1 {
		funcName = funcName[idx+1:] // keep everything after the last /
	}
	return "$" + funcName
}

func humanTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Local().Format(time.RFC1123))
}
