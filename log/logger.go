/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package log provides structured logging for the site API built on top of github.com/ssgreg/logf.
//
// Components receive a FieldLogger explicitly, request handlers take the request-scoped one from
// the context (see httpserver/middleware.GetLoggerFromContext).
package log

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ssgreg/logf"
	"github.com/ssgreg/logftext"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Field is a typed key-value pair attached to a log entry.
type Field = logf.Field

// LogFunc logs a message at the level bound by FieldLogger.AtLevel.
// nolint: revive
type LogFunc = logf.LogFunc

// CloseFunc flushes buffered entries and stops the asynchronous writer.
type CloseFunc func()

// Field constructors.
var (
	Error    = logf.Error
	String   = logf.String
	Bytes    = logf.Bytes
	Int      = logf.Int
	Int64    = logf.Int64
	Bool     = logf.Bool
	Duration = logf.Duration
)

// FieldLogger writes structured entries.
type FieldLogger interface {
	With(fields ...Field) FieldLogger

	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// AtLevel calls fn only if the level is enabled, so building expensive fields can be skipped.
	AtLevel(level Level, fn func(logFunc LogFunc))
}

// LogfAdapter implements FieldLogger on top of *logf.Logger.
type LogfAdapter struct {
	Logger *logf.Logger
}

var _ FieldLogger = (*LogfAdapter)(nil)

// NewDisabledLogger returns a logger that drops everything.
func NewDisabledLogger() FieldLogger {
	return &LogfAdapter{Logger: logf.NewDisabledLogger()}
}

// NewLogger creates a logger according to cfg. Entries are written asynchronously,
// so the returned CloseFunc must be called before the process exits.
func NewLogger(cfg *Config) (FieldLogger, CloseFunc) {
	writer, closeWriter := logf.NewChannelWriter(logf.ChannelWriterConfig{
		Appender:          newAppender(cfg),
		EnableSyncOnError: true,
	})
	logger := logf.NewLogger(cfg.Level.logfLevel(), writer).With(logf.Int("pid", os.Getpid()))
	if cfg.AddCaller {
		logger = logger.WithCaller().WithCallerSkip(1) // skip LogfAdapter frames
	}
	return &LogfAdapter{Logger: logger}, CloseFunc(closeWriter)
}

// With implements FieldLogger.
func (l *LogfAdapter) With(fields ...Field) FieldLogger {
	return &LogfAdapter{Logger: l.Logger.With(fields...)}
}

// Debug implements FieldLogger.
func (l *LogfAdapter) Debug(msg string, fields ...Field) { l.Logger.Debug(msg, fields...) }

// Info implements FieldLogger.
func (l *LogfAdapter) Info(msg string, fields ...Field) { l.Logger.Info(msg, fields...) }

// Warn implements FieldLogger.
func (l *LogfAdapter) Warn(msg string, fields ...Field) { l.Logger.Warn(msg, fields...) }

// Error implements FieldLogger.
func (l *LogfAdapter) Error(msg string, fields ...Field) { l.Logger.Error(msg, fields...) }

// AtLevel implements FieldLogger.
func (l *LogfAdapter) AtLevel(level Level, fn func(logFunc LogFunc)) {
	l.Logger.AtLevel(level.logfLevel(), fn)
}

func newAppender(cfg *Config) logf.Appender {
	var w io.Writer = os.Stdout
	switch cfg.Output {
	case OutputStderr:
		w = os.Stderr
	case OutputFile:
		w = &lumberjack.Logger{
			Filename:   expandFilePath(cfg.File.Path, time.Now()),
			MaxSize:    int(cfg.File.Rotation.MaxSize / (1024 * 1024)),
			MaxBackups: cfg.File.Rotation.MaxBackups,
			MaxAge:     cfg.File.Rotation.MaxAgeDays,
			Compress:   cfg.File.Rotation.Compress,
		}
	}

	// Errors carrying a stack get an additional "error_verbose" field with their %+v rendering.
	errorEncoder := logf.NewErrorEncoder(logf.ErrorEncoderConfig{
		NoVerboseField:     cfg.Error.NoVerbose,
		VerboseFieldSuffix: "_verbose",
	})

	if cfg.Format == FormatText {
		noColor := cfg.Output == OutputFile
		return logftext.NewAppender(w, logftext.EncoderConfig{
			NoColor:     &noColor,
			EncodeTime:  logf.RFC3339NanoTimeEncoder,
			EncodeError: errorEncoder,
		})
	}
	return logf.NewWriteAppender(w, logf.NewJSONEncoder(logf.JSONEncoderConfig{
		FieldKeyTime: "time",
		EncodeTime:   logf.RFC3339NanoTimeEncoder,
		EncodeError:  errorEncoder,
	}))
}

// expandFilePath replaces the {{pid}} and {{starttime}} placeholders, so several processes
// on the same host can log into separate files.
func expandFilePath(path string, startTime time.Time) string {
	return strings.NewReplacer(
		"{{pid}}", strconv.Itoa(os.Getpid()),
		"{{starttime}}", startTime.Format("200601021504"),
	).Replace(path)
}
