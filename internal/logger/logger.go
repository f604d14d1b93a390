// Package logger provides the daemon's structured logging, grounded on the
// teacher's internal/logger: a slog.Logger backed by a loggerFactory that can
// render either text or JSON, rotate its output file via lumberjack, and be
// reconfigured at runtime via a shared slog.LevelVar.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mistfs/mistfs/internal/config"
)

// Custom severities layered on top of slog's four built-in levels, mirroring
// the teacher's TRACE/OFF additions.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(12)
)

type loggerFactory struct {
	file            *os.File
	sysWriter       io.Writer
	format          string
	level           string
	logRotateConfig config.LogRotateConfig
}

var (
	programLevel         = new(slog.LevelVar)
	defaultLoggerFactory = &loggerFactory{
		sysWriter: os.Stderr,
		level:     config.INFO,
		format:    "text",
	}
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, programLevel, ""))
)

func init() {
	setLoggingLevel(defaultLoggerFactory.level, programLevel)
}

// InitLogFile points the default logger at a rotating log file per cfg,
// falling back to stderr when cfg.FilePath is empty.
func InitLogFile(legacy config.LogRotateConfig, cfg config.LoggingConfig) error {
	factory := &loggerFactory{
		level:           cfg.Severity,
		format:          cfg.Format,
		logRotateConfig: legacy,
	}

	var writer io.Writer = os.Stderr
	if cfg.FilePath != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    legacy.MaxFileSizeMB,
			MaxBackups: legacy.BackupFileCount,
			Compress:   legacy.Compress,
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		factory.file = f
		writer = NewAsyncLogger(lj, 1000)
	} else {
		factory.sysWriter = os.Stderr
	}

	defaultLoggerFactory = factory
	setLoggingLevel(cfg.Severity, programLevel)
	defaultLogger = slog.New(factory.createJsonOrTextHandler(writer, programLevel, ""))

	return nil
}

// SetLogFormat switches the default logger between "text" and "json"
// rendering. An empty or unrecognized format falls back to JSON.
func SetLogFormat(format string) {
	defaultLoggerFactory.format = format

	writer := defaultLoggerFactory.sysWriter
	if writer == nil {
		writer = os.Stderr
	}
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(writer, programLevel, ""))
}

func setLoggingLevel(level string, levelVar *slog.LevelVar) {
	switch level {
	case config.TRACE:
		levelVar.Set(LevelTrace)
	case config.DEBUG:
		levelVar.Set(LevelDebug)
	case config.INFO:
		levelVar.Set(LevelInfo)
	case config.WARNING:
		levelVar.Set(LevelWarn)
	case config.ERROR:
		levelVar.Set(LevelError)
	case config.OFF:
		levelVar.Set(LevelOff)
	default:
		levelVar.Set(LevelInfo)
	}
}

// createJsonOrTextHandler builds a slog.Handler that renders "severity"
// instead of slog's default "level" key, and a human-readable timestamp in
// text mode or a {seconds,nanos} timestamp object in JSON mode, to match the
// on-wire log shape the rest of the fleet's tooling already parses.
func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, levelVar *slog.LevelVar, prefix string) slog.Handler {
	replace := func(groups []string, a slog.Attr) slog.Attr {
		switch a.Key {
		case slog.LevelKey:
			a.Key = "severity"
			a.Value = slog.StringValue(levelName(a.Value.Any().(slog.Level)))
		case slog.MessageKey:
			a.Value = slog.StringValue(prefix + a.Value.String())
		case slog.TimeKey:
			if f.format == "text" {
				a.Value = slog.StringValue(a.Value.Time().Format("2006/01/02 15:04:05.000000"))
			} else {
				t := a.Value.Time()
				a.Key = "timestamp"
				a.Value = slog.GroupValue(
					slog.Int64("seconds", t.Unix()),
					slog.Int64("nanos", int64(t.Nanosecond())),
				)
			}
		}
		return a
	}

	opts := &slog.HandlerOptions{Level: levelVar, ReplaceAttr: replace}

	if f.format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func levelName(level slog.Level) string {
	switch {
	case level < LevelDebug:
		return "TRACE"
	case level < LevelInfo:
		return "DEBUG"
	case level < LevelWarn:
		return "INFO"
	case level < LevelError:
		return "WARNING"
	default:
		return "ERROR"
	}
}

// Tracef logs at TRACE severity, below slog's built-in DEBUG.
func Tracef(format string, args ...any) {
	defaultLogger.Log(nil, LevelTrace, sprintf(format, args...))
}

// Debugf logs at DEBUG severity.
func Debugf(format string, args ...any) {
	defaultLogger.Log(nil, LevelDebug, sprintf(format, args...))
}

// Infof logs at INFO severity.
func Infof(format string, args ...any) {
	defaultLogger.Log(nil, LevelInfo, sprintf(format, args...))
}

// Warnf logs at WARNING severity.
func Warnf(format string, args ...any) {
	defaultLogger.Log(nil, LevelWarn, sprintf(format, args...))
}

// Errorf logs at ERROR severity.
func Errorf(format string, args ...any) {
	defaultLogger.Log(nil, LevelError, sprintf(format, args...))
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
