package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents the logging level
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	QUIET
)

var base = newBase(os.Stdout, zerolog.InfoLevel)

var zerologLevels = map[LogLevel]zerolog.Level{
	DEBUG: zerolog.DebugLevel,
	INFO:  zerolog.InfoLevel,
	WARN:  zerolog.WarnLevel,
	ERROR: zerolog.ErrorLevel,
	QUIET: zerolog.Disabled,
}

func newBase(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// SetOutput redirects all log lines to w, keeping the current level.
func SetOutput(w io.Writer) {
	base = newBase(w, base.GetLevel())
}

// SetLogLevel sets the current logging level
func SetLogLevel(level LogLevel) {
	zl, ok := zerologLevels[level]
	if !ok {
		zl = zerolog.InfoLevel
	}
	base = base.Level(zl)
}

// CurrentLogLevel reports the level the backend is filtering at.
func CurrentLogLevel() LogLevel {
	current := base.GetLevel()
	for level, zl := range zerologLevels {
		if zl == current {
			return level
		}
	}
	return INFO
}

// ParseLogLevel maps a level name to a LogLevel, falling back to INFO.
func ParseLogLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "quiet":
		return QUIET
	default:
		return INFO
	}
}

// SetLogLevelFromString sets the log level from a string
func SetLogLevelFromString(level string) {
	SetLogLevel(ParseLogLevel(level))
}

func emit(ev *zerolog.Event, component, message string, args []interface{}) {
	if ev == nil {
		return
	}
	ev.Str("component", component).Msg(fmt.Sprintf(message, args...))
}

// LogDebug logs a debug message
func LogDebug(component, message string, args ...interface{}) {
	emit(base.Debug(), component, message, args)
}

// LogInfo logs an info message
func LogInfo(component, message string, args ...interface{}) {
	emit(base.Info(), component, message, args)
}

// LogWarn logs a warning message
func LogWarn(component, message string, args ...interface{}) {
	emit(base.Warn(), component, message, args)
}

// LogError logs an error message
func LogError(component, message string, args ...interface{}) {
	emit(base.Error(), component, message, args)
}

// InitLogger initializes the logger with environment variables
func InitLogger() {
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		SetLogLevelFromString(logLevel)
	}
}
