package util

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

type LogLevel int32

const (
	LevelTrace LogLevel = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[string]LogLevel{
	"trace": LevelTrace,
	"debug": LevelDebug,
	"info":  LevelInfo,
	"warn":  LevelWarn,
	"error": LevelError,
}

func (l LogLevel) String() string {
	for name, lvl := range levelNames {
		if lvl == l {
			return name
		}
	}
	return fmt.Sprintf("level(%d)", int32(l))
}

// Logger wraps the standard library logger with level filtering and an
// optional component prefix.
type Logger struct {
	level     *atomic.Int32
	base      *log.Logger
	component string
}

// NewLogger creates a level-aware logger writing to stderr.
func NewLogger(level LogLevel) *Logger {
	return NewLoggerWithWriter(level, os.Stderr)
}

// NewLoggerWithWriter creates a level-aware logger writing to the provided destination.
func NewLoggerWithWriter(level LogLevel, w io.Writer) *Logger {
	l := &Logger{
		level: new(atomic.Int32),
		base:  log.New(w, "", log.LstdFlags|log.Lmsgprefix),
	}
	l.level.Store(int32(level))
	return l
}

// Named returns a logger sharing the destination and level that tags every
// line with the component name.
func (l *Logger) Named(component string) *Logger {
	return &Logger{level: l.level, base: l.base, component: component}
}

func (l *Logger) SetLevel(level LogLevel) {
	l.level.Store(int32(level))
}

func (l *Logger) Level() LogLevel {
	return LogLevel(l.level.Load())
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level LogLevel) bool {
	return level >= LogLevel(l.level.Load())
}

func (l *Logger) logf(level LogLevel, prefix string, format string, args ...interface{}) {
	if !l.Enabled(level) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if l.component != "" {
		l.base.Printf("[%s] %s: %s", strings.ToUpper(prefix), l.component, msg)
		return
	}
	l.base.Printf("[%s] %s", strings.ToUpper(prefix), msg)
}

func (l *Logger) Tracef(format string, args ...interface{}) {
	l.logf(LevelTrace, "trace", format, args...)
}
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logf(LevelDebug, "debug", format, args...)
}
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logf(LevelInfo, "info", format, args...)
}
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logf(LevelWarn, "warn", format, args...)
}
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logf(LevelError, "error", format, args...)
}

// ParseLogLevel converts a string into a LogLevel, defaulting to info.
func ParseLogLevel(s string) LogLevel {
	if lvl, ok := levelNames[strings.ToLower(s)]; ok {
		return lvl
	}
	return LevelInfo
}
