// Package logger provides a small leveled logger for the assistant.
// Levels: off (silent), normal (info/warn/error), verbose (adds debug).
// Safe for concurrent use from every worker goroutine.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Level controls verbosity.
type Level int

const (
	// LevelOff disables all output.
	LevelOff Level = iota
	// LevelNormal enables info, warn and error.
	LevelNormal
	// LevelVerbose enables everything including debug.
	LevelVerbose
)

// Logger is a leveled logger backed by the stdlib log package.
type Logger struct {
	mu    sync.RWMutex
	level Level
	out   [4]*log.Logger // indexed by severity
}

const (
	sevDebug = iota
	sevInfo
	sevWarn
	sevError
)

// New creates a logger writing to out (os.Stderr when nil).
func New(level Level, out io.Writer) *Logger {
	if out == nil {
		out = os.Stderr
	}
	l := &Logger{level: level}
	for i, prefix := range []string{"[DBG] ", "[INF] ", "[WRN] ", "[ERR] "} {
		l.out[i] = log.New(out, prefix, log.Ltime)
	}
	return l
}

// SetLevel changes the level at runtime.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// GetLevel returns the current level.
func (l *Logger) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

func (l *Logger) emit(sev int, min Level, format string, args []any) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.level >= min {
		l.out[sev].Output(3, fmt.Sprintf(format, args...))
	}
}

// Debug logs at debug level (verbose mode only).
func (l *Logger) Debug(format string, args ...any) {
	l.emit(sevDebug, LevelVerbose, format, args)
}

// Info logs at info level.
func (l *Logger) Info(format string, args ...any) {
	l.emit(sevInfo, LevelNormal, format, args)
}

// Warn logs at warn level.
func (l *Logger) Warn(format string, args ...any) {
	l.emit(sevWarn, LevelNormal, format, args)
}

// Error logs at error level.
func (l *Logger) Error(format string, args ...any) {
	l.emit(sevError, LevelNormal, format, args)
}
