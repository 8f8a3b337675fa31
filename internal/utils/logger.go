package utils

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel orders log severities.
type LogLevel int

const (
	Debug   LogLevel = 10
	Info    LogLevel = 20
	Warning LogLevel = 30
	Error   LogLevel = 40
)

// Logger writes leveled key/value lines for one orchestrator component
// (router, health-monitor, failover-manager, spend, ...). Each component
// constructs its own logger with its name as the prefix.
type Logger struct {
	out   *log.Logger
	mu    sync.Mutex
	level LogLevel
}

// NewLogger returns a logger tagged with the component name. The threshold
// defaults to Warning and can be lowered process-wide with LOG_LEVEL=info
// or LOG_LEVEL=debug to watch probe cycles and routing decisions.
func NewLogger(component string, level ...LogLevel) *Logger {
	threshold := levelFromEnv()
	if len(level) > 0 {
		threshold = level[0]
	}
	return &Logger{
		out:   log.New(os.Stdout, fmt.Sprintf("[%s] ", component), log.LstdFlags),
		level: threshold,
	}
}

func levelFromEnv() LogLevel {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return Debug
	case "info":
		return Info
	case "error":
		return Error
	default:
		return Warning
	}
}

// SetLogLevel changes the threshold at runtime.
func (l *Logger) SetLogLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Debug logs a debug message with optional key/value pairs.
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.emit(Debug, "DEBUG", msg, keyvals...)
}

// Info logs an informational message with optional key/value pairs.
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.emit(Info, "INFO", msg, keyvals...)
}

// Warn logs a warning message with optional key/value pairs.
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.emit(Warning, "WARN", msg, keyvals...)
}

// Error logs an error message with optional key/value pairs.
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.emit(Error, "ERROR", msg, keyvals...)
}

func (l *Logger) emit(level LogLevel, tag, msg string, keyvals ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level > level {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", tag, msg)
	for i := 0; i+1 < len(keyvals); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keyvals[i], keyvals[i+1])
	}
	l.out.Println(b.String())
}
