// Package logger provides a thread-safe leveled logger with console and file
// outputs. The tool executor uses it as its text log sink.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level represents the severity level of a log message.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a string to Level, defaulting to INFO.
func ParseLevel(level string) Level {
	switch level {
	case "DEBUG", "debug":
		return DEBUG
	case "INFO", "info":
		return INFO
	case "WARN", "warn":
		return WARN
	case "ERROR", "error":
		return ERROR
	default:
		return INFO
	}
}

// Config contains logger configuration.
type Config struct {
	Level    Level
	Prefix   string
	Console  bool
	FilePath string // empty disables file output
}

// Logger is a thread-safe logger with level filtering and dual outputs.
type Logger struct {
	mu            sync.Mutex
	level         Level
	prefix        string
	consoleWriter io.Writer
	fileWriter    io.Writer
}

// New creates a logger with the given configuration.
func New(cfg *Config) (*Logger, error) {
	l := &Logger{
		level:  cfg.Level,
		prefix: cfg.Prefix,
	}
	if cfg.Console {
		l.consoleWriter = os.Stderr
	}

	if cfg.FilePath != "" {
		dir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.fileWriter = file
	}

	return l, nil
}

// NewDefault creates a console-only INFO logger.
func NewDefault() *Logger {
	l, _ := New(&Config{Level: INFO, Prefix: "[zerog] ", Console: true})
	return l
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Close closes any open file handle.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if closer, ok := l.fileWriter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}

	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	line := fmt.Sprintf("%s%s [%s] %s\n", l.prefix, timestamp, level.String(), msg)

	if l.consoleWriter != nil {
		l.consoleWriter.Write([]byte(line))
	}
	if l.fileWriter != nil {
		l.fileWriter.Write([]byte(line))
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(DEBUG, format, args...)
}

// Info logs an info message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(INFO, format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(WARN, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(ERROR, format, args...)
}
