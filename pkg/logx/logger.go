package logx

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Config controls logger behavior. Loaded from the environment by default.
type Config struct {
	Level           Level
	Format          string // "console" or "json"
	TimeFormat      string
	EnableColors    bool
	EnableTimestamp bool
	Output          io.Writer
}

// DefaultConfig returns a sensible console configuration
func DefaultConfig() *Config {
	return &Config{
		Level:           LevelInfo,
		Format:          "console",
		TimeFormat:      "2006-01-02 15:04:05",
		EnableColors:    true,
		EnableTimestamp: true,
		Output:          os.Stdout,
	}
}

// LoadFromEnv builds a Config from LOG_LEVEL / LOG_FORMAT
func LoadFromEnv() *Config {
	cfg := DefaultConfig()
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.Level = ParseLevel(lvl)
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Format = format
		if format == "json" {
			cfg.EnableColors = false
		}
	}
	return cfg
}

// Logger is the main logger instance
type Logger struct {
	config    *Config
	formatter Formatter
	mu        sync.Mutex
	writer    io.Writer
	exitFunc  func(int)
}

// NewLogger creates a new logger with the given config
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}

	var formatter Formatter
	if config.Format == "json" {
		formatter = NewJSONFormatter(config)
	} else {
		formatter = NewConsoleFormatter(config)
	}

	writer := config.Output
	if writer == nil {
		writer = os.Stdout
	}

	return &Logger{
		config:    config,
		formatter: formatter,
		writer:    writer,
		exitFunc:  os.Exit,
	}
}

// SetLevel sets the log level
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Level = level
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.config.Level
}

// SetOutput sets the output writer
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer = w
}

// log is the internal logging method
func (l *Logger) log(level Level, msg string, fields Fields, err error) {
	if !l.config.Level.Enabled(level) {
		return
	}

	entry := &LogEntry{
		Level:     level,
		Message:   msg,
		Fields:    fields,
		Error:     err,
		Timestamp: time.Now(),
	}

	formatted, formatErr := l.formatter.Format(entry)
	if formatErr != nil {
		fmt.Fprintf(os.Stderr, "Error formatting log: %v\n", formatErr)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, writeErr := l.writer.Write(formatted); writeErr != nil {
		fmt.Fprintf(os.Stderr, "Error writing log: %v\n", writeErr)
	}
}

// WithField creates a new entry with a field
func (l *Logger) WithField(key string, value interface{}) *Entry {
	return newEntry(l).WithField(key, value)
}

// WithFields creates a new entry with fields
func (l *Logger) WithFields(fields Fields) *Entry {
	return newEntry(l).WithFields(fields)
}

// WithError creates a new entry with an error
func (l *Logger) WithError(err error) *Entry {
	return newEntry(l).WithError(err)
}

// exit calls the exit function (swappable for tests)
func (l *Logger) exit(code int) {
	l.exitFunc(code)
}
