package logx

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Formatter is the interface for log formatters
type Formatter interface {
	Format(entry *LogEntry) ([]byte, error)
}

// LogEntry represents a single log entry
type LogEntry struct {
	Level     Level
	Message   string
	Fields    Fields
	Error     error
	Timestamp time.Time
}

// Fields is a map of structured data
type Fields map[string]interface{}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorGreen  = "\033[32m"

	colorBoldRed = "\033[1;31m"
)

// ConsoleFormatter formats logs for console output with colors
type ConsoleFormatter struct {
	config *Config
}

// NewConsoleFormatter creates a new console formatter
func NewConsoleFormatter(config *Config) *ConsoleFormatter {
	return &ConsoleFormatter{config: config}
}

// Format formats a log entry for console output
func (f *ConsoleFormatter) Format(entry *LogEntry) ([]byte, error) {
	var builder strings.Builder

	if f.config.EnableTimestamp {
		timestamp := entry.Timestamp.Format(f.config.TimeFormat)
		if f.config.EnableColors {
			builder.WriteString(colorGray)
			builder.WriteString(timestamp)
			builder.WriteString(colorReset)
		} else {
			builder.WriteString(timestamp)
		}
		builder.WriteString(" ")
	}

	builder.WriteString(f.formatLevel(entry.Level))
	builder.WriteString(" ")
	builder.WriteString(entry.Message)

	if len(entry.Fields) > 0 {
		keys := make([]string, 0, len(entry.Fields))
		for k := range entry.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			builder.WriteString(" ")
			if f.config.EnableColors {
				builder.WriteString(colorCyan)
				builder.WriteString(k)
				builder.WriteString(colorReset)
			} else {
				builder.WriteString(k)
			}
			builder.WriteString(fmt.Sprintf("=%v", entry.Fields[k]))
		}
	}

	builder.WriteString("\n")
	return []byte(builder.String()), nil
}

func (f *ConsoleFormatter) formatLevel(level Level) string {
	label := fmt.Sprintf("%-5s", level.String())
	if !f.config.EnableColors {
		return label
	}

	switch level {
	case LevelDebug:
		return colorGray + label + colorReset
	case LevelInfo:
		return colorGreen + label + colorReset
	case LevelWarn:
		return colorYellow + label + colorReset
	case LevelError:
		return colorRed + label + colorReset
	case LevelFatal:
		return colorBoldRed + label + colorReset
	default:
		return label
	}
}

// JSONFormatter formats logs as single-line JSON objects
type JSONFormatter struct {
	config *Config
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(config *Config) *JSONFormatter {
	return &JSONFormatter{config: config}
}

// Format formats a log entry as JSON
func (f *JSONFormatter) Format(entry *LogEntry) ([]byte, error) {
	payload := make(map[string]interface{}, len(entry.Fields)+4)
	for k, v := range entry.Fields {
		payload[k] = v
	}

	payload["level"] = entry.Level.String()
	payload["message"] = entry.Message
	payload["timestamp"] = entry.Timestamp.Format(time.RFC3339Nano)
	if entry.Error != nil {
		payload["error"] = entry.Error.Error()
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return append(encoded, '\n'), nil
}
