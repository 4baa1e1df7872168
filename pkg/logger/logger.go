package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"strings"
	"time"
)

// LogLevel represents the severity level of a log entry
type LogLevel string

const (
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     LogLevel               `json:"level"`
	Message   string                 `json:"message"`
	Component string                 `json:"component,omitempty"`
	Operation string                 `json:"operation,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Error     string                 `json:"error,omitempty"`
	File      string                 `json:"file,omitempty"`
	Line      int                    `json:"line,omitempty"`
}

// Logger provides structured logging without leaking signed URLs or
// invite codes into the log stream.
type Logger struct {
	*log.Logger
	component string
	minLevel  LogLevel
}

// New creates a new logger instance
func New() *Logger {
	return &Logger{
		Logger:    log.New(os.Stdout, "", 0),
		component: "app",
		minLevel:  LevelInfo,
	}
}

// NewWithComponent creates a new logger instance with a specific component name
func NewWithComponent(component string) *Logger {
	return &Logger{
		Logger:    log.New(os.Stdout, "", 0),
		component: component,
		minLevel:  LevelInfo,
	}
}

// NewWithOutput creates a logger writing to w, for tests.
func NewWithOutput(component string, w io.Writer) *Logger {
	return &Logger{
		Logger:    log.New(w, "", 0),
		component: component,
		minLevel:  LevelInfo,
	}
}

// SetLevel sets the minimum log level
func (l *Logger) SetLevel(level LogLevel) {
	l.minLevel = level
}

func (l *Logger) shouldLog(level LogLevel) bool {
	levels := map[LogLevel]int{
		LevelDebug: 0,
		LevelInfo:  1,
		LevelWarn:  2,
		LevelError: 3,
	}
	return levels[level] >= levels[l.minLevel]
}

// write emits a structured log entry
func (l *Logger) write(level LogLevel, message string, fields map[string]interface{}, err error, operation string) {
	if !l.shouldLog(level) {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	if ok {
		parts := strings.Split(file, "/")
		file = parts[len(parts)-1]
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Message:   message,
		Component: l.component,
		Operation: operation,
		Fields:    sanitizeFields(fields),
		File:      file,
		Line:      line,
	}

	if err != nil {
		entry.Error = sanitizeError(err).Error()
	}

	jsonBytes, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		l.Logger.Printf("MARSHAL_ERROR: %v | ORIGINAL: %s %s", marshalErr, level, message)
		return
	}

	l.Logger.Println(string(jsonBytes))
}

// Debug logs a debug message
func (l *Logger) Debug(message string) {
	l.write(LevelDebug, message, nil, nil, "")
}

// DebugWithFields logs a debug message with additional fields
func (l *Logger) DebugWithFields(message string, fields map[string]interface{}) {
	l.write(LevelDebug, message, fields, nil, "")
}

// Info logs an info message
func (l *Logger) Info(message string) {
	l.write(LevelInfo, message, nil, nil, "")
}

// InfoWithFields logs an info message with additional fields
func (l *Logger) InfoWithFields(message string, fields map[string]interface{}) {
	l.write(LevelInfo, message, fields, nil, "")
}

// InfoWithOperation logs an info message with operation context
func (l *Logger) InfoWithOperation(operation, message string) {
	l.write(LevelInfo, message, nil, nil, operation)
}

// Warn logs a warning message
func (l *Logger) Warn(message string) {
	l.write(LevelWarn, message, nil, nil, "")
}

// WarnWithError logs a warning message with an error
func (l *Logger) WarnWithError(message string, err error) {
	l.write(LevelWarn, message, nil, err, "")
}

// Error logs an error message
func (l *Logger) Error(message string) {
	l.write(LevelError, message, nil, nil, "")
}

// ErrorWithFields logs an error message with additional fields
func (l *Logger) ErrorWithFields(message string, fields map[string]interface{}) {
	l.write(LevelError, message, fields, nil, "")
}

// ErrorWithError logs an error message with an error
func (l *Logger) ErrorWithError(message string, err error) {
	l.write(LevelError, message, nil, err, "")
}

// ErrorWithOperation logs an error message with operation context
func (l *Logger) ErrorWithOperation(operation, message string, err error) {
	l.write(LevelError, message, nil, err, operation)
}

// LogOperation logs the start and completion of an operation
func (l *Logger) LogOperation(operation string, fn func() error) error {
	l.InfoWithOperation(operation, "Operation started")

	start := time.Now()
	err := fn()
	duration := time.Since(start)

	fields := map[string]interface{}{
		"duration_ms": duration.Milliseconds(),
	}

	if err != nil {
		l.write(LevelError, "Operation failed", fields, err, operation)
	} else {
		l.write(LevelInfo, "Operation completed successfully", fields, nil, operation)
	}

	return err
}

// sanitizeFields removes or masks sensitive values from log fields
func sanitizeFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	sanitized := make(map[string]interface{})
	sensitiveKeys := []string{
		"password",
		"secret",
		"token",
		"credential",
		"invite_code",
		"invitecode",
		"blob_url",
		"signed_url",
	}

	for k, v := range fields {
		lowerKey := strings.ToLower(k)

		isSensitive := false
		for _, sensitiveKey := range sensitiveKeys {
			if strings.Contains(lowerKey, sensitiveKey) {
				isSensitive = true
				break
			}
		}

		if isSensitive {
			sanitized[k] = "[REDACTED]"
		} else if str, ok := v.(string); ok {
			sanitized[k] = sanitizeStringValue(str)
		} else {
			sanitized[k] = v
		}
	}

	return sanitized
}

// sanitizeStringValue strips query parameters from URLs, which is where
// signed blob URLs carry their tokens.
func sanitizeStringValue(value string) interface{} {
	if strings.Contains(value, "?") && (strings.Contains(value, "http://") || strings.Contains(value, "https://")) {
		parts := strings.SplitN(value, "?", 2)
		return parts[0] + "?[QUERY_PARAMS_REDACTED]"
	}
	return value
}

// sanitizeError removes sensitive information from error messages
func sanitizeError(err error) error {
	if err == nil {
		return nil
	}

	errMsg := err.Error()

	if strings.Contains(errMsg, "amazonaws.com") && strings.Contains(errMsg, "?") {
		errMsg = "blob store operation error (URL details redacted)"
	}

	return fmt.Errorf("%s", errMsg)
}
