// internal/utils/logger.go

// Package utils provides the shared ambient facilities: structured
// logging and rate limiting.
package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Logger is the logging interface used throughout the application.
type Logger interface {
	Debug(msg string)
	Debugf(format string, args ...interface{})
	Info(msg string)
	Infof(format string, args ...interface{})
	Warn(msg string)
	Warnf(format string, args ...interface{})
	Error(msg string)
	Errorf(format string, args ...interface{})
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}

// LogLevel represents the severity of a log message.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = [...]string{"debug", "info", "warn", "error"}

// JSONLogger emits one JSON document per line, suitable for piping into
// log collectors and for the GUI wrapper to parse.
type JSONLogger struct {
	level  LogLevel
	out    io.Writer
	fields map[string]interface{}
	mu     *sync.Mutex
}

// NewLogger creates a JSONLogger at Info level writing to stdout.
func NewLogger() Logger {
	return NewLoggerWithLevel(InfoLevel)
}

// NewLoggerWithLevel creates a JSONLogger at the given minimum level.
func NewLoggerWithLevel(level LogLevel) Logger {
	return &JSONLogger{level: level, out: os.Stdout, mu: &sync.Mutex{}}
}

// NewLoggerWithWriter creates a JSONLogger writing to w; used by tests.
func NewLoggerWithWriter(level LogLevel, w io.Writer) Logger {
	return &JSONLogger{level: level, out: w, mu: &sync.Mutex{}}
}

func (l *JSONLogger) Debug(msg string)                          { l.log(DebugLevel, msg) }
func (l *JSONLogger) Debugf(format string, args ...interface{}) { l.log(DebugLevel, fmt.Sprintf(format, args...)) }
func (l *JSONLogger) Info(msg string)                           { l.log(InfoLevel, msg) }
func (l *JSONLogger) Infof(format string, args ...interface{})  { l.log(InfoLevel, fmt.Sprintf(format, args...)) }
func (l *JSONLogger) Warn(msg string)                           { l.log(WarnLevel, msg) }
func (l *JSONLogger) Warnf(format string, args ...interface{})  { l.log(WarnLevel, fmt.Sprintf(format, args...)) }
func (l *JSONLogger) Error(msg string)                          { l.log(ErrorLevel, msg) }
func (l *JSONLogger) Errorf(format string, args ...interface{}) { l.log(ErrorLevel, fmt.Sprintf(format, args...)) }

func (l *JSONLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

func (l *JSONLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &JSONLogger{level: l.level, out: l.out, fields: merged, mu: l.mu}
}

func (l *JSONLogger) log(level LogLevel, msg string) {
	if level < l.level {
		return
	}
	doc := make(map[string]interface{}, len(l.fields)+3)
	for k, v := range l.fields {
		doc[k] = v
	}
	doc["ts"] = time.Now().UTC().Format(time.RFC3339)
	doc["level"] = levelNames[level]
	doc["msg"] = msg

	line, err := json.Marshal(doc)
	if err != nil {
		line = []byte(fmt.Sprintf(`{"level":%q,"msg":%q}`, levelNames[level], msg))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, string(line))
}

// NopLogger discards everything; the default for components whose
// caller passed no logger.
type NopLogger struct{}

func (NopLogger) Debug(string)                          {}
func (NopLogger) Debugf(string, ...interface{})         {}
func (NopLogger) Info(string)                           {}
func (NopLogger) Infof(string, ...interface{})          {}
func (NopLogger) Warn(string)                           {}
func (NopLogger) Warnf(string, ...interface{})          {}
func (NopLogger) Error(string)                          {}
func (NopLogger) Errorf(string, ...interface{})         {}
func (NopLogger) WithField(string, interface{}) Logger  { return NopLogger{} }
func (NopLogger) WithFields(map[string]interface{}) Logger {
	return NopLogger{}
}
