// Package logging provides structured logging for the Oba LDAP server.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents the logging level.
type Level int

const (
	// LevelDebug is the most verbose level.
	LevelDebug Level = iota
	// LevelInfo is for informational messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel parses a string into a Level.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Format represents the log output format.
type Format int

const (
	// FormatText outputs logs in human-readable text format.
	FormatText Format = iota
	// FormatJSON outputs logs in JSON format.
	FormatJSON
)

// ParseFormat parses a string into a Format.
func ParseFormat(s string) Format {
	switch s {
	case "json":
		return FormatJSON
	case "text":
		return FormatText
	default:
		return FormatText
	}
}

// Logger is the interface for structured logging.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, keysAndValues ...interface{})
	// Info logs an info message with optional key-value pairs.
	Info(msg string, keysAndValues ...interface{})
	// Warn logs a warning message with optional key-value pairs.
	Warn(msg string, keysAndValues ...interface{})
	// Error logs an error message with optional key-value pairs.
	Error(msg string, keysAndValues ...interface{})
	// WithRequestID returns a new logger with the given request ID.
	WithRequestID(requestID string) Logger
	// WithFields returns a new logger with the given fields.
	WithFields(keysAndValues ...interface{}) Logger
	// WithSource returns a new logger tagged with an origin subsystem.
	WithSource(source string) Logger
	// WithUser returns a new logger tagged with the acting identity.
	WithUser(user string) Logger
	// SetLevel changes the minimum level for this logger and every logger
	// derived from the same root.
	SetLevel(level Level)
	// SetFormat changes the output format for this logger and every
	// logger derived from the same root.
	SetFormat(format Format)
	// SetStore attaches a queryable log store. Entries logged through
	// this logger and every logger derived from it are mirrored there.
	SetStore(store *LogStore)
	// GetStore returns the attached log store, or nil.
	GetStore() *LogStore
}

// logger is the default implementation of Logger.
type logger struct {
	level     Level
	format    Format
	output    io.Writer
	fields    map[string]interface{}
	mu        sync.Mutex
	requestID string
	source    string
	user      string
	core      *loggerCore
}

// loggerCore is shared across every logger derived from one root, so a
// store attached or a level changed after derived loggers exist still
// affects all of them.
type loggerCore struct {
	mu     sync.Mutex
	store  *LogStore
	level  *Level
	format *Format
}

// Config holds the logger configuration. The rotation fields apply only
// when Output names a file.
type Config struct {
	Level  string
	Format string
	Output string
	// MaxSizeMB rotates the log file when it exceeds this size. Zero
	// means the rotation default (100 MB).
	MaxSizeMB int
	// MaxBackups caps how many rotated files are kept. Zero keeps all.
	MaxBackups int
	// MaxAgeDays removes rotated files older than this. Zero keeps all.
	MaxAgeDays int
	// Compress gzips rotated files.
	Compress bool
}

// New creates a new Logger with the given configuration. File outputs are
// wrapped in a rotating writer so a long-running server does not grow one
// log file forever.
func New(cfg Config) Logger {
	var output io.Writer
	switch cfg.Output {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		output = &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
	}

	return &logger{
		level:  ParseLevel(cfg.Level),
		format: ParseFormat(cfg.Format),
		output: output,
		fields: make(map[string]interface{}),
		core:   &loggerCore{},
	}
}

// NewDefault creates a new Logger with default settings.
func NewDefault() Logger {
	return &logger{
		level:  LevelInfo,
		format: FormatText,
		output: os.Stdout,
		fields: make(map[string]interface{}),
		core:   &loggerCore{},
	}
}

// NewNop creates a no-op logger that discards all output.
func NewNop() Logger {
	return &nopLogger{}
}

// Debug logs a debug message.
func (l *logger) Debug(msg string, keysAndValues ...interface{}) {
	l.log(LevelDebug, msg, keysAndValues...)
}

// Info logs an info message.
func (l *logger) Info(msg string, keysAndValues ...interface{}) {
	l.log(LevelInfo, msg, keysAndValues...)
}

// Warn logs a warning message.
func (l *logger) Warn(msg string, keysAndValues ...interface{}) {
	l.log(LevelWarn, msg, keysAndValues...)
}

// Error logs an error message.
func (l *logger) Error(msg string, keysAndValues ...interface{}) {
	l.log(LevelError, msg, keysAndValues...)
}

// WithRequestID returns a new logger with the given request ID.
func (l *logger) WithRequestID(requestID string) Logger {
	newLogger := l.clone()
	newLogger.requestID = requestID
	return newLogger
}

// WithSource returns a new logger tagged with an origin subsystem.
func (l *logger) WithSource(source string) Logger {
	newLogger := l.clone()
	newLogger.source = source
	return newLogger
}

// WithUser returns a new logger tagged with the acting identity.
func (l *logger) WithUser(user string) Logger {
	newLogger := l.clone()
	newLogger.user = user
	return newLogger
}

// SetLevel changes the minimum level for this logger's whole family.
func (l *logger) SetLevel(level Level) {
	if l.core == nil {
		l.level = level
		return
	}
	l.core.mu.Lock()
	l.core.level = &level
	l.core.mu.Unlock()
}

// SetFormat changes the output format for this logger's whole family.
func (l *logger) SetFormat(format Format) {
	if l.core == nil {
		l.format = format
		return
	}
	l.core.mu.Lock()
	l.core.format = &format
	l.core.mu.Unlock()
}

// SetStore attaches a queryable log store.
func (l *logger) SetStore(store *LogStore) {
	if l.core == nil {
		l.core = &loggerCore{}
	}
	l.core.mu.Lock()
	l.core.store = store
	l.core.mu.Unlock()
}

// GetStore returns the attached log store, or nil.
func (l *logger) GetStore() *LogStore {
	if l.core == nil {
		return nil
	}
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	return l.core.store
}

// WithFields returns a new logger with the given fields.
func (l *logger) WithFields(keysAndValues ...interface{}) Logger {
	newLogger := l.clone()
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			newLogger.fields[key] = keysAndValues[i+1]
		}
	}
	return newLogger
}

// clone creates a copy of the logger.
func (l *logger) clone() *logger {
	newFields := make(map[string]interface{}, len(l.fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	return &logger{
		level:     l.level,
		format:    l.format,
		output:    l.output,
		fields:    newFields,
		requestID: l.requestID,
		source:    l.source,
		user:      l.user,
		core:      l.core,
	}
}

// log writes a log entry.
func (l *logger) log(level Level, msg string, keysAndValues ...interface{}) {
	minLevel := l.level
	format := l.format
	if l.core != nil {
		l.core.mu.Lock()
		if l.core.level != nil {
			minLevel = *l.core.level
		}
		if l.core.format != nil {
			format = *l.core.format
		}
		l.core.mu.Unlock()
	}
	if level < minLevel {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Build the log entry
	entry := make(map[string]interface{})
	entry["ts"] = time.Now().UTC().Format(time.RFC3339)
	entry["level"] = level.String()
	entry["msg"] = msg

	// Add request ID if present
	if l.requestID != "" {
		entry["request_id"] = l.requestID
	}

	// Add source if present
	if l.source != "" {
		entry["source"] = l.source
	}

	// Add user if present
	if l.user != "" {
		entry["user"] = l.user
	}

	// Add base fields
	for k, v := range l.fields {
		entry[k] = v
	}

	// Add key-value pairs
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			entry[key] = keysAndValues[i+1]
		}
	}

	// Format and write
	var output string
	if format == FormatJSON {
		data, err := json.Marshal(entry)
		if err != nil {
			output = fmt.Sprintf(`{"ts":"%s","level":"error","msg":"failed to marshal log entry"}`, time.Now().UTC().Format(time.RFC3339))
		} else {
			output = string(data)
		}
	} else {
		output = l.formatText(entry)
	}

	fmt.Fprintln(l.output, output)

	if l.core == nil {
		return
	}
	l.core.mu.Lock()
	store := l.core.store
	l.core.mu.Unlock()
	if store != nil {
		extra := make(map[string]interface{})
		for i := 0; i < len(keysAndValues)-1; i += 2 {
			if key, ok := keysAndValues[i].(string); ok {
				extra[key] = keysAndValues[i+1]
			}
		}
		_ = store.Write(level.String(), msg, l.source, l.user, l.requestID, extra)
	}
}

// formatText formats a log entry as text.
func (l *logger) formatText(entry map[string]interface{}) string {
	ts := entry["ts"]
	level := entry["level"]
	msg := entry["msg"]

	result := fmt.Sprintf("%s [%s] %s", ts, level, msg)

	// Add request ID if present
	if reqID, ok := entry["request_id"]; ok {
		result += fmt.Sprintf(" request_id=%v", reqID)
	}

	// Add other fields
	for k, v := range entry {
		if k == "ts" || k == "level" || k == "msg" || k == "request_id" {
			continue
		}
		result += fmt.Sprintf(" %s=%v", k, v)
	}

	return result
}

// nopLogger is a no-op logger that discards all output.
type nopLogger struct{}

func (n *nopLogger) Debug(_ string, _ ...interface{})          {}
func (n *nopLogger) Info(_ string, _ ...interface{})           {}
func (n *nopLogger) Warn(_ string, _ ...interface{})           {}
func (n *nopLogger) Error(_ string, _ ...interface{})          {}
func (n *nopLogger) WithRequestID(_ string) Logger             { return n }
func (n *nopLogger) WithFields(_ ...interface{}) Logger        { return n }
func (n *nopLogger) WithSource(_ string) Logger                { return n }
func (n *nopLogger) WithUser(_ string) Logger                  { return n }
func (n *nopLogger) SetLevel(_ Level)                          {}
func (n *nopLogger) SetFormat(_ Format)                        {}
func (n *nopLogger) SetStore(_ *LogStore)                      {}
func (n *nopLogger) GetStore() *LogStore                       { return nil }
