package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"
)

// Logger is the structured logging surface every reactor component takes a
// dependency on instead of reaching for the log package directly.
type Logger interface {
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	// WithFields returns a new logger that attaches fields to every
	// subsequent entry it writes.
	WithFields(fields map[string]interface{}) Logger

	// WithContext returns a new logger with the request id (if any)
	// carried in ctx attached as a field.
	WithContext(ctx context.Context) Logger
}

// Config configures a Logger built with New.
type Config struct {
	// JSONOutput enables structured JSON log lines instead of plain text.
	JSONOutput bool
	// Level is advisory metadata carried in Config; the logger itself
	// does not filter by level, leaving filtering to the surrounding
	// deployment.
	Level string
}

type defaultLogger struct {
	errorLogger *log.Logger
	warnLogger  *log.Logger
	infoLogger  *log.Logger
	debugLogger *log.Logger
	config      Config
	fields      map[string]interface{}
}

// New constructs a Logger writing INFO/DEBUG to stdout and WARN/ERROR to
// stderr, in either plain-text or JSON form.
func New(config Config) Logger {
	return &defaultLogger{
		errorLogger: log.New(os.Stderr, "[ERROR] ", log.LstdFlags|log.Lshortfile),
		warnLogger:  log.New(os.Stderr, "[WARN] ", log.LstdFlags|log.Lshortfile),
		infoLogger:  log.New(os.Stdout, "[INFO] ", log.LstdFlags|log.Lshortfile),
		debugLogger: log.New(os.Stdout, "[DEBUG] ", log.LstdFlags|log.Lshortfile),
		config:      config,
		fields:      make(map[string]interface{}),
	}
}

// NewDefault returns a plain-text logger at DEBUG level.
func NewDefault() Logger {
	return New(Config{JSONOutput: false, Level: "DEBUG"})
}

// NewJSON returns a JSON-line logger at DEBUG level, suited to being
// shipped off-box by a log collector.
func NewJSON() Logger {
	return New(Config{JSONOutput: true, Level: "DEBUG"})
}

type logEntry struct {
	Timestamp string                 `json:"timestamp,omitempty"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func (l *defaultLogger) log(level string, logger *log.Logger, message string) {
	if l.config.JSONOutput {
		entry := logEntry{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Level:     level,
			Message:   message,
		}
		if len(l.fields) > 0 {
			entry.Fields = l.fields
		}
		if data, err := json.Marshal(entry); err == nil {
			logger.Output(3, string(data))
		} else {
			logger.Output(3, fmt.Sprintf("[%s] %s %v", level, message, l.fields))
		}
		return
	}
	if len(l.fields) > 0 {
		logger.Output(3, fmt.Sprintf("%s %v", message, l.fields))
	} else {
		logger.Output(3, message)
	}
}

func (l *defaultLogger) Error(args ...interface{}) { l.log("ERROR", l.errorLogger, fmt.Sprint(args...)) }
func (l *defaultLogger) Errorf(format string, args ...interface{}) {
	l.log("ERROR", l.errorLogger, fmt.Sprintf(format, args...))
}
func (l *defaultLogger) Warn(args ...interface{}) { l.log("WARN", l.warnLogger, fmt.Sprint(args...)) }
func (l *defaultLogger) Warnf(format string, args ...interface{}) {
	l.log("WARN", l.warnLogger, fmt.Sprintf(format, args...))
}
func (l *defaultLogger) Info(args ...interface{}) { l.log("INFO", l.infoLogger, fmt.Sprint(args...)) }
func (l *defaultLogger) Infof(format string, args ...interface{}) {
	l.log("INFO", l.infoLogger, fmt.Sprintf(format, args...))
}
func (l *defaultLogger) Debug(args ...interface{}) {
	l.log("DEBUG", l.debugLogger, fmt.Sprint(args...))
}
func (l *defaultLogger) Debugf(format string, args ...interface{}) {
	l.log("DEBUG", l.debugLogger, fmt.Sprintf(format, args...))
}

func (l *defaultLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &defaultLogger{
		errorLogger: l.errorLogger,
		warnLogger:  l.warnLogger,
		infoLogger:  l.infoLogger,
		debugLogger: l.debugLogger,
		config:      l.config,
		fields:      merged,
	}
}

func (l *defaultLogger) WithContext(ctx context.Context) Logger {
	fields := make(map[string]interface{}, len(l.fields)+1)
	for k, v := range l.fields {
		fields[k] = v
	}
	if id := RequestID(ctx); id != "" {
		fields["request_id"] = id
	}
	return &defaultLogger{
		errorLogger: l.errorLogger,
		warnLogger:  l.warnLogger,
		infoLogger:  l.infoLogger,
		debugLogger: l.debugLogger,
		config:      l.config,
		fields:      fields,
	}
}
