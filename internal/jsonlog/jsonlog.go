package jsonlog

import (
	"encoding/json"
	"io"
	"os"
	"runtime/debug"
	"sync"
	"time"
)

// Level is the severity of a log entry.
type Level int8

// Levels in increasing order of severity. LevelOff silences the logger completely.
const (
	LevelDebug Level = iota // Verbose request details, only emitted when debugging.
	LevelInfo               // General informational messages.
	LevelError              // Errors the application recovers from.
	LevelFatal              // Errors after which the application exits.
	LevelOff                // No logging at all.
)

// String converts the log level to its string representation.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return ""
	}
}

// Logger writes one JSON object per line to out, dropping entries below minLevel.
type Logger struct {
	out      io.Writer
	minLevel Level
	mu       sync.Mutex // Serializes writes so concurrent entries never interleave.
}

// New creates a new Logger instance.
func New(out io.Writer, minLevel Level) *Logger {
	return &Logger{
		out:      out,
		minLevel: minLevel,
	}
}

// Enabled reports whether entries at the given level would be written.
func (l *Logger) Enabled(level Level) bool {
	return level >= l.minLevel && l.minLevel != LevelOff
}

// PrintDebug logs a message at the DEBUG level.
func (l *Logger) PrintDebug(message string, properties map[string]string) {
	l.print(LevelDebug, message, properties)
}

// PrintInfo logs a message at the INFO level.
func (l *Logger) PrintInfo(message string, properties map[string]string) {
	l.print(LevelInfo, message, properties)
}

// PrintError logs an error at the ERROR level, including a stack trace.
func (l *Logger) PrintError(err error, properties map[string]string) {
	l.print(LevelError, err.Error(), properties)
}

// PrintFatal logs an error at the FATAL level and then exits the application.
func (l *Logger) PrintFatal(err error, properties map[string]string) {
	l.print(LevelFatal, err.Error(), properties)
	os.Exit(1)
}

func (l *Logger) print(level Level, message string, properties map[string]string) (int, error) {
	if !l.Enabled(level) {
		return 0, nil
	}

	aux := struct {
		Level      string            `json:"level"`
		Time       string            `json:"time"`
		Message    string            `json:"message"`
		Properties map[string]string `json:"properties,omitempty"`
		Trace      string            `json:"trace,omitempty"`
	}{
		Level:      level.String(),
		Time:       time.Now().UTC().Format(time.RFC3339),
		Message:    message,
		Properties: properties,
	}

	if level >= LevelError {
		aux.Trace = string(debug.Stack())
	}

	line, err := json.Marshal(aux)
	if err != nil {
		line = []byte(LevelError.String() + ": unable to marshal log message: " + err.Error())
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.out.Write(append(line, '\n'))
}

// Write lets the Logger stand in as the destination of a standard library *log.Logger,
// such as http.Server.ErrorLog. Everything written this way is logged at the ERROR level.
func (l *Logger) Write(message []byte) (n int, err error) {
	return l.print(LevelError, string(message), nil)
}
