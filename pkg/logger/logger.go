package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level is the logging severity level.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

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

var (
	mu       sync.RWMutex
	minLevel = INFO
	output   io.Writer = os.Stderr
)

// SetLevel sets the minimum level that will be written.
func SetLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = level
}

// SetOutput redirects log output (tests, log files).
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w != nil {
		output = w
	}
}

func logf(level Level, component, msg string, fields map[string]interface{}) {
	mu.RLock()
	min := minLevel
	w := output
	mu.RUnlock()
	if level < min {
		return
	}

	var b strings.Builder
	b.WriteString(time.Now().Format("2006-01-02 15:04:05.000"))
	b.WriteString(" [")
	b.WriteString(level.String())
	b.WriteString("] [")
	b.WriteString(component)
	b.WriteString("] ")
	b.WriteString(msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(" ")
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(formatFieldValue(fields[k]))
		}
	}
	b.WriteString("\n")

	mu.Lock()
	fmt.Fprint(w, b.String())
	mu.Unlock()
}

func formatFieldValue(v interface{}) string {
	switch tv := v.(type) {
	case string:
		if strings.ContainsAny(tv, " \t\n\"") {
			return fmt.Sprintf("%q", tv)
		}
		return tv
	case error:
		return fmt.Sprintf("%q", tv.Error())
	default:
		return fmt.Sprintf("%v", tv)
	}
}

// DebugC logs a debug message for a component.
func DebugC(component, msg string) {
	logf(DEBUG, component, msg, nil)
}

// DebugCF logs a debug message with structured fields.
func DebugCF(component, msg string, fields map[string]interface{}) {
	logf(DEBUG, component, msg, fields)
}

// InfoC logs an info message for a component.
func InfoC(component, msg string) {
	logf(INFO, component, msg, nil)
}

// InfoCF logs an info message with structured fields.
func InfoCF(component, msg string, fields map[string]interface{}) {
	logf(INFO, component, msg, fields)
}

// WarnC logs a warning for a component.
func WarnC(component, msg string) {
	logf(WARN, component, msg, nil)
}

// WarnCF logs a warning with structured fields.
func WarnCF(component, msg string, fields map[string]interface{}) {
	logf(WARN, component, msg, fields)
}

// ErrorC logs an error for a component.
func ErrorC(component, msg string) {
	logf(ERROR, component, msg, nil)
}

// ErrorCF logs an error with structured fields.
func ErrorCF(component, msg string, fields map[string]interface{}) {
	logf(ERROR, component, msg, fields)
}
