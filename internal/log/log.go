// Package log provides structured debug logging for arena.
// Entries carry a level, a category and key=value fields, and are only written
// once Init has been called (via --debug or ARENA_DEBUG).
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel converts a level name to a Level, defaulting to LevelDebug.
func ParseLevel(s string) Level {
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(i)
		}
	}
	return LevelDebug
}

// Category groups related log messages.
type Category string

const (
	CatConfig  Category = "config"  // Configuration loading/saving
	CatOrch    Category = "orch"    // Experiment orchestrator: trials, waits, sentinels
	CatWorker  Category = "worker"  // Background workers and their coordinator
	CatStore   Category = "store"   // Shared state store (redis / memory)
	CatBus     Category = "bus"     // Command bus (mqtt / local)
	CatHistory Category = "history" // SQLite run history
	CatBackup  Category = "backup"  // Experiment backup job
	CatMonitor Category = "monitor" // Live monitor TUI
	CatSensor  Category = "sensor"  // Serial sensor reads
)

// timeLayout is second precision; rig logs are read next to experiment.log.
const timeLayout = "2006-01-02T15:04:05"

// Logger provides structured logging.
type Logger struct {
	mu       sync.Mutex
	closer   io.Closer
	writer   io.Writer
	enabled  bool
	minLevel Level
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Init opens path for appending and routes the package logger to it.
// The returned function closes the file.
func Init(path string) (func(), error) {
	var initErr error
	once.Do(func() {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G304: operator-chosen debug log path
		if err != nil {
			initErr = err
			return
		}
		defaultLogger = &Logger{closer: f, writer: f, enabled: true, minLevel: LevelDebug}
	})
	if initErr != nil {
		return nil, initErr
	}
	l := defaultLogger
	if l == nil || l.closer == nil {
		return nil, fmt.Errorf("debug log already initialized")
	}
	return func() { _ = l.closer.Close() }, nil
}

// InitWriter points the package logger at w. Tests use it to capture output.
func InitWriter(w io.Writer) {
	defaultLogger = &Logger{writer: w, enabled: true, minLevel: LevelDebug}
}

func (l *Logger) update(fn func(*Logger)) {
	l.mu.Lock()
	fn(l)
	l.mu.Unlock()
}

// SetEnabled toggles logging on/off.
func SetEnabled(enabled bool) {
	if l := defaultLogger; l != nil {
		l.update(func(l *Logger) { l.enabled = enabled })
	}
}

// SetMinLevel drops entries below level.
func SetMinLevel(level Level) {
	if l := defaultLogger; l != nil {
		l.update(func(l *Logger) { l.minLevel = level })
	}
}

func Debug(cat Category, msg string, fields ...any) { write(LevelDebug, cat, msg, fields) }
func Info(cat Category, msg string, fields ...any)  { write(LevelInfo, cat, msg, fields) }
func Warn(cat Category, msg string, fields ...any)  { write(LevelWarn, cat, msg, fields) }
func Error(cat Category, msg string, fields ...any) { write(LevelError, cat, msg, fields) }

// ErrorErr logs at error level with err appended as the "error" field.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	errText := "<nil>"
	if err != nil {
		errText = err.Error()
	}
	write(LevelError, cat, msg, append(fields, "error", errText))
}

// Format renders a single entry:
//
//	2025-12-06T10:45:00 [ERROR] [orch] message key=value key2=value2
func Format(ts time.Time, level Level, cat Category, msg string, fields ...any) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s [%s] [%s] %s", ts.Format(timeLayout), level, cat, msg)
	for i := 0; i < len(fields); i += 2 {
		if i+1 == len(fields) {
			fmt.Fprintf(&sb, " %v=<missing>", fields[i])
			break
		}
		fmt.Fprintf(&sb, " %v=%v", fields[i], fields[i+1])
	}
	sb.WriteByte('\n')
	return sb.String()
}

func write(level Level, cat Category, msg string, fields []any) {
	l := defaultLogger
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled || level < l.minLevel || l.writer == nil {
		return
	}
	_, _ = io.WriteString(l.writer, Format(time.Now(), level, cat, msg, fields...))
}
