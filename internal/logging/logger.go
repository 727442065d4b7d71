// Package logging provides leveled logging shared by the master and
// satellite packages.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// LogLevel represents the available log levels.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger wraps a stdlib log.Logger with level filtering, an optional
// structured (JSON) format, and bound context fields (see With,
// WithSubkernel, WithDestination, WithRequest, WithError).
type Logger struct {
	logger  *log.Logger
	level   LogLevel
	format  string
	noColor bool
	fields  []any
	mu      *sync.Mutex
}

var (
	defaultLogger *Logger
	defaultMu     sync.RWMutex
)

// Config holds logging configuration.
type Config struct {
	Level LogLevel
	// Format selects the line format: "text" (default) or "json".
	Format string
	// Sync forces every call to flush synchronously. The stdlib
	// log.Logger this wraps already writes synchronously, so this
	// only exists to accept the same config shape callers expect
	// from buffered loggers elsewhere in the stack.
	Sync bool
	// NoColor disables ANSI color in the text format. Accepted for
	// config-shape compatibility; this logger never emits color.
	NoColor bool
	Output  io.Writer
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: "text",
		Output: os.Stderr,
	}
}

// NewLogger creates a new logger from config. A nil config uses
// DefaultConfig.
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	format := config.Format
	if format == "" {
		format = "text"
	}
	return &Logger{
		logger:  log.New(output, "", log.LstdFlags),
		level:   config.Level,
		format:  format,
		noColor: config.NoColor,
		mu:      &sync.Mutex{},
	}
}

// Default returns the process-wide default logger, creating it with
// DefaultConfig on first use.
func Default() *Logger {
	defaultMu.RLock()
	if defaultLogger != nil {
		defer defaultMu.RUnlock()
		return defaultLogger
	}
	defaultMu.RUnlock()

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault replaces the process-wide default logger.
func SetDefault(logger *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}

// With returns a child logger carrying additional key-value fields on
// every subsequent call, leaving the receiver unchanged.
func (l *Logger) With(args ...any) *Logger {
	fields := make([]any, 0, len(l.fields)+len(args))
	fields = append(fields, l.fields...)
	fields = append(fields, args...)
	return &Logger{
		logger:  l.logger,
		level:   l.level,
		format:  l.format,
		noColor: l.noColor,
		fields:  fields,
		mu:      l.mu,
	}
}

// WithSubkernel binds a subkernel id to the logger's context, the way
// the master registry tags every log line for a run.
func (l *Logger) WithSubkernel(id uint32) *Logger {
	return l.With("id", id)
}

// WithDestination binds a satellite destination number to the
// logger's context.
func (l *Logger) WithDestination(dest uint8) *Logger {
	return l.With("destination", dest)
}

// WithRequest binds a mailbox request tag and operation name.
func (l *Logger) WithRequest(tag uint8, op string) *Logger {
	return l.With("tag", tag, "op", op)
}

// WithError binds an error to the logger's context.
func (l *Logger) WithError(err error) *Logger {
	return l.With("error", err)
}

func formatArgsText(args []any) string {
	if len(args) == 0 {
		return ""
	}
	result := ""
	for i := 0; i+1 < len(args); i += 2 {
		if result != "" {
			result += " "
		}
		result += fmt.Sprintf("%v=%v", args[i], args[i+1])
	}
	if result == "" {
		return ""
	}
	return " " + result
}

func (l *Logger) log(level LogLevel, prefix, msg string, args ...any) {
	if level < l.level {
		return
	}
	all := args
	if len(l.fields) > 0 {
		all = make([]any, 0, len(l.fields)+len(args))
		all = append(all, l.fields...)
		all = append(all, args...)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == "json" {
		rec := map[string]any{"level": prefix, "msg": msg}
		for i := 0; i+1 < len(all); i += 2 {
			rec[fmt.Sprintf("%v", all[i])] = all[i+1]
		}
		enc, err := json.Marshal(rec)
		if err != nil {
			l.logger.Printf("%s %s (json encode failed: %v)", prefix, msg, err)
			return
		}
		l.logger.Println(string(enc))
		return
	}

	l.logger.Printf("%s %s%s", prefix, msg, formatArgsText(all))
}

func (l *Logger) Debug(msg string, args ...any) { l.log(LevelDebug, "[DEBUG]", msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log(LevelInfo, "[INFO]", msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(LevelWarn, "[WARN]", msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log(LevelError, "[ERROR]", msg, args...) }

func (l *Logger) Debugf(format string, args ...any) {
	l.log(LevelDebug, "[DEBUG]", fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	l.log(LevelInfo, "[INFO]", fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	l.log(LevelWarn, "[WARN]", fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.log(LevelError, "[ERROR]", fmt.Sprintf(format, args...))
}

// Printf satisfies code that expects a simple printf-style logger.
func (l *Logger) Printf(format string, args ...any) {
	l.Infof(format, args...)
}

// Global convenience functions operating on the default logger.
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
