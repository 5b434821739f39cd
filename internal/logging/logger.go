// Package logging wraps hashicorp/go-hclog behind the small Printf/Debugf
// surface the ublk frontend adapter (internal/uring, internal/ctrl) was
// already written against, so that low-level plumbing code didn't need to
// change when the project's ambient logging moved from a hand-rolled
// log.Logger to a structured, leveled one.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// LogLevel mirrors hclog's levels under the names this module already used.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) hclogLevel() hclog.Level {
	switch l {
	case LevelDebug:
		return hclog.Debug
	case LevelWarn:
		return hclog.Warn
	case LevelError:
		return hclog.Error
	default:
		return hclog.Info
	}
}

// Config holds logging configuration, loaded from the daemon's YAML config
// (see the root package's config.go) or built with DefaultConfig.
type Config struct {
	Name    string
	Level   LogLevel
	Format  string // "text" (default) or "json"
	Output  io.Writer
	Sync    bool // present for API compatibility; hclog writers are synchronous
	NoColor bool
}

// DefaultConfig returns a sensible default configuration: text output to
// stderr at info level.
func DefaultConfig() *Config {
	return &Config{Name: "longhorn", Level: LevelInfo, Format: "text", Output: os.Stderr}
}

// Logger wraps an hclog.Logger, adding the With* contextual helpers the
// queue/ctrl adapters use to tag messages with device, queue and request
// identity.
type Logger struct {
	hc hclog.Logger
}

// NewLogger builds a Logger from config (DefaultConfig() if nil).
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	color := hclog.AutoColor
	if config.NoColor {
		color = hclog.ColorOff
	}
	return &Logger{hc: hclog.New(&hclog.LoggerOptions{
		Name:       config.Name,
		Level:      config.Level.hclogLevel(),
		Output:     output,
		JSONFormat: config.Format == "json",
		Color:      color,
	})}
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// Default returns the process-wide default logger, creating it on first use.
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault replaces the process-wide default logger.
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

func (l *Logger) Debug(msg string, args ...any) { l.hc.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.hc.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.hc.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.hc.Error(msg, args...) }

func (l *Logger) Debugf(format string, args ...any) { l.hc.Debug(fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...any)  { l.hc.Info(fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)  { l.hc.Warn(fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any) { l.hc.Error(fmt.Sprintf(format, args...)) }

// Printf logs at info level, kept for call sites ported from the plain
// log.Logger era.
func (l *Logger) Printf(format string, args ...any) { l.Infof(format, args...) }

// WithDevice returns a Logger that tags every message with the ublk device
// id it concerns.
func (l *Logger) WithDevice(deviceID int) *Logger {
	return &Logger{hc: l.hc.With("device_id", deviceID)}
}

// WithQueue further tags messages with a hardware queue index.
func (l *Logger) WithQueue(queueID int) *Logger {
	return &Logger{hc: l.hc.With("queue_id", queueID)}
}

// WithRequest tags messages with a ublk request tag and op name.
func (l *Logger) WithRequest(tag int, op string) *Logger {
	return &Logger{hc: l.hc.With("tag", tag, "op", op)}
}

// WithError tags messages with an associated error value.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{hc: l.hc.With("error", err)}
}

// Global convenience functions operating on the default logger.
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
