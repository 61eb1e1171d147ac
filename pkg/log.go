package pkg

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// Component identifies a subsystem for log filtering.
type Component string

// Engine component identifiers.
const (
	ComponentEngine Component = "engine"
	ComponentRx     Component = "rx"
	ComponentTx     Component = "tx"
	ComponentDMA    Component = "dma"
	ComponentHAL    Component = "hal"
	ComponentSim    Component = "sim"
	ComponentSerial Component = "serial"
)

// LogFormat specifies the output format for logging.
type LogFormat int

// Log format options.
const (
	LogFormatText LogFormat = iota // Text format (default)
	LogFormatJSON                  // JSON format
)

var (
	// logger is the active logger. The handler filters nothing; levels are
	// checked in emit so that disabled calls skip attribute assembly.
	logger atomic.Pointer[slog.Logger]

	// logLevel is the global minimum level.
	logLevel = new(slog.LevelVar)

	// componentLevels holds per-component minimum levels overriding logLevel.
	componentLevels sync.Map // Component -> slog.Level
)

func init() {
	logLevel.Set(slog.LevelWarn)
	Configure(os.Stderr, LogFormatText)
}

// Configure replaces the logger with one writing format to w.
func Configure(w io.Writer, format LogFormat) {
	opts := &slog.HandlerOptions{Level: slog.Level(-8)}
	var h slog.Handler
	switch format {
	case LogFormatJSON:
		h = slog.NewJSONHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	logger.Store(slog.New(h))
}

// SetLogFormat switches the stderr logger to format.
func SetLogFormat(format LogFormat) {
	Configure(os.Stderr, format)
}

// SetLogger replaces the logger. Its handler sees only records that pass the
// global and component levels.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger.Store(l)
	}
}

// SetLogLevel sets the global minimum level.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}

// GetLogLevel returns the global minimum level.
func GetLogLevel() slog.Level {
	return logLevel.Level()
}

// SetComponentLevel overrides the minimum level for one component, so a
// single subsystem can be traced without raising the global level.
func SetComponentLevel(component Component, level slog.Level) {
	componentLevels.Store(component, level)
}

// ClearComponentLevel removes a component override.
func ClearComponentLevel(component Component) {
	componentLevels.Delete(component)
}

// LogEnabled reports whether messages at level pass the global level.
func LogEnabled(level slog.Level) bool {
	return level >= logLevel.Level()
}

// LogEnabledFor reports whether component emits messages at level.
func LogEnabledFor(component Component, level slog.Level) bool {
	if v, ok := componentLevels.Load(component); ok {
		return level >= v.(slog.Level)
	}
	return LogEnabled(level)
}

// ComponentLogger returns the current logger with the component attribute
// bound. It applies the handler's filtering only; callers check
// [LogEnabledFor] first.
func ComponentLogger(component Component) *slog.Logger {
	return logger.Load().With("component", string(component))
}

// LogDebug logs a debug message with the given component.
func LogDebug(component Component, msg string, args ...any) {
	emit(component, slog.LevelDebug, msg, args)
}

// LogInfo logs an info message with the given component.
func LogInfo(component Component, msg string, args ...any) {
	emit(component, slog.LevelInfo, msg, args)
}

// LogWarn logs a warning message with the given component.
func LogWarn(component Component, msg string, args ...any) {
	emit(component, slog.LevelWarn, msg, args)
}

// LogError logs an error message with the given component.
func LogError(component Component, msg string, args ...any) {
	emit(component, slog.LevelError, msg, args)
}

func emit(component Component, level slog.Level, msg string, args []any) {
	if !LogEnabledFor(component, level) {
		return
	}
	attrs := make([]any, 0, len(args)+2)
	attrs = append(attrs, "component", string(component))
	attrs = append(attrs, args...)
	logger.Load().Log(context.Background(), level, msg, attrs...)
}
