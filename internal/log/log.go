// Package log provides centralized logging for loopgate using charmbracelet/log.
//
// All output goes to stderr: in hook mode stdout is reserved for the decision
// JSON consumed by the host runtime.
package log

import (
	"os"

	"github.com/charmbracelet/log"
)

// Logger is the global logger instance.
var Logger *log.Logger

func init() {
	Logger = log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    false,
		ReportTimestamp: true,
		Level:           log.WarnLevel,
	})
}

// SetLevel sets the logging level.
func SetLevel(level log.Level) {
	Logger.SetLevel(level)
}

// SetDebug toggles verbose diagnostic logging. The loop record's debug flag
// flips this on for the duration of one invocation.
func SetDebug(enabled bool) {
	if enabled {
		Logger.SetLevel(log.DebugLevel)
	} else {
		Logger.SetLevel(log.WarnLevel)
	}
}

// Debug logs a debug message.
func Debug(msg interface{}, keyvals ...interface{}) {
	Logger.Debug(msg, keyvals...)
}

// Info logs an info message.
func Info(msg interface{}, keyvals ...interface{}) {
	Logger.Info(msg, keyvals...)
}

// Warn logs a warning message.
func Warn(msg interface{}, keyvals ...interface{}) {
	Logger.Warn(msg, keyvals...)
}

// Error logs an error message.
func Error(msg interface{}, keyvals ...interface{}) {
	Logger.Error(msg, keyvals...)
}

// CloseError logs an error from a close operation if the error is not nil.
// This is useful for handling deferred close errors.
func CloseError(resource string, err error) {
	if err != nil {
		Logger.Warn("failed to close resource", "resource", resource, "error", err)
	}
}
