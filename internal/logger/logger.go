// Package logger provides verbose logging for the fabric CLI.
// When verbose mode is enabled via the --verbose flag, debug messages
// are printed to stderr to help users follow a build. Long-running
// servers switch to JSON output so logs can be collected.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Format selects how log lines are written.
type Format string

// Available formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
	format            = FormatText
	jsonLog           = newJSONLogger(os.Stderr)
)

func newJSONLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	jsonLog = newJSONLogger(w)
}

// SetFormat switches between text and JSON output.
func SetFormat(f Format) {
	mu.Lock()
	defer mu.Unlock()
	if f == FormatJSON {
		format = FormatJSON
		return
	}
	format = FormatText
}

func emit(level slog.Level, tag, msg string, force bool) {
	mu.Lock()
	defer mu.Unlock()
	if !verbose && !force {
		return
	}
	if format == FormatJSON {
		jsonLog.Log(context.Background(), level, msg)
		return
	}
	fmt.Fprintf(output, "[%s] %s\n", tag, msg)
}

// Debug prints a message if verbose mode is enabled.
func Debug(f string, args ...any) {
	emit(slog.LevelDebug, "DEBUG", fmt.Sprintf(f, args...), false)
}

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.Lock()
	defer mu.Unlock()
	if !verbose {
		return
	}
	if format == FormatJSON {
		jsonLog.Info("section", slog.String("name", name))
		return
	}
	fmt.Fprintf(output, "\n=== %s ===\n", name)
}

// Info prints an informational message if verbose mode is enabled.
func Info(f string, args ...any) {
	emit(slog.LevelInfo, "INFO", fmt.Sprintf(f, args...), false)
}

// Warn prints a warning message if verbose mode is enabled.
func Warn(f string, args ...any) {
	emit(slog.LevelWarn, "WARN", fmt.Sprintf(f, args...), false)
}

// Error prints an error message regardless of verbose mode.
func Error(f string, args ...any) {
	emit(slog.LevelError, "ERROR", fmt.Sprintf(f, args...), true)
}
