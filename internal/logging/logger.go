// Package logging provides the process-wide structured logger.
//
// The call surface mirrors station's simple Info/Debug/Error functions so
// callers never touch an *slog.Logger directly, but the backing handler is
// slog + a rotating file sink, the way agent-deck wires its own logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Component tags, one per subsystem package.
const (
	CompWorkspace     = "workspace"
	CompContainer     = "container"
	CompMCP           = "mcp"
	CompHarnessConfig = "harnessconfig"
	CompLibrary       = "library"
	CompPTY           = "pty"
	CompCrypto        = "crypto"
)

// Config controls where and how logs are written.
type Config struct {
	// LogDir is the directory rotated log files are written to. Empty
	// disables file rotation; logs still go to stderr.
	LogDir string

	// Debug enables debug-level logging.
	Debug bool

	// MaxSizeMB is the max size in MB before rotation (default 10).
	MaxSizeMB int

	// MaxBackups is the number of rotated files to keep (default 5).
	MaxBackups int

	// MaxAgeDays is days to keep rotated files (default 10).
	MaxAgeDays int

	// Compress rotated files (default false: the zero value is used as is).
	Compress bool
}

type state struct {
	debugEnabled bool
	logger       *slog.Logger
	lumberjackW  *lumberjack.Logger
}

var (
	mu      sync.RWMutex
	current *state
)

// Initialize sets up the global logger. All output always goes to stderr
// (to avoid interfering with MCP stdio transports, which use stdout for the
// wire protocol) in addition to any rotated file sink configured.
func Initialize(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 5
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 10
	}

	var writers []io.Writer
	writers = append(writers, os.Stderr)

	var lj *lumberjack.Logger
	if cfg.LogDir != "" {
		lj = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, "openagentd.log"),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		writers = append(writers, lj)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: level,
	})

	current = &state{
		debugEnabled: cfg.Debug,
		logger:       slog.New(handler),
		lumberjackW:  lj,
	}
}

func get() *state {
	mu.RLock()
	s := current
	mu.RUnlock()
	if s == nil {
		return &state{logger: slog.New(slog.NewTextHandler(os.Stderr, nil))}
	}
	return s
}

// ForComponent returns a component-tagged logger, e.g. for a subsystem that
// wants structured attrs beyond the global Info/Debug/Error surface.
func ForComponent(component string) *slog.Logger {
	return get().logger.With(slog.String("component", component))
}

// Info logs an informational message, always shown.
func Info(component, format string, args ...any) {
	ForComponent(component).Info(sprintf(format, args...))
}

// Debug logs a debug message, shown only when debug mode is enabled.
func Debug(component, format string, args ...any) {
	s := get()
	if !s.debugEnabled {
		return
	}
	s.logger.With(slog.String("component", component)).Debug(sprintf(format, args...))
}

// Error logs an error message, always shown.
func Error(component, format string, args ...any) {
	ForComponent(component).Error(sprintf(format, args...))
}

// Warn logs a warning message, always shown.
func Warn(component, format string, args ...any) {
	ForComponent(component).Warn(sprintf(format, args...))
}

// IsDebugEnabled reports whether debug logging is currently active.
func IsDebugEnabled() bool {
	return get().debugEnabled
}

// NewBuildLogWriter returns a rotating writer for a single container's build
// transcript, stored beside the container's rootfs directory.
func NewBuildLogWriter(path string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    20,
		MaxBackups: 2,
		MaxAge:     30,
		Compress:   true,
	}
}

// Shutdown closes the rotating file sink, if any.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()
	if current != nil && current.lumberjackW != nil {
		current.lumberjackW.Close()
	}
	current = nil
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
