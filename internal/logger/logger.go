package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config holds logger configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or a file path
}

// state is the package logger's mutable state. Level changes go through
// levelVar and take effect on the live handler without rebuilding it;
// format and output changes swap the handler under the mutex.
var state struct {
	mu       sync.Mutex
	levelVar slog.LevelVar
	format   string
	output   io.Writer
	color    bool
	log      *slog.Logger
}

func init() {
	state.output = os.Stdout
	state.color = isTerminal(os.Stdout.Fd())
	state.format = "text"
	state.levelVar.Set(slog.LevelInfo)
	state.log = slog.New(newHandler())
}

// newHandler builds a handler for the current format and output.
// Callers hold state.mu.
func newHandler() slog.Handler {
	opts := &slog.HandlerOptions{Level: &state.levelVar}
	if state.format == "json" {
		return slog.NewJSONHandler(state.output, opts)
	}
	return NewTextHandler(state.output, opts, state.color)
}

// ParseLevel maps a level name in any case to its slog level.
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	}
	return 0, false
}

// Init applies cfg to the package logger. Output can be "stdout",
// "stderr", or a file path; files are opened append-only and never
// colored. Empty fields leave the current setting in place.
func Init(cfg Config) error {
	state.mu.Lock()
	if cfg.Output != "" {
		switch strings.ToLower(cfg.Output) {
		case "stdout":
			state.output = os.Stdout
			state.color = isTerminal(os.Stdout.Fd())
		case "stderr":
			state.output = os.Stderr
			state.color = isTerminal(os.Stderr.Fd())
		default:
			f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				state.mu.Unlock()
				return fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
			}
			state.output = f
			state.color = false
		}
	}
	if f := strings.ToLower(cfg.Format); f == "text" || f == "json" {
		state.format = f
	}
	state.log = slog.New(newHandler())
	state.mu.Unlock()

	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}
	return nil
}

// InitWithWriter points the package logger at w. Primarily for tests.
func InitWithWriter(w io.Writer, level, format string, enableColor bool) {
	state.mu.Lock()
	state.output = w
	state.color = enableColor
	if f := strings.ToLower(format); f == "text" || f == "json" {
		state.format = f
	}
	state.log = slog.New(newHandler())
	state.mu.Unlock()

	if level != "" {
		SetLevel(level)
	}
}

// SetLevel changes the minimum level at runtime. Unknown names are
// ignored.
func SetLevel(level string) {
	if lv, ok := ParseLevel(level); ok {
		state.levelVar.Set(lv)
	}
}

// SetFormat switches between "text" and "json" output. Anything else is
// ignored.
func SetFormat(format string) {
	format = strings.ToLower(format)
	if format != "text" && format != "json" {
		return
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	state.format = format
	state.log = slog.New(newHandler())
}

func current() *slog.Logger {
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.log
}

// ============================================================================
// Structured logging API
// ============================================================================

// Debug logs at debug level with structured fields.
// Usage: Debug("message", "key1", value1, "key2", value2)
func Debug(msg string, args ...any) {
	current().Debug(msg, args...)
}

// Info logs at info level with structured fields.
func Info(msg string, args ...any) {
	current().Info(msg, args...)
}

// Warn logs at warn level with structured fields.
func Warn(msg string, args ...any) {
	current().Warn(msg, args...)
}

// Error logs at error level with structured fields.
func Error(msg string, args ...any) {
	current().Error(msg, args...)
}

// ============================================================================
// Context-aware logging API
// ============================================================================

// DebugCtx logs at debug level, leading with the attributes carried by
// ctx (see ContextWithAttrs).
func DebugCtx(ctx context.Context, msg string, args ...any) {
	logCtx(ctx, slog.LevelDebug, msg, args)
}

// InfoCtx logs at info level with context attributes.
func InfoCtx(ctx context.Context, msg string, args ...any) {
	logCtx(ctx, slog.LevelInfo, msg, args)
}

// WarnCtx logs at warn level with context attributes.
func WarnCtx(ctx context.Context, msg string, args ...any) {
	logCtx(ctx, slog.LevelWarn, msg, args)
}

// ErrorCtx logs at error level with context attributes.
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	logCtx(ctx, slog.LevelError, msg, args)
}

func logCtx(ctx context.Context, level slog.Level, msg string, args []any) {
	l := current()
	if !l.Enabled(ctx, level) {
		return
	}
	if attrs := ContextAttrs(ctx); len(attrs) != 0 {
		// Carried attrs go first so session tags lead every line.
		merged := make([]any, 0, len(attrs)+len(args))
		for _, a := range attrs {
			merged = append(merged, a)
		}
		args = append(merged, args...)
	}
	l.Log(ctx, level, msg, args...)
}
