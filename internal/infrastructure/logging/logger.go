package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/nerrad567/gray-logic-thermostat/internal/infrastructure/config"
)

// Logger wraps slog.Logger with Gray Logic-specific functionality.
//
// It provides structured logging with default fields and level-based filtering.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a new Logger with the specified configuration.
//
// It configures:
//   - Output format (JSON for production, text for development)
//   - Log level filtering
//   - Default fields (service name, version)
//   - Output destination
//
// Parameters:
//   - cfg: Logging configuration from config.yaml
//   - version: Application version for default field
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}
	return newWithWriter(output, cfg, version)
}

// newWithWriter builds the handler chain on an arbitrary writer.
func newWithWriter(output io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "graylogic-thermostat"),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	hallLogger := logger.With("thermostat", "varmegolv_kontroll_hall")
//	hallLogger.Info("heater on") // Includes thermostat=varmegolv_kontroll_hall
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// DebugSwitch forces debug output for the loggers derived from it,
// regardless of the configured level. Each thermostat owns one so its
// debug_logging option can be toggled at runtime.
//
// The zero value is off and ready to use.
type DebugSwitch struct {
	on atomic.Bool
}

// Set turns forced debug output on or off.
func (s *DebugSwitch) Set(on bool) {
	s.on.Store(on)
}

// Enabled reports whether forced debug output is on.
func (s *DebugSwitch) Enabled() bool {
	return s.on.Load()
}

// WithDebugSwitch returns a Logger that emits every record while sw is on
// and defers to the configured level while it is off.
func (l *Logger) WithDebugSwitch(sw *DebugSwitch) *Logger {
	return &Logger{
		Logger: slog.New(&switchHandler{inner: l.Handler(), sw: sw}),
	}
}

// switchHandler widens the inner handler's level filter while its switch is on.
// slog.Logger consults Enabled before Handle, and the built-in handlers do
// not re-check the level inside Handle.
type switchHandler struct {
	inner slog.Handler
	sw    *DebugSwitch
}

func (h *switchHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.sw.Enabled() || h.inner.Enabled(ctx, level)
}

func (h *switchHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

func (h *switchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &switchHandler{inner: h.inner.WithAttrs(attrs), sw: h.sw}
}

func (h *switchHandler) WithGroup(name string) slog.Handler {
	return &switchHandler{inner: h.inner.WithGroup(name), sw: h.sw}
}

// Default creates a default logger for use before configuration is loaded.
//
// This logger outputs to stdout in JSON format at info level.
// It should only be used during early startup before config is available.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
