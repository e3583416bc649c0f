// Package log routes the SDK's structured logging (slog) through zap.
//
// The mutator runs inside the fuzzer process, so records go to stderr or to a
// file and never to stdout, which belongs to the host's UI.
package log

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/reglet-dev/aflpp-mutator-sdk/internal/callctx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapHandler implements slog.Handler on top of a zapcore.Core.
type ZapHandler struct {
	core   zapcore.Core
	fields []zap.Field
	opts   handlerConfig
}

// HandlerOption configures the ZapHandler.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	level     slog.Level
	addSource bool
}

// defaultHandlerConfig returns the default configuration.
func defaultHandlerConfig() handlerConfig {
	return handlerConfig{
		level: slog.LevelInfo,
	}
}

// WithLevel sets the minimum log level to report.
func WithLevel(level slog.Level) HandlerOption {
	return func(c *handlerConfig) {
		c.level = level
	}
}

// WithSource enables reporting of source location (file/line).
func WithSource(enabled bool) HandlerOption {
	return func(c *handlerConfig) {
		c.addSource = enabled
	}
}

// NewHandler creates a new ZapHandler writing to core.
func NewHandler(core zapcore.Core, opts ...HandlerOption) *ZapHandler {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &ZapHandler{core: core, opts: cfg}
}

// Enabled reports whether the handler handles records at the given level.
func (h *ZapHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.level && h.core.Enabled(zapLevel(level))
}

// Handle converts record into a zap entry. Per-call attributes (session,
// entry point) are taken from ctx, falling back to the bridge's current call.
func (h *ZapHandler) Handle(ctx context.Context, record slog.Record) error {
	ent := zapcore.Entry{
		Level:   zapLevel(record.Level),
		Time:    record.Time,
		Message: record.Message,
	}
	if h.opts.addSource && record.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{record.PC})
		f, _ := frames.Next()
		ent.Caller = zapcore.NewEntryCaller(f.PC, f.File, f.Line, true)
	}

	ce := h.core.Check(ent, nil)
	if ce == nil {
		return nil
	}

	if ctx == nil || ctx == context.Background() {
		ctx = callctx.Current()
	}
	callAttrs := callctx.Attrs(ctx)

	fields := make([]zap.Field, 0, len(callAttrs)+len(h.fields)+record.NumAttrs())
	for _, attr := range callAttrs {
		fields = appendField(fields, attr)
	}
	fields = append(fields, h.fields...)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendField(fields, attr)
		return true
	})

	ce.Write(fields...)
	return nil
}

// WithAttrs returns a new ZapHandler that includes the given attributes.
func (h *ZapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := h.clone()
	for _, attr := range attrs {
		clone.fields = appendField(clone.fields, attr)
	}
	return clone
}

// WithGroup returns a new ZapHandler that nests later attributes under name.
func (h *ZapHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := h.clone()
	clone.fields = append(clone.fields, zap.Namespace(name))
	return clone
}

func (h *ZapHandler) clone() *ZapHandler {
	c := *h
	c.fields = append([]zap.Field(nil), h.fields...)
	return &c
}

// zapLevel maps slog levels onto the nearest zap level at or below them.
func zapLevel(level slog.Level) zapcore.Level {
	switch {
	case level >= slog.LevelError:
		return zapcore.ErrorLevel
	case level >= slog.LevelWarn:
		return zapcore.WarnLevel
	case level >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
