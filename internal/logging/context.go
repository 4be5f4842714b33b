package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	flowKey ctxKey = iota
	analysisIDKey
	elementKey
)

// correlation lists the context keys in the order their attributes are emitted.
var correlation = []struct {
	key  ctxKey
	attr string
}{
	{flowKey, "flow"},
	{analysisIDKey, "analysis_id"},
	{elementKey, "element"},
}

// WithFlow returns a context with the flow label set.
func WithFlow(ctx context.Context, label string) context.Context {
	return context.WithValue(ctx, flowKey, label)
}

// WithAnalysisID returns a context with the analysis ID set.
func WithAnalysisID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, analysisIDKey, id)
}

// WithElement returns a context with the element name set.
func WithElement(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, elementKey, name)
}

// Flow extracts the flow label from the context, or "" if absent.
func Flow(ctx context.Context) string {
	v, _ := ctx.Value(flowKey).(string)
	return v
}

// AnalysisID extracts the analysis ID from the context, or "" if absent.
func AnalysisID(ctx context.Context) string {
	v, _ := ctx.Value(analysisIDKey).(string)
	return v
}

// Element extracts the element name from the context, or "" if absent.
func Element(ctx context.Context) string {
	v, _ := ctx.Value(elementKey).(string)
	return v
}

// WithIDs sets the flow label and analysis ID on the context at once.
func WithIDs(ctx context.Context, flow, analysisID string) context.Context {
	ctx = WithFlow(ctx, flow)
	return WithAnalysisID(ctx, analysisID)
}

// attrs returns the non-empty correlation values of ctx.
func attrs(ctx context.Context) []slog.Attr {
	var out []slog.Attr
	for _, c := range correlation {
		if v, _ := ctx.Value(c.key).(string); v != "" {
			out = append(out, slog.String(c.attr, v))
		}
	}
	return out
}

// LogWith returns a logger enriched with correlation values from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, a := range attrs(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation values from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and the values appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(attrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
