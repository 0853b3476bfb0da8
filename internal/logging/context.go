package logging

import (
	"context"
	"log/slog"

	"krill/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldItemID is the standardized structured logging key for work-item identifiers.
	FieldItemID = "item_id"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldRunID is the standardized structured logging key for batch run correlation identifiers.
	FieldRunID = "run_id"
	// FieldEventType tags machine-parsable lifecycle events (item_start, item_done, ...).
	FieldEventType = "event_type"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []Attr {
	if ctx == nil {
		return nil
	}
	var attrs []Attr
	if id, ok := services.ItemIDFromContext(ctx); ok {
		attrs = append(attrs, String(FieldItemID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		attrs = append(attrs, String(FieldStage, stage))
	}
	if runID, ok := services.RunIDFromContext(ctx); ok {
		attrs = append(attrs, String(FieldRunID, runID))
	}
	return attrs
}

// WithContext returns a logger pre-populated with any standardized fields
// carried by ctx. A nil logger yields a no-op logger.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}

// WithItem annotates ctx with the work-item identifier.
func WithItem(ctx context.Context, id string) context.Context {
	return services.WithItemID(ctx, id)
}

// WithStage annotates ctx with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return services.WithStage(ctx, stage)
}

// WithRun annotates ctx with the batch run correlation identifier.
func WithRun(ctx context.Context, runID string) context.Context {
	return services.WithRunID(ctx, runID)
}
