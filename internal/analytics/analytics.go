// Package analytics is the narrow fire-and-forget telemetry interface. It is
// invoked but never awaited for correctness: a tracker must not return errors
// and must not panic into the caller.
package analytics

import "go.uber.org/zap"

// Tracker records product telemetry. Implementations swallow their own
// failures.
type Tracker interface {
	TrackLoggingFailure(kind string, context map[string]any)
	TrackFeatureUsed(name string, params map[string]any)
}

// ZapTracker emits events to the structured log. Stands in for a real
// telemetry backend.
type ZapTracker struct {
	logger *zap.Logger
}

// NewZapTracker creates a ZapTracker.
func NewZapTracker(logger *zap.Logger) *ZapTracker {
	return &ZapTracker{logger: logger}
}

func (t *ZapTracker) TrackLoggingFailure(kind string, context map[string]any) {
	t.logger.Info("analytics: logging failure",
		zap.String("kind", kind),
		zap.Any("context", context),
	)
}

func (t *ZapTracker) TrackFeatureUsed(name string, params map[string]any) {
	t.logger.Info("analytics: feature used",
		zap.String("feature", name),
		zap.Any("params", params),
	)
}

// NopTracker discards all events.
type NopTracker struct{}

func (NopTracker) TrackLoggingFailure(string, map[string]any) {}
func (NopTracker) TrackFeatureUsed(string, map[string]any)    {}
