package failures

import (
	"context"
	"errors"

	"github.com/angelmondragon/ordersettle/pkg/logger"
	"github.com/angelmondragon/ordersettle/pkg/metrics"
)

// LogSink writes failures to the structured log.
type LogSink struct {
	logg *logger.Logger
}

func NewLogSink(logg *logger.Logger) *LogSink {
	return &LogSink{logg: logg}
}

func (s *LogSink) Report(ctx context.Context, f InternalFailure) error {
	if s == nil || s.logg == nil {
		return nil
	}
	fields := map[string]any{
		"failure_source": f.Source,
		"failure_kind":   string(f.Kind),
	}
	if f.CheckoutID != "" {
		fields["checkout_id"] = f.CheckoutID
	}
	if f.EventID != "" {
		fields["event_id"] = f.EventID
	}
	for k, v := range f.Details {
		fields[k] = v
	}
	ctx = s.logg.WithFields(ctx, fields)
	err := f.Err
	if err == nil {
		err = errors.New(string(f.Kind))
	}
	s.logg.Error(ctx, "settlement.internal_failure", err)
	return nil
}

// MetricsSink counts failures by source and kind.
type MetricsSink struct {
	metrics *metrics.SettlementMetrics
}

func NewMetricsSink(m *metrics.SettlementMetrics) *MetricsSink {
	return &MetricsSink{metrics: m}
}

func (s *MetricsSink) Report(_ context.Context, f InternalFailure) error {
	if s == nil {
		return nil
	}
	s.metrics.IncInternalFailure(f.Source, string(f.Kind))
	return nil
}
