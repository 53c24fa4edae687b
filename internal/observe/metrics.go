// Package observe provides voxture's OpenTelemetry metric instruments and
// the Prometheus exporter bridge behind the dashboard's /metrics route.
//
// Tests should use NewMetrics with a ManualReader-backed MeterProvider to
// avoid cross-test pollution.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all voxture metrics.
const meterName = "github.com/teslashibe/voxture"

// Request outcomes recorded on RecognizeRequests.
const (
	StatusOK        = "ok"
	StatusTransport = "transport_error"
	StatusMalformed = "malformed"
)

// Metrics holds the metric instruments.
// The underlying OTel types handle their own synchronisation.
type Metrics struct {
	// Ticks counts sampling ticks. Attribute "outcome": dispatched,
	// no_frame, device_lost.
	Ticks metric.Int64Counter

	// RecognizeRequests counts completed recognition calls by "status".
	RecognizeRequests metric.Int64Counter

	// RecognizeDuration tracks recognition round trips in seconds.
	RecognizeDuration metric.Float64Histogram

	// StaleResults counts responses discarded by generation or sequence.
	// Attribute "reason": generation, sequence.
	StaleResults metric.Int64Counter

	// Stabilized counts observations on which a label reached quorum.
	// Attribute "changed" is true when the displayed label changed.
	Stabilized metric.Int64Counter

	// InFlight tracks recognition calls awaiting a response.
	InFlight metric.Int64UpDownCounter
}

// latencyBuckets in seconds, centred on the 600ms tick interval.
var latencyBuckets = []float64{
	0.025, 0.05, 0.1, 0.2, 0.3, 0.45, 0.6, 0.9, 1.2, 2.5, 5,
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Ticks, err = m.Int64Counter("voxture.ticks",
		metric.WithDescription("Sampling ticks by outcome."),
	); err != nil {
		return nil, err
	}
	if met.RecognizeRequests, err = m.Int64Counter("voxture.recognize.requests",
		metric.WithDescription("Recognition requests by status."),
	); err != nil {
		return nil, err
	}
	if met.RecognizeDuration, err = m.Float64Histogram("voxture.recognize.duration",
		metric.WithDescription("Recognition request round trip."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StaleResults, err = m.Int64Counter("voxture.results.stale",
		metric.WithDescription("Recognition results discarded as stale."),
	); err != nil {
		return nil, err
	}
	if met.Stabilized, err = m.Int64Counter("voxture.labels.stabilized",
		metric.WithDescription("Stabilizer quorum decisions."),
	); err != nil {
		return nil, err
	}
	if met.InFlight, err = m.Int64UpDownCounter("voxture.recognize.in_flight",
		metric.WithDescription("Recognition requests awaiting a response."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordTick counts one tick with its outcome.
func (m *Metrics) RecordTick(ctx context.Context, outcome string) {
	m.Ticks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordRecognize records a completed request.
func (m *Metrics) RecordRecognize(ctx context.Context, status string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.RecognizeRequests.Add(ctx, 1, attrs)
	m.RecognizeDuration.Record(ctx, seconds, attrs)
}

// RecordStale counts a discarded result.
func (m *Metrics) RecordStale(ctx context.Context, reason string) {
	m.StaleResults.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordStabilized counts a quorum decision.
func (m *Metrics) RecordStabilized(ctx context.Context, changed bool) {
	m.Stabilized.Add(ctx, 1, metric.WithAttributes(attribute.Bool("changed", changed)))
}
