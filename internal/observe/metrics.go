// Package observe provides the relay's OpenTelemetry metrics.
//
// Instruments are recorded through the OTel Metrics API and exported for
// scraping through the Prometheus bridge set up by [InitProvider]. Tests
// should build their own [Metrics] with [NewMetrics] over a manual reader.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"audio-relay/internal/models"
)

// meterName is the instrumentation scope name used for all relay metrics.
const meterName = "audio-relay"

// Metrics holds all OpenTelemetry metric instruments for the relay.
type Metrics struct {
	// Cycles counts pipeline cycles. Use with attribute:
	//   attribute.String("outcome", ...)
	Cycles metric.Int64Counter

	// SamplesCaptured counts PCM samples taken from the source.
	SamplesCaptured metric.Int64Counter

	// ShortFrames counts frames that arrived with fewer samples than declared.
	ShortFrames metric.Int64Counter

	// ChunksPublished counts chunks accepted by the broker session.
	ChunksPublished metric.Int64Counter

	// ChunksDropped counts chunks never delivered because their frame aborted.
	ChunksDropped metric.Int64Counter

	// Reconnects counts recovery attempts. Use with attributes:
	//   attribute.String("layer", "link"|"broker"), attribute.String("status", ...)
	Reconnects metric.Int64Counter

	// CycleDuration tracks the wall time of one capture-and-publish cycle.
	CycleDuration metric.Float64Histogram

	// FrameLevel tracks per-frame loudness in dBFS.
	FrameLevel metric.Float64Histogram

	// TelemetryDropped counts reports discarded because the sink queue was full.
	TelemetryDropped metric.Int64Counter

	// CaptureOverruns reports blocks the audio source dropped because
	// capture fell behind. Fed by [Metrics.ObserveCaptureOverruns].
	CaptureOverruns metric.Int64ObservableCounter

	meter metric.Meter
}

// cycleBuckets defines histogram bucket boundaries (in seconds) around the
// ~23 ms frame period of 1024 samples at 44.1 kHz.
var cycleBuckets = []float64{
	0.005, 0.01, 0.02, 0.025, 0.03, 0.05, 0.1, 0.25, 0.5, 1, 5,
}

var levelBuckets = []float64{
	-80, -70, -60, -50, -40, -30, -20, -10, -6, -3, 0,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	if met.Cycles, err = m.Int64Counter("relay.cycles",
		metric.WithDescription("Pipeline cycles by outcome."),
	); err != nil {
		return nil, err
	}
	if met.SamplesCaptured, err = m.Int64Counter("relay.samples.captured",
		metric.WithDescription("PCM samples captured from the audio source."),
	); err != nil {
		return nil, err
	}
	if met.ShortFrames, err = m.Int64Counter("relay.frames.short",
		metric.WithDescription("Frames captured with fewer samples than declared."),
	); err != nil {
		return nil, err
	}
	if met.ChunksPublished, err = m.Int64Counter("relay.chunks.published",
		metric.WithDescription("Chunks accepted by the broker session."),
	); err != nil {
		return nil, err
	}
	if met.ChunksDropped, err = m.Int64Counter("relay.chunks.dropped",
		metric.WithDescription("Chunks not delivered because their frame was aborted."),
	); err != nil {
		return nil, err
	}
	if met.Reconnects, err = m.Int64Counter("relay.reconnects",
		metric.WithDescription("Connectivity recoveries by layer and status."),
	); err != nil {
		return nil, err
	}
	if met.CycleDuration, err = m.Float64Histogram("relay.cycle.duration",
		metric.WithDescription("Wall time of one pipeline cycle."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(cycleBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FrameLevel, err = m.Float64Histogram("relay.frame.level",
		metric.WithDescription("Per-frame RMS level."),
		metric.WithUnit("dBFS"),
		metric.WithExplicitBucketBoundaries(levelBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TelemetryDropped, err = m.Int64Counter("relay.telemetry.dropped",
		metric.WithDescription("Cycle reports dropped because the sink queue was full."),
	); err != nil {
		return nil, err
	}
	if met.CaptureOverruns, err = m.Int64ObservableCounter("relay.capture.overruns",
		metric.WithDescription("Audio blocks dropped because capture fell behind."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// ObserveCaptureOverruns reports the cumulative count returned by overruns on
// every collection
func (m *Metrics) ObserveCaptureOverruns(overruns func() uint64) error {
	_, err := m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(m.CaptureOverruns, int64(overruns()))
		return nil
	}, m.CaptureOverruns)
	return err
}

// RecordCycle records everything a cycle report carries
func (m *Metrics) RecordCycle(ctx context.Context, r models.CycleReport) {
	m.Cycles.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(r.Outcome))))
	m.CycleDuration.Record(ctx, r.Duration.Seconds())

	if r.Captured == 0 {
		return
	}
	m.SamplesCaptured.Add(ctx, int64(r.Captured))
	if r.Captured < r.Declared {
		m.ShortFrames.Add(ctx, 1)
	}
	m.FrameLevel.Record(ctx, r.Level.VolumeDB)
	m.ChunksPublished.Add(ctx, int64(r.Send.ChunksSent))
	if dropped := r.Send.ChunksTotal - r.Send.ChunksSent; dropped > 0 {
		m.ChunksDropped.Add(ctx, int64(dropped))
	}
}

// RecordReconnect counts one recovery on the given layer
func (m *Metrics) RecordReconnect(ctx context.Context, layer string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Reconnects.Add(ctx, 1, metric.WithAttributes(
		attribute.String("layer", layer),
		attribute.String("status", status),
	))
}
