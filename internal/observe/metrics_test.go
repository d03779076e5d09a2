package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"audio-relay/internal/models"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// counterValue sums the data points of an Int64 counter matching attrs
func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	m := findMetric(rm, name)
	if m == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q: unexpected data type %T", name, m.Data)
	}
	want := attribute.NewSet(attrs...)
	var total int64
	for _, dp := range sum.DataPoints {
		if len(attrs) == 0 || dp.Attributes.Equals(&want) {
			total += dp.Value
		}
	}
	return total
}

func TestRecordCycle_AbortedShortFrame(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordCycle(context.Background(), models.CycleReport{
		Declared: 1024,
		Captured: 600,
		Send:     models.FrameSendResult{ChunksSent: 1, ChunksTotal: 3, Aborted: true, FailedIndex: 1},
		Level:    models.FrameLevel{VolumeDB: -30},
		Outcome:  models.OutcomeAborted,
		Duration: 20 * time.Millisecond,
	})

	rm := collect(t, reader)
	if got := counterValue(t, rm, "relay.cycles", attribute.String("outcome", "aborted")); got != 1 {
		t.Errorf("relay.cycles{outcome=aborted} = %d, want 1", got)
	}
	if got := counterValue(t, rm, "relay.samples.captured"); got != 600 {
		t.Errorf("relay.samples.captured = %d, want 600", got)
	}
	if got := counterValue(t, rm, "relay.frames.short"); got != 1 {
		t.Errorf("relay.frames.short = %d, want 1", got)
	}
	if got := counterValue(t, rm, "relay.chunks.published"); got != 1 {
		t.Errorf("relay.chunks.published = %d, want 1", got)
	}
	if got := counterValue(t, rm, "relay.chunks.dropped"); got != 2 {
		t.Errorf("relay.chunks.dropped = %d, want 2", got)
	}

	hist := findMetric(rm, "relay.frame.level")
	if hist == nil {
		t.Fatal("relay.frame.level not recorded")
	}
	data := hist.Data.(metricdata.Histogram[float64])
	if len(data.DataPoints) != 1 || data.DataPoints[0].Count != 1 {
		t.Errorf("unexpected level histogram %+v", data.DataPoints)
	}
}

func TestRecordCycle_TimeoutSkipsFrameInstruments(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordCycle(context.Background(), models.CycleReport{
		Declared: 1024,
		Outcome:  models.OutcomeCaptureTimeout,
		Duration: time.Second,
	})

	rm := collect(t, reader)
	if got := counterValue(t, rm, "relay.cycles", attribute.String("outcome", "capture_timeout")); got != 1 {
		t.Errorf("relay.cycles{outcome=capture_timeout} = %d, want 1", got)
	}
	if findMetric(rm, "relay.samples.captured") != nil {
		t.Error("samples counter must not be touched by an empty cycle")
	}
}

func TestRecordReconnect(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordReconnect(ctx, "broker", nil)
	m.RecordReconnect(ctx, "broker", errors.New("refused"))
	m.RecordReconnect(ctx, "link", nil)

	rm := collect(t, reader)
	if got := counterValue(t, rm, "relay.reconnects",
		attribute.String("layer", "broker"), attribute.String("status", "error")); got != 1 {
		t.Errorf("broker errors = %d, want 1", got)
	}
	if got := counterValue(t, rm, "relay.reconnects"); got != 3 {
		t.Errorf("total reconnects = %d, want 3", got)
	}
}

func TestObserveCaptureOverruns(t *testing.T) {
	m, reader := newTestMetrics(t)

	var overruns uint64 = 7
	if err := m.ObserveCaptureOverruns(func() uint64 { return overruns }); err != nil {
		t.Fatalf("ObserveCaptureOverruns: %v", err)
	}

	if got := counterValue(t, collect(t, reader), "relay.capture.overruns"); got != 7 {
		t.Errorf("overruns = %d, want 7", got)
	}

	overruns = 9
	if got := counterValue(t, collect(t, reader), "relay.capture.overruns"); got != 9 {
		t.Errorf("overruns = %d, want 9 after the source dropped two more", got)
	}
}
