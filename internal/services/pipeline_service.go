package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"audio-relay/internal/aggregator"
	"audio-relay/internal/audio"
	"audio-relay/internal/chunker"
	"audio-relay/internal/clock"
	"audio-relay/internal/models"
	"audio-relay/internal/observe"
	"audio-relay/internal/resilience"
)

// AudioSource delivers captured frames
type AudioSource interface {
	Capture(ctx context.Context, maxWait time.Duration) (*models.AudioFrame, error)
}

// NetworkLink is the network association the session rides on
type NetworkLink interface {
	IsConnected() bool
	EnsureConnected(ctx context.Context) error
	State() models.LinkState
	RetryPolicy() resilience.Backoff
}

// BrokerSession is the publishing session to the broker
type BrokerSession interface {
	chunker.Publisher
	IsConnected() bool
	Reconnect(ctx context.Context) error
	State() models.LinkState
	RetryPolicy() resilience.Backoff
}

// PipelineServiceConfig holds configuration for the pipeline
type PipelineServiceConfig struct {
	DeviceID      string
	Topic         string
	MaxChunkBytes int
	CaptureWait   time.Duration
	LogSamples    bool
	RateWindow    time.Duration
}

// DefaultPipelineServiceConfig returns default configuration
func DefaultPipelineServiceConfig() PipelineServiceConfig {
	return PipelineServiceConfig{
		Topic:         "audio/raw",
		MaxChunkBytes: chunker.DefaultMaxChunkBytes,
		CaptureWait:   time.Second,
		RateWindow:    time.Second,
	}
}

// PipelineService runs the capture, chunk and publish cycle
type PipelineService struct {
	source  AudioSource
	link    NetworkLink
	session BrokerSession
	chunker *chunker.Chunker
	config  PipelineServiceConfig

	clock     clock.Clock
	rate      *aggregator.RateCounter
	metrics   *observe.Metrics
	telemetry *TelemetryService
}

// PipelineOption customises a PipelineService
type PipelineOption func(*PipelineService)

// WithClock replaces the system clock
func WithClock(c clock.Clock) PipelineOption {
	return func(p *PipelineService) { p.clock = c }
}

// WithMetrics records every cycle into m
func WithMetrics(m *observe.Metrics) PipelineOption {
	return func(p *PipelineService) { p.metrics = m }
}

// WithTelemetry forwards cycle reports and link events to ts
func WithTelemetry(ts *TelemetryService) PipelineOption {
	return func(p *PipelineService) { p.telemetry = ts }
}

// NewPipelineService creates a new pipeline over its three collaborators
func NewPipelineService(
	source AudioSource,
	link NetworkLink,
	session BrokerSession,
	ch *chunker.Chunker,
	config PipelineServiceConfig,
	opts ...PipelineOption,
) *PipelineService {
	defaults := DefaultPipelineServiceConfig()
	if config.MaxChunkBytes <= 0 {
		config.MaxChunkBytes = defaults.MaxChunkBytes
	}
	if config.CaptureWait <= 0 {
		config.CaptureWait = defaults.CaptureWait
	}
	if config.RateWindow <= 0 {
		config.RateWindow = defaults.RateWindow
	}
	if ch == nil {
		ch = chunker.New(chunker.FramingRaw)
	}

	p := &PipelineService{
		source:  source,
		link:    link,
		session: session,
		chunker: ch,
		config:  config,
		clock:   clock.System(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.rate = aggregator.NewRateCounter(p.clock, config.RateWindow)
	return p
}

// Run runs cycles back to back until ctx is cancelled. Connectivity
// exhaustion, capture timeouts and publish failures all end in the next
// cycle; nothing but cancellation stops the loop.
func (p *PipelineService) Run(ctx context.Context) {
	log.Printf("Pipeline: Starting (topic=%s, chunk=%d bytes, capture wait=%v)",
		p.config.Topic, p.config.MaxChunkBytes, p.config.CaptureWait)
	logPolicy("link", p.link.RetryPolicy())
	logPolicy("broker", p.session.RetryPolicy())

	for ctx.Err() == nil {
		p.RunCycle(ctx)
	}

	log.Println("Pipeline: Shutdown complete")
}

// RunCycle performs exactly one cycle and returns its report
func (p *PipelineService) RunCycle(ctx context.Context) models.CycleReport {
	start := p.clock.Now()
	report := models.CycleReport{
		Timestamp: start,
		DeviceID:  p.config.DeviceID,
		Send:      models.FrameSendResult{FailedIndex: -1},
	}
	report.Outcome = p.cycle(ctx, &report)
	report.Duration = p.clock.Now().Sub(start)

	if p.metrics != nil {
		p.metrics.RecordCycle(ctx, report)
	}
	if p.telemetry != nil {
		p.telemetry.SubmitCycle(report)
	}
	return report
}

func (p *PipelineService) cycle(ctx context.Context, report *models.CycleReport) models.CycleOutcome {
	if ctx.Err() != nil {
		return models.OutcomeCancelled
	}

	if !p.link.IsConnected() {
		if err := p.restore(ctx, "link", p.link.RetryPolicy(), p.link.EnsureConnected); err != nil {
			if ctx.Err() != nil {
				return models.OutcomeCancelled
			}
			return models.OutcomeLinkDown
		}
	}

	if !p.session.IsConnected() {
		if err := p.restore(ctx, "broker", p.session.RetryPolicy(), p.session.Reconnect); err != nil {
			if ctx.Err() != nil {
				return models.OutcomeCancelled
			}
			return models.OutcomeSessionDown
		}
	}

	frame, err := p.source.Capture(ctx, p.config.CaptureWait)
	switch {
	case err == nil:
	case errors.Is(err, audio.ErrCaptureTimeout):
		log.Printf("Pipeline: No audio within %v", p.config.CaptureWait)
		return models.OutcomeCaptureTimeout
	case ctx.Err() != nil:
		return models.OutcomeCancelled
	default:
		log.Printf("Pipeline: Capture failed: %v", err)
		return models.OutcomeCaptureError
	}

	report.FrameSeq = frame.Seq
	report.Declared = frame.Declared()
	report.Captured = frame.Captured
	report.Level = aggregator.AnalyzeFrame(frame)

	if p.config.LogSamples {
		log.Printf("Pipeline: Frame %d raw samples: %s", frame.Seq, formatSamples(frame.Valid(), 5))
	}
	if frame.IsShort() {
		log.Printf("Pipeline: Short frame %d: %d/%d samples", frame.Seq, frame.Captured, frame.Declared())
	}

	report.Send = p.chunker.Send(p.session, p.config.Topic, frame, p.config.MaxChunkBytes)
	if !report.Send.Complete() {
		log.Printf("Pipeline: Publish failed for frame %d (%d/%d chunks sent)",
			frame.Seq, report.Send.ChunksSent, report.Send.ChunksTotal)
		return models.OutcomeAborted
	}

	if rate, ok := p.rate.Add(); ok {
		log.Printf("Pipeline: Audio data rate: %.1f frames/sec", rate)
	}
	return models.OutcomePublished
}

// restore runs one blocking recovery and records how it ended. A failed
// recovery is followed by one policy pause so the next cycle's attempt is
// spaced like any other retry.
func (p *PipelineService) restore(ctx context.Context, layer string, policy resilience.Backoff, fn func(context.Context) error) error {
	start := p.clock.Now()
	err := fn(ctx)
	elapsed := p.clock.Now().Sub(start)

	switch {
	case err == nil:
		log.Printf("Pipeline: %s recovered in %v", layer, elapsed)
	case errors.Is(err, resilience.ErrConnectivityExhausted):
		log.Printf("Pipeline: %s recovery gave up after %v: %v", layer, elapsed, err)
	case ctx.Err() != nil:
		return err
	default:
		log.Printf("Pipeline: %s recovery failed: %v", layer, err)
	}

	if p.metrics != nil {
		p.metrics.RecordReconnect(ctx, layer, err)
	}
	if p.telemetry != nil {
		event := models.LinkEvent{
			Timestamp: start,
			DeviceID:  p.config.DeviceID,
			Layer:     layer,
			Recovered: err == nil,
			Duration:  elapsed,
		}
		if err != nil {
			event.Error = err.Error()
		}
		p.telemetry.SubmitLinkEvent(event)
	}

	if err != nil {
		if sleepErr := p.clock.Sleep(ctx, policy.Pause()); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}

func logPolicy(layer string, policy resilience.Backoff) {
	if policy.Bounded() {
		log.Printf("Pipeline: %s recovery retries %s, then pauses and moves to the next cycle", layer, policy)
		return
	}
	log.Printf("Pipeline: %s recovery retries %s until shutdown", layer, policy)
}

func formatSamples(samples []int16, n int) string {
	if len(samples) < n {
		n = len(samples)
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprint(samples[i])
	}
	return strings.Join(parts, " ")
}
