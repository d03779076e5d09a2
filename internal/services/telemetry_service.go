package services

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"audio-relay/internal/models"
)

// CycleStore persists cycle reports and link events
type CycleStore interface {
	SaveCycles(ctx context.Context, reports []models.CycleReport) error
	SaveLinkEvent(ctx context.Context, event models.LinkEvent) error
}

// TelemetryServiceConfig holds configuration for the telemetry service
type TelemetryServiceConfig struct {
	ReportChannelSize int
	EventChannelSize  int
	BatchSize         int
	FlushInterval     time.Duration
	WriteTimeout      time.Duration
}

// DefaultTelemetryServiceConfig returns default configuration
func DefaultTelemetryServiceConfig() TelemetryServiceConfig {
	return TelemetryServiceConfig{
		ReportChannelSize: 512, // ~12s of cycles at 1024 samples / 44.1 kHz
		EventChannelSize:  32,
		BatchSize:         200,
		FlushInterval:     5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// TelemetryService ships cycle reports to a store off the pipeline's path.
// Submissions never block: when a queue is full the item is dropped.
type TelemetryService struct {
	store  CycleStore
	config TelemetryServiceConfig

	reports chan models.CycleReport
	events  chan models.LinkEvent

	dropped atomic.Uint64
	onDrop  func()
}

// NewTelemetryService creates a new telemetry service over store
func NewTelemetryService(store CycleStore, config TelemetryServiceConfig) *TelemetryService {
	defaults := DefaultTelemetryServiceConfig()
	if config.ReportChannelSize <= 0 {
		config.ReportChannelSize = defaults.ReportChannelSize
	}
	if config.EventChannelSize <= 0 {
		config.EventChannelSize = defaults.EventChannelSize
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = defaults.FlushInterval
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	return &TelemetryService{
		store:   store,
		config:  config,
		reports: make(chan models.CycleReport, config.ReportChannelSize),
		events:  make(chan models.LinkEvent, config.EventChannelSize),
	}
}

// OnDrop registers a callback invoked for every dropped submission
func (ts *TelemetryService) OnDrop(fn func()) {
	ts.onDrop = fn
}

// SubmitCycle queues a report without blocking and reports whether it was accepted
func (ts *TelemetryService) SubmitCycle(report models.CycleReport) bool {
	select {
	case ts.reports <- report:
		return true
	default:
		ts.drop()
		return false
	}
}

// SubmitLinkEvent queues a link event without blocking
func (ts *TelemetryService) SubmitLinkEvent(event models.LinkEvent) bool {
	select {
	case ts.events <- event:
		return true
	default:
		ts.drop()
		return false
	}
}

// Dropped returns how many submissions were discarded
func (ts *TelemetryService) Dropped() uint64 {
	return ts.dropped.Load()
}

func (ts *TelemetryService) drop() {
	ts.dropped.Add(1)
	if ts.onDrop != nil {
		ts.onDrop()
	}
}

// Start drains the queues into the store until ctx is cancelled, then
// flushes whatever is still buffered.
func (ts *TelemetryService) Start(ctx context.Context) {
	log.Printf("TelemetryService: Starting (batch=%d, flush every %v)", ts.config.BatchSize, ts.config.FlushInterval)

	ticker := time.NewTicker(ts.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]models.CycleReport, 0, ts.config.BatchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		writeCtx, cancel := context.WithTimeout(ctx, ts.config.WriteTimeout)
		defer cancel()
		if err := ts.store.SaveCycles(writeCtx, batch); err != nil {
			log.Printf("TelemetryService: Error saving %d cycle reports: %v", len(batch), err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			log.Println("TelemetryService: Shutting down...")
			final := context.Background()
		drain:
			for {
				select {
				case report := <-ts.reports:
					batch = append(batch, report)
				case event := <-ts.events:
					ts.saveEvent(final, event)
				default:
					break drain
				}
			}
			flush(final)
			log.Println("TelemetryService: Shutdown complete")
			return
		case report := <-ts.reports:
			batch = append(batch, report)
			if len(batch) >= ts.config.BatchSize {
				flush(ctx)
			}
		case event := <-ts.events:
			ts.saveEvent(ctx, event)
		case <-ticker.C:
			flush(ctx)
		}
	}
}

func (ts *TelemetryService) saveEvent(ctx context.Context, event models.LinkEvent) {
	writeCtx, cancel := context.WithTimeout(ctx, ts.config.WriteTimeout)
	defer cancel()
	if err := ts.store.SaveLinkEvent(writeCtx, event); err != nil {
		log.Printf("TelemetryService: Error saving %s link event: %v", event.Layer, err)
	}
}
