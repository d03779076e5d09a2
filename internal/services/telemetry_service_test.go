package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"audio-relay/internal/models"
)

// memoryStore keeps every saved batch in memory
type memoryStore struct {
	mu      sync.Mutex
	batches [][]models.CycleReport
	events  []models.LinkEvent
	err     error
}

func (s *memoryStore) SaveCycles(_ context.Context, reports []models.CycleReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, append([]models.CycleReport(nil), reports...))
	return nil
}

func (s *memoryStore) SaveLinkEvent(_ context.Context, event models.LinkEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memoryStore) saved() (reports int, batches int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.batches {
		reports += len(b)
	}
	return reports, len(s.batches)
}

func TestTelemetryService_DropsWhenFull(t *testing.T) {
	ts := NewTelemetryService(&memoryStore{}, TelemetryServiceConfig{ReportChannelSize: 2})
	drops := 0
	ts.OnDrop(func() { drops++ })

	for i := 0; i < 5; i++ {
		ts.SubmitCycle(models.CycleReport{FrameSeq: uint64(i)})
	}

	if ts.Dropped() != 3 || drops != 3 {
		t.Errorf("dropped = %d (callback %d), want 3", ts.Dropped(), drops)
	}
}

func TestTelemetryService_BatchesBySize(t *testing.T) {
	store := &memoryStore{}
	ts := NewTelemetryService(store, TelemetryServiceConfig{
		ReportChannelSize: 16,
		BatchSize:         3,
		FlushInterval:     time.Hour,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ts.Start(ctx)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		ts.SubmitCycle(models.CycleReport{FrameSeq: uint64(i)})
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if n, _ := store.saved(); n == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("full batch was not flushed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	<-done
}

func TestTelemetryService_FlushesOnShutdown(t *testing.T) {
	store := &memoryStore{}
	ts := NewTelemetryService(store, TelemetryServiceConfig{
		ReportChannelSize: 16,
		BatchSize:         100,
		FlushInterval:     time.Hour,
	})

	ts.SubmitCycle(models.CycleReport{FrameSeq: 1})
	ts.SubmitCycle(models.CycleReport{FrameSeq: 2})
	ts.SubmitLinkEvent(models.LinkEvent{Layer: "broker", Recovered: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ts.Start(ctx)

	reports, batches := store.saved()
	if reports != 2 || batches != 1 {
		t.Errorf("saved %d reports in %d batches, want 2 in 1", reports, batches)
	}
	if len(store.events) != 1 || store.events[0].Layer != "broker" {
		t.Errorf("events = %+v", store.events)
	}
}

func TestTelemetryService_StoreErrorDoesNotStop(t *testing.T) {
	store := &memoryStore{err: errors.New("clickhouse unavailable")}
	ts := NewTelemetryService(store, TelemetryServiceConfig{BatchSize: 1, FlushInterval: time.Hour})

	ts.SubmitCycle(models.CycleReport{FrameSeq: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ts.Start(ctx)

	if n, _ := store.saved(); n != 0 {
		t.Errorf("saved %d reports from a failing store", n)
	}
}
