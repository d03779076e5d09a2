package aggregator

import (
	"sync"
	"time"

	"audio-relay/internal/clock"
)

// RateCounter counts events over fixed windows
type RateCounter struct {
	clock  clock.Clock
	window time.Duration

	mu          sync.Mutex
	windowStart time.Time
	count       int
}

// NewRateCounter creates a counter reporting once per window
func NewRateCounter(clk clock.Clock, window time.Duration) *RateCounter {
	if clk == nil {
		clk = clock.System()
	}
	if window <= 0 {
		window = time.Second
	}
	return &RateCounter{
		clock:       clk,
		window:      window,
		windowStart: clk.Now(),
	}
}

// Add records one event. When the current window has elapsed it closes the
// window (the event counts towards the next one) and returns the closed
// window's rate per second with ok set.
func (rc *RateCounter) Add() (rate float64, ok bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	now := rc.clock.Now()
	if elapsed := now.Sub(rc.windowStart); elapsed >= rc.window {
		rate = float64(rc.count) / elapsed.Seconds()
		rc.count = 0
		rc.windowStart = now
		ok = true
	}
	rc.count++
	return rate, ok
}
