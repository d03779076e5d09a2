// Package audio captures fixed-size frames of mono signed 16-bit PCM.
//
// Every [Source] is fed by a platform-side producer (a reader goroutine or a
// PortAudio callback) that pushes sample blocks into a bounded queue. The
// pipeline never sees that buffering: it calls [Source.Capture], which
// drains the queue into a freshly allocated frame owned by the caller.
package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"audio-relay/internal/models"
)

var (
	// ErrCaptureTimeout is returned by Capture when no sample arrived within maxWait.
	ErrCaptureTimeout = errors.New("audio capture timeout")

	// ErrSourceUnavailable is returned when the configured capture backend is not built in.
	ErrSourceUnavailable = errors.New("audio source not available")
)

// Source kinds
const (
	KindStdin     = "stdin"
	KindFile      = "file"
	KindPortAudio = "portaudio"
)

// Source delivers one frame per call
type Source interface {
	// Start begins platform-side acquisition. Acquisition stops when ctx
	// is cancelled or Close is called.
	Start(ctx context.Context) error

	// Capture blocks until a full frame is available or maxWait elapses.
	// A partially filled frame is returned as a short frame; ErrCaptureTimeout
	// is returned only when zero samples arrived.
	Capture(ctx context.Context, maxWait time.Duration) (*models.AudioFrame, error)

	// Overruns returns how many producer blocks were dropped so far because
	// Capture fell behind.
	Overruns() uint64

	Close() error
}

// Config holds configuration for audio capture
type Config struct {
	Kind         string // "stdin", "file" or "portaudio"
	Path         string // Input file for KindFile
	SampleRate   int    // Samples per second, e.g., 44100
	FrameSamples int    // Declared frame length N
	BlockSamples int    // Samples per platform block (DMA buffer analogue)
	QueueDepth   int    // Blocks buffered between producer and Capture
}

// DefaultConfig returns 44.1 kHz capture in 1024-sample frames
func DefaultConfig() Config {
	return Config{
		Kind:         KindStdin,
		SampleRate:   44100,
		FrameSamples: 1024,
		BlockSamples: 256,
		QueueDepth:   64,
	}
}

// FrameDuration returns the real-time length of one full frame
func (c Config) FrameDuration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.FrameSamples) * time.Second / time.Duration(c.SampleRate)
}

// NewSource builds the Source selected by config.Kind
func NewSource(config Config) (Source, error) {
	switch config.Kind {
	case KindStdin, "":
		return NewReaderSource(os.Stdin, config, false), nil
	case KindFile:
		f, err := os.Open(config.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open audio file: %w", err)
		}
		return NewReaderSource(f, config, true), nil
	case KindPortAudio:
		return NewPortAudioSource(config), nil
	default:
		return nil, fmt.Errorf("unknown audio source %q", config.Kind)
	}
}
