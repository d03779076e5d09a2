package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"audio-relay/internal/models"
)

// ReaderSource captures raw little-endian S16 mono PCM from an io.Reader,
// e.g. the stdout of `arecord -f S16_LE -c 1 -r 44100 -t raw`.
type ReaderSource struct {
	r      io.Reader
	config Config
	pace   bool
	queue  *blockQueue
	seq    uint64

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewReaderSource creates a source reading from r. When pace is true the
// reader is throttled to the configured sample rate, which is needed for
// regular files that would otherwise be consumed instantly.
func NewReaderSource(r io.Reader, config Config, pace bool) *ReaderSource {
	defaults := DefaultConfig()
	if config.BlockSamples <= 0 {
		config.BlockSamples = defaults.BlockSamples
	}
	if config.QueueDepth <= 0 {
		config.QueueDepth = defaults.QueueDepth
	}
	return &ReaderSource{
		r:      r,
		config: config,
		pace:   pace,
		queue:  newBlockQueue(config.QueueDepth),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the reader goroutine
func (s *ReaderSource) Start(ctx context.Context) error {
	s.startOnce.Do(func() {
		go s.readLoop(ctx)
	})
	return nil
}

// readLoop pushes fixed-size sample blocks until EOF, error, or stop
func (s *ReaderSource) readLoop(ctx context.Context) {
	defer close(s.done)
	defer s.queue.close()

	buf := make([]byte, s.config.BlockSamples*models.BytesPerSample)

	var ticker *time.Ticker
	if s.pace && s.config.SampleRate > 0 {
		period := time.Duration(s.config.BlockSamples) * time.Second / time.Duration(s.config.SampleRate)
		ticker = time.NewTicker(period)
		defer ticker.Stop()
	}

	for {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
			}
		} else {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			default:
			}
		}

		n, err := io.ReadFull(s.r, buf)
		if n >= models.BytesPerSample {
			s.queue.push(decodeSamples(buf[:n-n%models.BytesPerSample]))
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				log.Println("Audio Source: Input stream ended")
			} else {
				log.Printf("Audio Source: Read error: %v", err)
			}
			return
		}
	}
}

// Capture implements [Source]
func (s *ReaderSource) Capture(ctx context.Context, maxWait time.Duration) (*models.AudioFrame, error) {
	return captureFrame(ctx, s.queue, &s.seq, s.config.FrameSamples, maxWait)
}

// Overruns returns the number of blocks dropped because Capture fell behind
func (s *ReaderSource) Overruns() uint64 {
	return s.queue.Overruns()
}

// Close stops the reader and closes the underlying reader if it is an io.Closer
func (s *ReaderSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		if c, ok := s.r.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}

// decodeSamples converts little-endian S16 bytes to samples
func decodeSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/models.BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*models.BytesPerSample:]))
	}
	return samples
}

// captureFrame drains queue into a new frame of frameSamples declared samples
func captureFrame(ctx context.Context, queue *blockQueue, seq *uint64, frameSamples int, maxWait time.Duration) (*models.AudioFrame, error) {
	frame := models.NewAudioFrame(*seq+1, frameSamples)
	n := queue.fill(ctx, frame.Samples, maxWait)
	if n == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrCaptureTimeout
	}

	*seq++
	frame.Captured = n
	frame.CapturedAt = time.Now()
	return frame, nil
}
