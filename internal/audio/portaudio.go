//go:build portaudio

package audio

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"audio-relay/internal/models"
)

// PortAudioSource captures from the default input device. Build with
// -tags portaudio (requires the PortAudio C library).
type PortAudioSource struct {
	config Config
	stream *portaudio.Stream
	queue  *blockQueue
	seq    uint64

	closeOnce sync.Once
}

// NewPortAudioSource creates a new microphone source
func NewPortAudioSource(config Config) *PortAudioSource {
	return &PortAudioSource{
		config: config,
		queue:  newBlockQueue(config.QueueDepth),
	}
}

// Start opens a mono input stream in callback mode
func (s *PortAudioSource) Start(ctx context.Context) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(
		1,
		0,
		float64(s.config.SampleRate),
		s.config.BlockSamples,
		s.onBlock,
	)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("failed to start audio stream: %w", err)
	}
	s.stream = stream

	log.Printf("Audio Source: PortAudio capture started (%d Hz, %d samples/block)",
		s.config.SampleRate, s.config.BlockSamples)

	go func() {
		<-ctx.Done()
		s.Close()
	}()
	return nil
}

// onBlock runs on the PortAudio thread; in is reused after return
func (s *PortAudioSource) onBlock(in []int16) {
	block := make([]int16, len(in))
	copy(block, in)
	s.queue.push(block)
}

// Capture implements [Source]
func (s *PortAudioSource) Capture(ctx context.Context, maxWait time.Duration) (*models.AudioFrame, error) {
	return captureFrame(ctx, s.queue, &s.seq, s.config.FrameSamples, maxWait)
}

// Overruns returns the number of blocks dropped because Capture fell behind
func (s *PortAudioSource) Overruns() uint64 {
	return s.queue.Overruns()
}

// Close stops the stream and terminates PortAudio
func (s *PortAudioSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.stream == nil {
			return
		}
		if stopErr := s.stream.Stop(); stopErr != nil {
			log.Printf("Audio Source: Error stopping stream: %v", stopErr)
		}
		err = s.stream.Close()
		portaudio.Terminate()
		s.queue.close()
	})
	return err
}
