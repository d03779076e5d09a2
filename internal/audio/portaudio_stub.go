//go:build !portaudio

package audio

import (
	"context"
	"fmt"
	"time"

	"audio-relay/internal/models"
)

// PortAudioSource stub when PortAudio is not compiled in
type PortAudioSource struct{}

// NewPortAudioSource returns a source whose Start always fails
func NewPortAudioSource(config Config) *PortAudioSource {
	return &PortAudioSource{}
}

func (s *PortAudioSource) Start(context.Context) error {
	return fmt.Errorf("%w: rebuild with -tags portaudio", ErrSourceUnavailable)
}

func (s *PortAudioSource) Capture(context.Context, time.Duration) (*models.AudioFrame, error) {
	return nil, ErrSourceUnavailable
}

func (s *PortAudioSource) Overruns() uint64 {
	return 0
}

func (s *PortAudioSource) Close() error {
	return nil
}
