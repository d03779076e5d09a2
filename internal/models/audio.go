package models

import (
	"encoding/binary"
	"time"
)

// BytesPerSample is the width of one signed 16-bit PCM sample on the wire
const BytesPerSample = 2

// AudioFrame represents one capture cycle worth of mono PCM samples
type AudioFrame struct {
	Seq        uint64    `json:"seq"`
	CapturedAt time.Time `json:"captured_at"`
	Samples    []int16   `json:"-"`        // Declared length N, only Samples[:Captured] are valid
	Captured   int       `json:"captured"` // May be less than len(Samples) on short reads
}

// NewAudioFrame allocates a frame with n declared samples
func NewAudioFrame(seq uint64, n int) *AudioFrame {
	return &AudioFrame{
		Seq:     seq,
		Samples: make([]int16, n),
	}
}

// Declared returns the declared frame length N in samples
func (f *AudioFrame) Declared() int {
	return len(f.Samples)
}

// IsShort reports whether fewer than N samples were captured
func (f *AudioFrame) IsShort() bool {
	return f.Captured < len(f.Samples)
}

// Valid returns the captured portion of the frame
func (f *AudioFrame) Valid() []int16 {
	return f.Samples[:f.Captured]
}

// ByteLen returns the length of the serialized frame
func (f *AudioFrame) ByteLen() int {
	return f.Captured * BytesPerSample
}

// Bytes serializes the captured samples as little-endian signed 16-bit PCM
func (f *AudioFrame) Bytes() []byte {
	buf := make([]byte, f.ByteLen())
	for i, s := range f.Valid() {
		binary.LittleEndian.PutUint16(buf[i*BytesPerSample:], uint16(s))
	}
	return buf
}

// ByteChunk is one published slice of a frame's serialized bytes
type ByteChunk struct {
	Index   int    `json:"index"`  // Zero-based position within the parent frame
	Offset  int    `json:"offset"` // Byte offset within the serialized frame
	Payload []byte `json:"-"`
}
