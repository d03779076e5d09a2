// Package chunker splits a frame's serialized bytes into size-bounded
// messages and publishes them in order.
//
// The default framing is raw: payloads carry PCM bytes only, so a receiver
// cannot tell a truncated frame from a complete short one. The sequenced
// framing prepends a small header to every chunk for receivers that need
// to reassemble or detect loss.
package chunker

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"

	"audio-relay/internal/models"
)

// DefaultMaxChunkBytes is the payload ceiling used when none is configured
const DefaultMaxChunkBytes = 512

// HeaderSize is the length of the sequenced framing header
const HeaderSize = 8

// MaxChunks bounds the chunks of one frame so index and count fit the
// 16-bit header fields and the telemetry columns
const MaxChunks = math.MaxUint16

// Framing selects the on-wire chunk layout
type Framing string

const (
	FramingRaw       Framing = "raw"
	FramingSequenced Framing = "sequenced"
)

// ParseFraming validates a framing name; empty selects raw
func ParseFraming(s string) (Framing, error) {
	switch Framing(s) {
	case "", FramingRaw:
		return FramingRaw, nil
	case FramingSequenced:
		return FramingSequenced, nil
	default:
		return "", fmt.Errorf("unknown chunk framing %q", s)
	}
}

// DataCapacity returns the PCM bytes one chunk of at most maxChunkBytes can carry
func (f Framing) DataCapacity(maxChunkBytes int) (int, error) {
	if maxChunkBytes <= 0 {
		maxChunkBytes = DefaultMaxChunkBytes
	}
	if f != FramingSequenced {
		return maxChunkBytes, nil
	}
	if maxChunkBytes <= HeaderSize {
		return 0, fmt.Errorf("max chunk size %d leaves no room for the %d-byte header", maxChunkBytes, HeaderSize)
	}
	return maxChunkBytes - HeaderSize, nil
}

// Count returns how many chunks frameBytes bytes are split into
func (f Framing) Count(frameBytes, maxChunkBytes int) (int, error) {
	dataMax, err := f.DataCapacity(maxChunkBytes)
	if err != nil {
		return 0, err
	}
	n := (frameBytes + dataMax - 1) / dataMax
	if n > MaxChunks {
		return 0, fmt.Errorf("%d-byte frame needs %d chunks of %d bytes, more than %d", frameBytes, n, dataMax, MaxChunks)
	}
	return n, nil
}

// Publisher publishes one message and reports whether it was accepted
type Publisher interface {
	Publish(topic string, payload []byte) bool
}

// Range is a half-open byte range [Start, End) of a serialized frame
type Range struct {
	Start int
	End   int
}

// Len returns the number of bytes in the range
func (r Range) Len() int {
	return r.End - r.Start
}

// Split partitions length bytes into ceil(length/max) contiguous ranges of
// at most max bytes. It returns nil for an empty input and panics if max <= 0.
func Split(length, max int) []Range {
	if max <= 0 {
		panic("chunker: max chunk size must be positive")
	}
	if length <= 0 {
		return nil
	}
	ranges := make([]Range, 0, (length+max-1)/max)
	for start := 0; start < length; start += max {
		end := start + max
		if end > length {
			end = length
		}
		ranges = append(ranges, Range{Start: start, End: end})
	}
	return ranges
}

// Chunker publishes frames as ordered chunks
type Chunker struct {
	framing Framing
}

// New creates a chunker with the given framing
func New(framing Framing) *Chunker {
	if framing == "" {
		framing = FramingRaw
	}
	return &Chunker{framing: framing}
}

// Chunks returns the messages a frame is split into. Under sequenced
// framing each payload is at most maxChunkBytes including the header.
func (c *Chunker) Chunks(frame *models.AudioFrame, maxChunkBytes int) ([]models.ByteChunk, error) {
	data := frame.Bytes()
	if _, err := c.framing.Count(len(data), maxChunkBytes); err != nil {
		return nil, err
	}
	dataMax, _ := c.framing.DataCapacity(maxChunkBytes)
	ranges := Split(len(data), dataMax)
	chunks := make([]models.ByteChunk, len(ranges))
	for i, r := range ranges {
		payload := data[r.Start:r.End]
		if c.framing == FramingSequenced {
			payload = withHeader(frame.Seq, i, len(ranges), payload)
		}
		chunks[i] = models.ByteChunk{Index: i, Offset: r.Start, Payload: payload}
	}
	return chunks, nil
}

// Send publishes the frame's chunks to topic in increasing index order. The
// first failed publish aborts the frame: the failed chunk is not retried
// and no later chunk is attempted.
func (c *Chunker) Send(pub Publisher, topic string, frame *models.AudioFrame, maxChunkBytes int) models.FrameSendResult {
	result := models.FrameSendResult{FailedIndex: -1}

	chunks, err := c.Chunks(frame, maxChunkBytes)
	if err != nil {
		log.Printf("Chunker: %v", err)
		result.Aborted = true
		return result
	}
	result.ChunksTotal = len(chunks)

	for _, chunk := range chunks {
		if !pub.Publish(topic, chunk.Payload) {
			log.Printf("Chunker: Publish failed at chunk %d (byte %d) of frame %d, dropping %d remaining chunk(s)",
				chunk.Index, chunk.Offset, frame.Seq, len(chunks)-chunk.Index-1)
			result.Aborted = true
			result.FailedIndex = chunk.Index
			return result
		}
		result.ChunksSent++
	}
	return result
}

// withHeader prepends frameSeq | chunkIndex | chunkCount, big-endian
func withHeader(frameSeq uint64, index, count int, data []byte) []byte {
	buf := make([]byte, HeaderSize+len(data))
	binary.BigEndian.PutUint32(buf[0:4], uint32(frameSeq))
	binary.BigEndian.PutUint16(buf[4:6], uint16(index))
	binary.BigEndian.PutUint16(buf[6:8], uint16(count))
	copy(buf[HeaderSize:], data)
	return buf
}

// Header is the decoded sequenced framing header
type Header struct {
	FrameSeq   uint32
	ChunkIndex uint16
	ChunkCount uint16
}

// ParseHeader splits a sequenced payload into its header and PCM data
func ParseHeader(payload []byte) (Header, []byte, error) {
	if len(payload) < HeaderSize {
		return Header{}, nil, fmt.Errorf("payload of %d bytes is shorter than the header", len(payload))
	}
	h := Header{
		FrameSeq:   binary.BigEndian.Uint32(payload[0:4]),
		ChunkIndex: binary.BigEndian.Uint16(payload[4:6]),
		ChunkCount: binary.BigEndian.Uint16(payload[6:8]),
	}
	return h, payload[HeaderSize:], nil
}
