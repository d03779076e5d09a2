package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"audio-relay/internal/models"
)

// Monitor subscribes to the audio topic and writes received chunks to a
// channel. The relay's monitor command uses it to watch a stream arrive.
type Monitor struct {
	client mqtt.Client
	topic  string
	qos    byte

	// Output channel (written by monitor, read by caller)
	Chunks chan models.ByteChunk

	mu       sync.Mutex
	received int
	offset   int
}

// NewMonitor creates a new monitor over an already connected session
func NewMonitor(session *Session, topic string, bufferSize int) *Monitor {
	return &Monitor{
		client: session.GetNativeClient(),
		topic:  topic,
		qos:    session.config.QoS,
		Chunks: make(chan models.ByteChunk, bufferSize),
	}
}

// Subscribe subscribes to the monitored topic
func (m *Monitor) Subscribe() error {
	if m.client == nil {
		return ErrNotConnected
	}
	token := m.client.Subscribe(m.topic, m.qos, m.handleChunk)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to audio topic: %w", token.Error())
	}
	log.Printf("MQTT Monitor: Subscribed to audio topic: %s", m.topic)
	return nil
}

// Unsubscribe removes the subscription
func (m *Monitor) Unsubscribe() error {
	if m.client == nil {
		return nil
	}
	token := m.client.Unsubscribe(m.topic)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// handleChunk indexes an incoming payload by arrival order and writes it to the channel
func (m *Monitor) handleChunk(client mqtt.Client, msg mqtt.Message) {
	payload := make([]byte, len(msg.Payload()))
	copy(payload, msg.Payload())

	m.mu.Lock()
	chunk := models.ByteChunk{
		Index:   m.received,
		Offset:  m.offset,
		Payload: payload,
	}
	m.received++
	m.offset += len(payload)
	m.mu.Unlock()

	// Write to channel (non-blocking with timeout)
	select {
	case m.Chunks <- chunk:
	case <-time.After(1 * time.Second):
		log.Printf("MQTT Monitor: Warning: chunk channel full, dropping chunk %d", chunk.Index)
	}
}
