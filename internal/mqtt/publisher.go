package mqtt

import (
	"log"
	"strings"

	"audio-relay/internal/models"
)

// Publish sends payload to topic and reports whether the broker accepted it.
// It never reconnects: when the session has dropped it returns false
// immediately. A publish that does not complete within PublishTimeout fails.
func (s *Session) Publish(topic string, payload []byte) bool {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	if client == nil || !client.IsConnectionOpen() {
		s.mu.Lock()
		if s.state == models.Connected {
			s.state = models.Disconnected
		}
		s.mu.Unlock()
		return false
	}

	token := client.Publish(topic, s.config.QoS, false, payload)
	if !token.WaitTimeout(s.config.PublishTimeout) {
		log.Printf("MQTT Session: Publish to %s timed out after %v", topic, s.config.PublishTimeout)
		return false
	}
	if err := token.Error(); err != nil {
		log.Printf("MQTT Session: Publish to %s failed: %v", topic, err)
		return false
	}
	return true
}

// FormatTopic replaces the {device_id} placeholder with the actual device ID
func FormatTopic(topicPattern, deviceID string) string {
	return strings.ReplaceAll(topicPattern, "{device_id}", deviceID)
}
