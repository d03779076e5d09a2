package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"audio-relay/internal/models"
	"audio-relay/internal/resilience"
)

// ErrNotConnected is returned when an operation needs an open session
var ErrNotConnected = errors.New("mqtt session not connected")

// Session manages the publish-subscribe session with the broker.
// Reconnection is explicit: paho's auto-reconnect is disabled so that a
// dropped session stays visible to the caller until Reconnect is called.
type Session struct {
	config    ClientConfig
	policy    resilience.Backoff
	newClient func(*mqtt.ClientOptions) mqtt.Client

	mu       sync.Mutex
	client   mqtt.Client
	clientID string
	state    models.LinkState
}

// ClientConfig holds MQTT session configuration
type ClientConfig struct {
	Broker         string // e.g., "tcp://192.168.10.101:1883"
	ClientID       string // e.g., "ESP32AudioClient"
	Username       string
	Password       string
	QoS            byte
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	KeepAlive      time.Duration
}

// DefaultClientConfig returns default session configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Broker:         "tcp://192.168.10.101:1883",
		ClientID:       "ESP32AudioClient",
		QoS:            0,
		ConnectTimeout: 10 * time.Second,
		PublishTimeout: 2 * time.Second,
		KeepAlive:      15 * time.Second,
	}
}

// NewSession creates a session; no connection is made until Connect or Reconnect
func NewSession(config ClientConfig, policy resilience.Backoff) *Session {
	if policy.Name == "" {
		policy.Name = "mqtt"
	}
	defaults := DefaultClientConfig()
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = defaults.ConnectTimeout
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = defaults.PublishTimeout
	}
	if config.KeepAlive <= 0 {
		config.KeepAlive = defaults.KeepAlive
	}
	return &Session{
		config:    config,
		policy:    policy,
		newClient: mqtt.NewClient,
		state:     models.Disconnected,
	}
}

// options builds the paho client options for clientID
func (s *Session) options(clientID string) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.config.Broker)
	opts.SetClientID(clientID)
	opts.SetUsername(s.config.Username)
	opts.SetPassword(s.config.Password)
	opts.SetOnConnectHandler(s.connectHandler)
	opts.SetConnectionLostHandler(s.connectLostHandler)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(true)
	opts.SetConnectTimeout(s.config.ConnectTimeout)
	opts.SetWriteTimeout(s.config.PublishTimeout)
	opts.SetKeepAlive(s.config.KeepAlive)
	opts.SetPingTimeout(s.config.KeepAlive / 2)
	return opts
}

// Connect opens the session as clientID. Calling it while already
// connected with the same client ID is a no-op that returns nil.
func (s *Session) Connect(clientID string) error {
	s.mu.Lock()
	if s.client != nil && s.clientID == clientID && s.client.IsConnectionOpen() {
		s.state = models.Connected
		s.mu.Unlock()
		return nil
	}
	if s.client == nil || s.clientID != clientID {
		if s.client != nil {
			s.client.Disconnect(0)
		}
		s.client = s.newClient(s.options(clientID))
		s.clientID = clientID
	}
	client := s.client
	s.state = models.Connecting
	s.mu.Unlock()

	token := client.Connect()
	var err error
	switch {
	case !token.WaitTimeout(s.config.ConnectTimeout):
		err = fmt.Errorf("timed out connecting to MQTT broker %s", s.config.Broker)
	case token.Error() != nil:
		err = fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = models.Disconnected
		return err
	}
	s.state = models.Connected
	log.Println("MQTT Session: Connected to broker:", s.config.Broker)
	return nil
}

// Reconnect blocks until the session is connected, waiting the policy's
// fixed delay between attempts. It returns an error wrapping
// [resilience.ErrConnectivityExhausted] when the policy gives up, or the
// context error on cancellation.
func (s *Session) Reconnect(ctx context.Context) error {
	if s.IsConnected() {
		return nil
	}

	attempts, err := s.policy.Retry(ctx, func(ctx context.Context, n int) error {
		log.Printf("MQTT Session: Attempting MQTT connection (attempt %d)...", n)
		return s.Connect(s.config.ClientID)
	})
	if err != nil {
		return fmt.Errorf("mqtt reconnect failed: %w", err)
	}
	if attempts > 1 {
		log.Printf("MQTT Session: Reconnected after %d attempts", attempts)
	}
	return nil
}

// IsConnected returns whether the session is currently open
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil || !s.client.IsConnectionOpen() {
		if s.state == models.Connected {
			s.state = models.Disconnected
		}
		return false
	}
	return true
}

// State returns the last observed session state
func (s *Session) State() models.LinkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RetryPolicy returns the policy used to restore the connection
func (s *Session) RetryPolicy() resilience.Backoff {
	return s.policy
}

// GetNativeClient returns the underlying paho MQTT client, nil before the first Connect
// This is used by Monitor
func (s *Session) GetNativeClient() mqtt.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// Close closes the MQTT session
func (s *Session) Close() {
	s.mu.Lock()
	client := s.client
	s.state = models.Disconnected
	s.mu.Unlock()

	if client != nil {
		client.Disconnect(250)
		log.Println("MQTT Session: Disconnected")
	}
}

// Connection event handlers
func (s *Session) connectHandler(client mqtt.Client) {
	log.Println("MQTT Session: Connection established")
}

func (s *Session) connectLostHandler(client mqtt.Client, err error) {
	s.mu.Lock()
	s.state = models.Disconnected
	s.mu.Unlock()
	log.Printf("MQTT Session: Connection lost: %v", err)
}
