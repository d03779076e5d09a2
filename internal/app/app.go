// Package app wires the relay's components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"audio-relay/internal/audio"
	"audio-relay/internal/chunker"
	"audio-relay/internal/database"
	"audio-relay/internal/health"
	"audio-relay/internal/link"
	"audio-relay/internal/mqtt"
	"audio-relay/internal/observe"
	"audio-relay/internal/resilience"
	"audio-relay/internal/services"
	"audio-relay/internal/version"
	"audio-relay/pkg/config"
)

const shutdownTimeout = 5 * time.Second

// Relay holds every long-lived component of a running relay
type Relay struct {
	Config *config.Config

	Source   audio.Source
	Link     *link.Link
	Session  *mqtt.Session
	Pipeline *services.PipelineService

	provider  *observe.Provider
	db        *database.ClickHouseDB
	telemetry *services.TelemetryService
}

// NewLink builds the network link from configuration
func NewLink(cfg *config.Config) *link.Link {
	device := link.NewNetDevice(link.NetDeviceConfig{
		Interface:      cfg.LinkInterface,
		ConnectCommand: cfg.LinkConnectCommand,
	})
	return link.New(device, resilience.Backoff{
		Name:        "link",
		Delay:       cfg.LinkRetryDelay,
		MaxAttempts: cfg.LinkMaxAttempts,
		MaxElapsed:  cfg.LinkMaxElapsed,
	})
}

// NewSession builds the broker session from configuration
func NewSession(cfg *config.Config) *mqtt.Session {
	sessionConfig := mqtt.DefaultClientConfig()
	sessionConfig.Broker = cfg.MQTTBroker
	sessionConfig.ClientID = cfg.MQTTClientID
	sessionConfig.Username = cfg.MQTTUsername
	sessionConfig.Password = cfg.MQTTPassword
	sessionConfig.QoS = byte(cfg.MQTTQoS)
	sessionConfig.PublishTimeout = cfg.MQTTPublishTimeout

	return mqtt.NewSession(sessionConfig, resilience.Backoff{
		Name:        "mqtt",
		Delay:       cfg.MQTTRetryDelay,
		MaxAttempts: cfg.MQTTMaxAttempts,
	})
}

// NewSource builds the audio source from configuration
func NewSource(cfg *config.Config) (audio.Source, error) {
	audioConfig := audio.DefaultConfig()
	audioConfig.Kind = cfg.AudioSource
	audioConfig.Path = cfg.AudioFile
	audioConfig.SampleRate = cfg.AudioSampleRate
	audioConfig.FrameSamples = cfg.AudioFrameSamples
	return audio.NewSource(audioConfig)
}

// Topic returns the audio topic with the device placeholder resolved
func Topic(cfg *config.Config) string {
	return mqtt.FormatTopic(cfg.MQTTTopicAudio, cfg.DeviceID)
}

// New builds a relay. The ClickHouse sink is optional and a failure to reach
// it only disables reporting.
func New(ctx context.Context, cfg *config.Config) (*Relay, error) {
	framing, err := chunker.ParseFraming(cfg.ChunkFraming)
	if err != nil {
		return nil, err
	}

	source, err := NewSource(cfg)
	if err != nil {
		return nil, err
	}

	provider, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version.Version,
		DeviceID:       cfg.DeviceID,
	})
	if err != nil {
		_ = source.Close()
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	metrics, err := observe.NewMetrics(provider.MeterProvider)
	if err != nil {
		_ = source.Close()
		return nil, fmt.Errorf("failed to create metric instruments: %w", err)
	}
	if err := metrics.ObserveCaptureOverruns(source.Overruns); err != nil {
		_ = source.Close()
		return nil, fmt.Errorf("failed to observe capture overruns: %w", err)
	}

	r := &Relay{
		Config:   cfg,
		Source:   source,
		Link:     NewLink(cfg),
		Session:  NewSession(cfg),
		provider: provider,
	}

	opts := []services.PipelineOption{services.WithMetrics(metrics)}
	if cfg.ClickHouseAddr != "" {
		db, err := database.NewClickHouseDB(ctx, database.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDB,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePass,
		})
		if err != nil {
			log.Printf("Warning: cycle reports disabled: %v", err)
		} else {
			r.db = db
			r.telemetry = services.NewTelemetryService(db, services.DefaultTelemetryServiceConfig())
			r.telemetry.OnDrop(func() { metrics.TelemetryDropped.Add(context.Background(), 1) })
			opts = append(opts, services.WithTelemetry(r.telemetry))
		}
	}

	r.Pipeline = services.NewPipelineService(
		source,
		r.Link,
		r.Session,
		chunker.New(framing),
		services.PipelineServiceConfig{
			DeviceID:      cfg.DeviceID,
			Topic:         Topic(cfg),
			MaxChunkBytes: cfg.ChunkMaxBytes,
			CaptureWait:   cfg.AudioCaptureWait,
			LogSamples:    cfg.LogSamples,
		},
		opts...,
	)
	return r, nil
}

// Handler returns the relay's HTTP surface: health probes and metrics
func (r *Relay) Handler() http.Handler {
	mux := http.NewServeMux()
	health.New(
		health.Probe{Name: "link", Source: r.Link},
		health.Probe{Name: "broker", Source: r.Session},
	).Register(mux)
	mux.Handle("GET /metrics", r.provider.Handler())
	return mux
}

// Run streams until ctx is cancelled, then shuts every component down
func (r *Relay) Run(ctx context.Context) error {
	if err := r.Source.Start(ctx); err != nil {
		return fmt.Errorf("failed to start audio source: %w", err)
	}

	var wg sync.WaitGroup

	var srv *http.Server
	if r.Config.HTTPAddr != "" {
		srv = &http.Server{
			Addr:              r.Config.HTTPAddr,
			Handler:           r.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("HTTP: Serving /healthz, /readyz and /metrics on %s", r.Config.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("HTTP: Server error: %v", err)
			}
		}()
	}

	if r.telemetry != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.telemetry.Start(ctx)
		}()
	}

	r.Pipeline.Run(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP: Shutdown error: %v", err)
		}
		cancel()
	}
	wg.Wait()
	return nil
}

// Close releases the session, source, sink and metrics provider
func (r *Relay) Close() {
	r.Session.Close()
	if err := r.Source.Close(); err != nil {
		log.Printf("Error closing audio source: %v", err)
	}
	if r.db != nil {
		_ = r.db.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := r.provider.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down metrics provider: %v", err)
	}
}
