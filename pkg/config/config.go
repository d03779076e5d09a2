package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"audio-relay/internal/chunker"
	"audio-relay/internal/models"
)

type Config struct {
	// MQTT Configuration
	MQTTBroker         string        `yaml:"mqtt_broker"`
	MQTTClientID       string        `yaml:"mqtt_client_id"`
	MQTTUsername       string        `yaml:"mqtt_username"`
	MQTTPassword       string        `yaml:"mqtt_password"`
	MQTTTopicAudio     string        `yaml:"mqtt_topic_audio"`
	MQTTQoS            int           `yaml:"mqtt_qos"`
	MQTTPublishTimeout time.Duration `yaml:"mqtt_publish_timeout"`
	MQTTRetryDelay     time.Duration `yaml:"mqtt_retry_delay"`
	MQTTMaxAttempts    int           `yaml:"mqtt_max_attempts"`

	// Audio capture
	AudioSource       string        `yaml:"audio_source"`
	AudioFile         string        `yaml:"audio_file"`
	AudioSampleRate   int           `yaml:"audio_sample_rate"`
	AudioFrameSamples int           `yaml:"audio_frame_samples"`
	AudioCaptureWait  time.Duration `yaml:"audio_capture_wait"`

	// Chunking
	ChunkMaxBytes int    `yaml:"chunk_max_bytes"`
	ChunkFraming  string `yaml:"chunk_framing"`

	// Network link
	LinkInterface      string        `yaml:"link_interface"`
	LinkConnectCommand string        `yaml:"link_connect_command"`
	LinkRetryDelay     time.Duration `yaml:"link_retry_delay"`
	LinkMaxAttempts    int           `yaml:"link_max_attempts"`
	LinkMaxElapsed     time.Duration `yaml:"link_max_elapsed"`

	// Health and metrics endpoint, empty disables
	HTTPAddr string `yaml:"http_addr"`

	// ClickHouse Configuration, empty address disables the report sink
	ClickHouseAddr string `yaml:"clickhouse_addr"`
	ClickHouseDB   string `yaml:"clickhouse_db"`
	ClickHouseUser string `yaml:"clickhouse_user"`
	ClickHousePass string `yaml:"clickhouse_pass"`

	DeviceID   string `yaml:"device_id"`
	LogSamples bool   `yaml:"log_samples"`
}

// Defaults returns the configuration used when nothing overrides it
func Defaults() Config {
	deviceID, err := os.Hostname()
	if err != nil || deviceID == "" {
		deviceID = "audio-relay"
	}

	return Config{
		MQTTBroker:         "tcp://192.168.10.101:1883",
		MQTTClientID:       "ESP32AudioClient",
		MQTTTopicAudio:     "audio/raw",
		MQTTPublishTimeout: 2 * time.Second,
		MQTTRetryDelay:     5 * time.Second,

		AudioSource:       "stdin",
		AudioSampleRate:   44100,
		AudioFrameSamples: 1024,
		AudioCaptureWait:  time.Second,

		ChunkMaxBytes: 512,
		ChunkFraming:  "raw",

		LinkInterface:  "wlan0",
		LinkRetryDelay: 500 * time.Millisecond,

		HTTPAddr: ":9100",

		ClickHouseDB:   "audio",
		ClickHouseUser: "default",

		DeviceID: deviceID,
	}
}

// Load builds the configuration from defaults, an optional YAML file named
// by CONFIG_FILE, and environment variables, in increasing precedence.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadFile overlays the keys present in a YAML file
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.MQTTBroker = getEnv("MQTT_BROKER", c.MQTTBroker)
	c.MQTTClientID = getEnv("MQTT_CLIENT_ID", c.MQTTClientID)
	c.MQTTUsername = getEnv("MQTT_USERNAME", c.MQTTUsername)
	c.MQTTPassword = getEnv("MQTT_PASSWORD", c.MQTTPassword)
	c.MQTTTopicAudio = getEnv("MQTT_TOPIC_AUDIO", c.MQTTTopicAudio)
	c.MQTTQoS = getEnvInt("MQTT_QOS", c.MQTTQoS)
	c.MQTTPublishTimeout = getEnvDuration("MQTT_PUBLISH_TIMEOUT", c.MQTTPublishTimeout)
	c.MQTTRetryDelay = getEnvDuration("MQTT_RETRY_DELAY", c.MQTTRetryDelay)
	c.MQTTMaxAttempts = getEnvInt("MQTT_MAX_ATTEMPTS", c.MQTTMaxAttempts)

	c.AudioSource = getEnv("AUDIO_SOURCE", c.AudioSource)
	c.AudioFile = getEnv("AUDIO_FILE", c.AudioFile)
	c.AudioSampleRate = getEnvInt("AUDIO_SAMPLE_RATE", c.AudioSampleRate)
	c.AudioFrameSamples = getEnvInt("AUDIO_FRAME_SAMPLES", c.AudioFrameSamples)
	c.AudioCaptureWait = getEnvDuration("AUDIO_CAPTURE_WAIT", c.AudioCaptureWait)

	c.ChunkMaxBytes = getEnvInt("CHUNK_MAX_BYTES", c.ChunkMaxBytes)
	c.ChunkFraming = getEnv("CHUNK_FRAMING", c.ChunkFraming)

	c.LinkInterface = getEnv("LINK_INTERFACE", c.LinkInterface)
	c.LinkConnectCommand = getEnv("LINK_CONNECT_COMMAND", c.LinkConnectCommand)
	c.LinkRetryDelay = getEnvDuration("LINK_RETRY_DELAY", c.LinkRetryDelay)
	c.LinkMaxAttempts = getEnvInt("LINK_MAX_ATTEMPTS", c.LinkMaxAttempts)
	c.LinkMaxElapsed = getEnvDuration("LINK_MAX_ELAPSED", c.LinkMaxElapsed)

	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)

	c.ClickHouseAddr = getEnv("CLICKHOUSE_ADDR", c.ClickHouseAddr)
	c.ClickHouseDB = getEnv("CLICKHOUSE_DB", c.ClickHouseDB)
	c.ClickHouseUser = getEnv("CLICKHOUSE_USER", c.ClickHouseUser)
	c.ClickHousePass = getEnv("CLICKHOUSE_PASS", c.ClickHousePass)

	c.DeviceID = getEnv("DEVICE_ID", c.DeviceID)
	c.LogSamples = getEnvBool("LOG_SAMPLES", c.LogSamples)
}

// Validate rejects configurations the relay cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.MQTTBroker == "" {
		errs = append(errs, errors.New("MQTT_BROKER is required"))
	}
	if c.MQTTTopicAudio == "" {
		errs = append(errs, errors.New("MQTT_TOPIC_AUDIO is required"))
	}
	if c.MQTTQoS < 0 || c.MQTTQoS > 2 {
		errs = append(errs, fmt.Errorf("MQTT_QOS must be 0, 1 or 2, got %d", c.MQTTQoS))
	}
	if c.AudioSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("AUDIO_SAMPLE_RATE must be positive, got %d", c.AudioSampleRate))
	}
	if c.AudioFrameSamples <= 0 {
		errs = append(errs, fmt.Errorf("AUDIO_FRAME_SAMPLES must be positive, got %d", c.AudioFrameSamples))
	}
	if c.AudioCaptureWait <= 0 {
		errs = append(errs, fmt.Errorf("AUDIO_CAPTURE_WAIT must be positive, got %v", c.AudioCaptureWait))
	}
	if c.ChunkMaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_MAX_BYTES must be positive, got %d", c.ChunkMaxBytes))
	}
	if framing, err := chunker.ParseFraming(c.ChunkFraming); err != nil {
		errs = append(errs, fmt.Errorf("CHUNK_FRAMING: %w", err))
	} else if c.ChunkMaxBytes > 0 && c.AudioFrameSamples > 0 {
		if _, err := framing.Count(c.AudioFrameSamples*models.BytesPerSample, c.ChunkMaxBytes); err != nil {
			errs = append(errs, fmt.Errorf("CHUNK_MAX_BYTES=%d with CHUNK_FRAMING=%s: %w", c.ChunkMaxBytes, framing, err))
		}
	}
	if c.AudioSource == "file" && c.AudioFile == "" {
		errs = append(errs, errors.New("AUDIO_FILE is required when AUDIO_SOURCE=file"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as int, using default: %v", key, err)
		return defaultValue
	}
	return intValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as duration, using default: %v", key, err)
		return defaultValue
	}
	return d
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as bool, using default: %v", key, err)
		return defaultValue
	}
	return boolValue
}
