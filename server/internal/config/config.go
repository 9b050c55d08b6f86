package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort        = 5000
	DefaultMaxLogsPerGroup = 20
	DefaultAlertThreshold  = 20.0
	DefaultSnapshotPath    = "groups.json"
	DefaultStreamInterval  = 5 * time.Second
	DefaultKafkaTopic      = "sensor-readings"
	DefaultMQTTTopic       = "sensorhub/+/data"
	DefaultMQTTClientID    = "sensorhub"
	DefaultMQTTQoS         = 1
)

// PortEnv is the environment variable that overrides server.http_port.
const PortEnv = "PORT"

// Config is the sensorhub configuration file.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	Alerts AlertsConfig `yaml:"alerts"`
	Stream StreamConfig `yaml:"stream"`
	Kafka  KafkaConfig  `yaml:"kafka"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API listens on (default 5000).
	// The PORT environment variable takes precedence.
	HTTPPort int `yaml:"http_port"`

	// CORSOrigins lists allowed browser origins. Empty allows all.
	CORSOrigins []string `yaml:"cors_origins"`

	// AccessLog enables a combined-format access log on stdout.
	AccessLog bool `yaml:"access_log"`
}

// StoreConfig controls the group log store and its snapshot file.
type StoreConfig struct {
	// MaxLogsPerGroup is the number of readings retained per group (default 20).
	MaxLogsPerGroup int `yaml:"max_logs_per_group"`

	// AlertThreshold is the temperature above which a reading is flagged
	// (default 20). Reloaded live when the config file changes.
	AlertThreshold float64 `yaml:"alert_threshold"`

	// SnapshotPath is the JSON file the store is persisted to.
	SnapshotPath string `yaml:"snapshot_path"`
}

// AlertsConfig holds notification rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based notification rule.
type AlertRule struct {
	// Name is the human-readable rule identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression over a reading: "temperature > 30",
	// "humidity >= 80", "alert == true".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// StreamConfig controls the WebSocket live feed.
type StreamConfig struct {
	// Interval between group summary broadcasts (default 5s).
	Interval time.Duration `yaml:"interval"`
}

// KafkaConfig controls publishing of ingested readings to Kafka.
// Publishing is disabled when Brokers is empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Enabled reports whether Kafka publishing is configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// MQTTConfig controls ingestion from an MQTT broker.
// The subscriber is disabled when Broker is empty.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. "tcp://localhost:1883".
	Broker string `yaml:"broker"`

	// Topic is the subscription filter. Its single "+" level is the group name.
	Topic string `yaml:"topic"`

	ClientID string `yaml:"client_id"`
	QoS      int    `yaml:"qos"`

	// UsernameEnv and PasswordEnv name environment variables holding
	// broker credentials.
	UsernameEnv string `yaml:"username_env"`
	PasswordEnv string `yaml:"password_env"`
}

// Enabled reports whether the MQTT subscriber is configured.
func (m MQTTConfig) Enabled() bool { return m.Broker != "" }

// Username returns the broker username resolved from the environment.
func (m MQTTConfig) Username() string {
	if m.UsernameEnv == "" {
		return ""
	}
	return os.Getenv(m.UsernameEnv)
}

// Password returns the broker password resolved from the environment.
func (m MQTTConfig) Password() string {
	if m.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(m.PasswordEnv)
}

// Load reads and parses the config file at path. A missing file is not an
// error: the defaults are returned. The PORT environment variable overrides
// server.http_port.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Warn("config: file not found, using defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
		},
		Store: StoreConfig{
			MaxLogsPerGroup: DefaultMaxLogsPerGroup,
			AlertThreshold:  DefaultAlertThreshold,
			SnapshotPath:    DefaultSnapshotPath,
		},
		Stream: StreamConfig{
			Interval: DefaultStreamInterval,
		},
		Kafka: KafkaConfig{
			Topic: DefaultKafkaTopic,
		},
		MQTT: MQTTConfig{
			Topic:    DefaultMQTTTopic,
			ClientID: DefaultMQTTClientID,
			QoS:      DefaultMQTTQoS,
		},
	}
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(PortEnv); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s=%q is not a port number", PortEnv, v)
		}
		cfg.Server.HTTPPort = port
	}
	return nil
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	if cfg.Store.MaxLogsPerGroup < 1 {
		return fmt.Errorf("store.max_logs_per_group must be at least 1, got %d", cfg.Store.MaxLogsPerGroup)
	}
	if math.IsNaN(cfg.Store.AlertThreshold) || math.IsInf(cfg.Store.AlertThreshold, 0) {
		return fmt.Errorf("store.alert_threshold must be a finite number")
	}
	if cfg.Store.SnapshotPath == "" {
		return fmt.Errorf("store.snapshot_path must not be empty")
	}
	for i, r := range cfg.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("alerts.rules[%d].name must not be empty", i)
		}
		if len(strings.Fields(r.Condition)) != 3 {
			return fmt.Errorf("alerts.rules[%d].condition %q: want \"<field> <op> <value>\"", i, r.Condition)
		}
		switch r.Severity {
		case "critical", "warning", "info", "":
		default:
			return fmt.Errorf("alerts.rules[%d].severity %q unknown: want critical|warning|info", i, r.Severity)
		}
	}
	for i, w := range cfg.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("alerts.webhooks[%d].type %q unknown: want slack|teams|http", i, w.Type)
		}
	}
	if cfg.Stream.Interval < 0 {
		return fmt.Errorf("stream.interval must not be negative")
	}
	if cfg.Kafka.Enabled() && cfg.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic must not be empty when brokers are set")
	}
	if cfg.MQTT.Enabled() {
		levels := strings.Split(cfg.MQTT.Topic, "/")
		if strings.Count(cfg.MQTT.Topic, "+") != 1 || !slices.Contains(levels, "+") {
			return fmt.Errorf("mqtt.topic %q must contain exactly one \"+\" level for the group name", cfg.MQTT.Topic)
		}
		if strings.Contains(cfg.MQTT.Topic, "#") {
			return fmt.Errorf("mqtt.topic %q must not contain \"#\"", cfg.MQTT.Topic)
		}
		if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos %d is out of range [0, 2]", cfg.MQTT.QoS)
		}
	}
	return nil
}
