package mqttin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/sensorhub/sensorhub/pkg/types"
	"github.com/sensorhub/sensorhub/server/internal/config"
)

const (
	connectTimeout  = 10 * time.Second
	disconnectQuiet = 250 // milliseconds
)

var (
	// ErrTopic is reported for messages whose topic does not match the filter.
	ErrTopic = errors.New("mqttin: topic does not match filter")
	// ErrPayload is reported for payloads that are not a valid sample.
	ErrPayload = errors.New("mqttin: invalid payload")
)

// Ingester is the store operation the subscriber feeds.
type Ingester interface {
	Ingest(group string, temperature, humidity float64) (types.Reading, error)
}

// Subscriber consumes readings from an MQTT topic filter.
type Subscriber struct {
	cfg        config.MQTTConfig
	ing        Ingester
	filter     []string
	groupLevel int
	onMessage  func(error)
	newClient  func(*mqtt.ClientOptions) mqtt.Client
}

// New creates a Subscriber for cfg. cfg.Topic must contain exactly one "+"
// level; config validation guarantees this for loaded configs.
func New(cfg config.MQTTConfig, ing Ingester) (*Subscriber, error) {
	filter := strings.Split(cfg.Topic, "/")
	level := -1
	for i, l := range filter {
		if l == "+" {
			if level >= 0 {
				return nil, fmt.Errorf("mqttin: topic %q has more than one \"+\" level", cfg.Topic)
			}
			level = i
		}
	}
	if level < 0 {
		return nil, fmt.Errorf("mqttin: topic %q has no \"+\" level", cfg.Topic)
	}
	return &Subscriber{
		cfg:        cfg,
		ing:        ing,
		filter:     filter,
		groupLevel: level,
		newClient:  mqtt.NewClient,
	}, nil
}

// OnMessage registers fn to be called with the outcome of every received
// message (nil on success). It must be set before Run is started.
func (s *Subscriber) OnMessage(fn func(error)) { s.onMessage = fn }

// Run connects to the broker and subscribes until ctx is cancelled.
// The subscription is re-established on every reconnect.
func (s *Subscriber) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetUsername(s.cfg.Username()).
		SetPassword(s.cfg.Password()).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOrderMatters(false)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		tok := c.Subscribe(s.cfg.Topic, byte(s.cfg.QoS), s.handle)
		if !tok.WaitTimeout(connectTimeout) {
			slog.Warn("mqttin: subscribe timed out", "topic", s.cfg.Topic)
			return
		}
		if err := tok.Error(); err != nil {
			slog.Error("mqttin: subscribe failed", "topic", s.cfg.Topic, "err", err)
			return
		}
		slog.Info("mqttin: subscribed", "broker", s.cfg.Broker, "topic", s.cfg.Topic)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("mqttin: connection lost", "broker", s.cfg.Broker, "err", err)
	})

	client := s.newClient(opts)
	tok := client.Connect()
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return fmt.Errorf("mqttin: connect %s: %w", s.cfg.Broker, err)
		}
	case <-ctx.Done():
	}

	<-ctx.Done()
	client.Disconnect(disconnectQuiet)
	slog.Info("mqttin: disconnected", "broker", s.cfg.Broker)
	return nil
}

// handle is the paho message callback.
func (s *Subscriber) handle(_ mqtt.Client, m mqtt.Message) {
	err := s.ingest(m.Topic(), m.Payload())
	if err != nil {
		slog.Warn("mqttin: message rejected", "topic", m.Topic(), "err", err)
	}
	if s.onMessage != nil {
		s.onMessage(err)
	}
}

func (s *Subscriber) ingest(topic string, payload []byte) error {
	group, ok := s.groupOf(topic)
	if !ok {
		return fmt.Errorf("%w: %q", ErrTopic, topic)
	}
	var sample types.Sample
	if err := json.Unmarshal(payload, &sample); err != nil {
		return fmt.Errorf("%w: %v", ErrPayload, err)
	}
	t, h, ok := sample.Values()
	if !ok {
		return fmt.Errorf("%w: temperature and humidity must be numbers", ErrPayload)
	}
	if _, err := s.ing.Ingest(group, t, h); err != nil {
		return err
	}
	return nil
}

// groupOf extracts the group name from topic, the level under the "+" of
// the filter. It reports false if topic does not match the filter.
func (s *Subscriber) groupOf(topic string) (string, bool) {
	levels := strings.Split(topic, "/")
	if len(levels) != len(s.filter) {
		return "", false
	}
	for i, want := range s.filter {
		if i == s.groupLevel {
			continue
		}
		if levels[i] != want {
			return "", false
		}
	}
	group := levels[s.groupLevel]
	if group == "" {
		return "", false
	}
	return group, true
}
