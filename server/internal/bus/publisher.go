package bus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/sensorhub/sensorhub/pkg/types"
	"github.com/sensorhub/sensorhub/server/internal/config"
)

const (
	bufferSize   = 1024
	maxBatch     = 100
	writeTimeout = 10 * time.Second
)

// ErrDropped is reported for messages evicted from a full buffer.
var ErrDropped = errors.New("bus: buffer full, message dropped")

// Event is the JSON value of a published message.
type Event struct {
	Group string        `json:"group"`
	Log   types.Reading `json:"log"`
}

// messageWriter is the subset of *kafka.Writer used by Publisher.
// Abstracted so tests can capture messages without a broker.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher ships readings to a Kafka topic.
type Publisher struct {
	w         messageWriter
	topic     string
	buf       chan kafka.Message
	onPublish func(error)
}

// New creates a Publisher for the configured brokers and topic.
func New(cfg config.KafkaConfig) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newPublisher(w, cfg.Topic)
}

func newPublisher(w messageWriter, topic string) *Publisher {
	return &Publisher{
		w:     w,
		topic: topic,
		buf:   make(chan kafka.Message, bufferSize),
	}
}

// OnPublish registers fn to be called with the outcome of every message
// (nil on success). It must be set before Run is started.
func (p *Publisher) OnPublish(fn func(error)) { p.onPublish = fn }

// ReadingIngested enqueues r for publishing. It implements store.Observer.
func (p *Publisher) ReadingIngested(group string, r types.Reading) {
	value, err := json.Marshal(Event{Group: group, Log: r})
	if err != nil {
		slog.Error("bus: marshal event", "group", group, "err", err)
		return
	}
	msg := kafka.Message{Key: []byte(group), Value: value, Time: r.Timestamp}

	select {
	case p.buf <- msg:
	default:
		// Buffer full: drop the oldest message, keep the newest.
		select {
		case <-p.buf:
			slog.Warn("bus: buffer full, evicted oldest message",
				"group", group, "buffer_cap", cap(p.buf))
			p.report(ErrDropped, 1)
		default:
		}
		select {
		case p.buf <- msg:
		default:
		}
	}
}

// Run publishes queued messages until ctx is cancelled, then flushes what is
// left in the buffer and closes the writer.
func (p *Publisher) Run(ctx context.Context) {
	slog.Info("bus: publishing readings", "topic", p.topic)
	for {
		select {
		case <-ctx.Done():
			p.flush()
			if err := p.w.Close(); err != nil {
				slog.Warn("bus: close writer", "err", err)
			}
			return
		case msg := <-p.buf:
			batch := p.collect(msg)
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			p.write(wctx, batch)
			cancel()
		}
	}
}

// collect returns first plus whatever else is queued, up to maxBatch.
func (p *Publisher) collect(first kafka.Message) []kafka.Message {
	batch := []kafka.Message{first}
	for len(batch) < maxBatch {
		select {
		case msg := <-p.buf:
			batch = append(batch, msg)
		default:
			return batch
		}
	}
	return batch
}

func (p *Publisher) flush() {
	for {
		select {
		case msg := <-p.buf:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			p.write(ctx, p.collect(msg))
			cancel()
		default:
			return
		}
	}
}

func (p *Publisher) write(ctx context.Context, batch []kafka.Message) {
	err := p.w.WriteMessages(ctx, batch...)
	if err != nil {
		slog.Error("bus: publish failed", "topic", p.topic, "messages", len(batch), "err", err)
	} else {
		slog.Debug("bus: published", "topic", p.topic, "messages", len(batch))
	}
	p.report(err, len(batch))
}

func (p *Publisher) report(err error, n int) {
	if p.onPublish == nil {
		return
	}
	for i := 0; i < n; i++ {
		p.onPublish(err)
	}
}
