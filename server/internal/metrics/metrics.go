package metrics

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/sensorhub/sensorhub/server/internal/store"
)

// StatsSource provides the store summary included in every scrape.
type StatsSource interface {
	Stats() store.Stats
}

// outcome counts successes and failures of one kind of operation.
type outcome struct {
	ok  atomic.Uint64
	err atomic.Uint64
}

func (o *outcome) observe(err error) {
	if err != nil {
		o.err.Add(1)
		return
	}
	o.ok.Add(1)
}

// Registry collects sensorhub metrics. It is safe for concurrent use.
type Registry struct {
	src StatsSource

	snapshotWrites outcome
	kafkaPublishes outcome
	mqttMessages   outcome

	mu            sync.RWMutex
	streamClients func() int
}

// New creates a Registry reading store statistics from src.
func New(src StatsSource) *Registry {
	return &Registry{src: src}
}

// SnapshotWrite records the outcome of a snapshot file write.
func (r *Registry) SnapshotWrite(err error) { r.snapshotWrites.observe(err) }

// KafkaPublish records the outcome of a Kafka publish.
func (r *Registry) KafkaPublish(err error) { r.kafkaPublishes.observe(err) }

// MQTTMessage records whether an MQTT message was ingested.
func (r *Registry) MQTTMessage(err error) { r.mqttMessages.observe(err) }

// SetStreamClients registers fn as the source of the connected WebSocket
// client count.
func (r *Registry) SetStreamClients(fn func() int) {
	r.mu.Lock()
	r.streamClients = fn
	r.mu.Unlock()
}

// Gather returns the current metric families.
func (r *Registry) Gather() []*dto.MetricFamily {
	st := r.src.Stats()

	mfs := []*dto.MetricFamily{
		gauge("sensorhub_groups", "Number of groups in the store.", float64(st.Groups)),
		gauge("sensorhub_readings_retained", "Readings currently retained across all groups.", float64(st.Retained)),
		counter("sensorhub_readings_ingested_total", "Readings ingested since start.", float64(st.Ingested)),
		counter("sensorhub_readings_evicted_total", "Readings evicted by the per-group bound.", float64(st.Evicted)),
		counter("sensorhub_alert_readings_total", "Ingested readings above the alert threshold.", float64(st.Alerts)),
		resultCounter("sensorhub_snapshot_writes_total", "Snapshot file writes by result.", &r.snapshotWrites),
		resultCounter("sensorhub_kafka_published_total", "Readings published to Kafka by result.", &r.kafkaPublishes),
		resultCounter("sensorhub_mqtt_messages_total", "MQTT messages received by result.", &r.mqttMessages),
	}

	r.mu.RLock()
	clients := r.streamClients
	r.mu.RUnlock()
	if clients != nil {
		mfs = append(mfs, gauge("sensorhub_stream_clients", "Connected WebSocket clients.", float64(clients())))
	}
	return mfs
}

// ServeHTTP writes the metric families in the format negotiated from the
// request's Accept header.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	format := expfmt.Negotiate(req.Header)
	w.Header().Set("Content-Type", string(format))
	enc := expfmt.NewEncoder(w, format)
	for _, mf := range r.Gather() {
		if err := enc.Encode(mf); err != nil {
			slog.Error("metrics: encode failed", "family", mf.GetName(), "err", err)
			return
		}
	}
	if closer, ok := enc.(expfmt.Closer); ok {
		closer.Close() //nolint:errcheck
	}
}

// --- family builders --------------------------------------------------------

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{
			{Gauge: &dto.Gauge{Value: proto.Float64(v)}},
		},
	}
}

func counter(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{
			{Counter: &dto.Counter{Value: proto.Float64(v)}},
		},
	}
}

func resultCounter(name, help string, o *outcome) *dto.MetricFamily {
	metric := func(result string, v uint64) *dto.Metric {
		return &dto.Metric{
			Label: []*dto.LabelPair{
				{Name: proto.String("result"), Value: proto.String(result)},
			},
			Counter: &dto.Counter{Value: proto.Float64(float64(v))},
		}
	}
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{
			metric("error", o.err.Load()),
			metric("ok", o.ok.Load()),
		},
	}
}
