// Package bus publishes ingested readings to Kafka.
//
// Publisher is a store observer: ReadingIngested never blocks, it enqueues
// the message in a bounded buffer and evicts the oldest queued message when
// the buffer is full. Run drains the buffer in batches. Messages are keyed by
// group name so that a group's readings stay ordered within a partition.
//
// Message value:
//
//	{"group": "serre", "log": {"temperature": 25, "humidity": 50, "date": "...", "alert": true}}
package bus
