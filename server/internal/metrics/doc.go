// Package metrics exposes sensorhub counters in the Prometheus text format.
//
// Store-derived values (groups, retained readings, ingest/evict/alert totals)
// are read from the store on every scrape; the snapshot writer, Kafka
// publisher, MQTT subscriber and WebSocket hub report into the Registry.
package metrics
