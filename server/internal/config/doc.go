// Package config loads the sensorhub configuration from a YAML file.
//
// Config sections:
//   - Server: HTTP port (default 5000, PORT env overrides), CORS origins, access log
//   - Store: max readings per group (20), alert threshold (20), snapshot path
//   - Alerts: notification rules and webhook targets
//   - Stream: WebSocket summary broadcast interval (5s)
//   - Kafka: optional publishing of ingested readings
//   - MQTT: optional ingestion from an MQTT broker
//
// Load(path) applies defaults before unmarshalling, then validates. A missing
// file yields the defaults. Watch(ctx, path, fn) reloads on change; only the
// alert threshold and alert rules are applied without a restart.
package config
