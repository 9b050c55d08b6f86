// Package store holds the authoritative in-memory group log: a mapping from
// group name to a bounded, oldest-first sequence of sensor readings.
//
// Each group keeps at most MaxLogsPerGroup readings; ingesting into a full
// group evicts the oldest reading. Ingest creates unknown groups on the fly,
// while GetLogs and DeleteGroup require the group to exist.
//
// Every mutation hands a consistent snapshot Document to the configured
// Persister while still holding the lock, so persisted snapshots are applied
// in mutation order. Observers are notified of new readings after the lock
// is released.
package store
