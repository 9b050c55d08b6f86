// Package types defines the Go types shared by the sensorhub server packages
// and by clients of its HTTP API: a single sensor Reading, the Sample body a
// device submits, and the ordered snapshot Document persisted to disk.
//
// JSON encodings here are the wire and on-disk formats. A Reading encodes as
//
//	{"temperature": 21.5, "humidity": 40, "date": "2024-05-01T10:00:00.000Z", "alert": true}
//
// and a Document encodes as a single object mapping group name to an array of
// readings, keys in group insertion order.
package types
