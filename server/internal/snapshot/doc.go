// Package snapshot persists the group log store to a JSON file.
//
// Load reads the snapshot at startup; a missing or unparseable file yields an
// empty document and a warning, never an error that stops the server.
//
// Writer.Save is non-blocking: it hands the document to a single background
// writer goroutine (Writer.Run). If a snapshot is still waiting when a newer
// one arrives, the older one is discarded, so writes never overlap and the
// file always holds a complete snapshot. Each write goes to a temporary file
// that is then renamed over the target.
package snapshot
