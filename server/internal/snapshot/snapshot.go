package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sensorhub/sensorhub/pkg/types"
)

// Encode serializes doc as an indented JSON object.
func Encode(doc *types.Document) ([]byte, error) {
	if doc == nil {
		doc = &types.Document{}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode: %w", err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("snapshot: indent: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a snapshot produced by Encode.
func Decode(data []byte) (*types.Document, error) {
	doc := &types.Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("snapshot: parse: %w", err)
	}
	return doc, nil
}

// Load reads and parses the snapshot at path. The returned error wraps
// fs.ErrNotExist when the file is missing.
func Load(path string) (*types.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read %q: %w", path, err)
	}
	return Decode(data)
}

// Writer owns the snapshot file. Create it with New, start Run in a
// goroutine, then call Save from any goroutine.
type Writer struct {
	path    string
	pending chan *types.Document
	onWrite func(error)
}

// New creates a Writer for the snapshot file at path.
func New(path string) *Writer {
	return &Writer{
		path:    path,
		pending: make(chan *types.Document, 1),
	}
}

// Path returns the snapshot file path.
func (w *Writer) Path() string { return w.path }

// OnWrite registers fn to be called with the outcome of every write
// (nil on success). It must be set before Run is started.
func (w *Writer) OnWrite(fn func(error)) { w.onWrite = fn }

// Load reads the snapshot file. Any failure is logged as a warning and an
// empty document is returned.
func (w *Writer) Load() *types.Document {
	doc, err := Load(w.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Warn("snapshot: file not found, starting with empty store", "path", w.path)
		return &types.Document{}
	case err != nil:
		slog.Warn("snapshot: load failed, starting with empty store", "path", w.path, "err", err)
		return &types.Document{}
	}
	slog.Info("snapshot: loaded", "path", w.path, "groups", doc.Len())
	return doc
}

// Save schedules doc to be written. It never blocks; a snapshot that has not
// been written yet is replaced by doc.
func (w *Writer) Save(doc *types.Document) {
	for {
		select {
		case w.pending <- doc:
			return
		default:
		}
		// Slot taken by an unwritten snapshot: drop it, keep the newest.
		select {
		case <-w.pending:
			slog.Debug("snapshot: superseded pending write", "path", w.path)
		default:
		}
	}
}

// Run writes scheduled snapshots until ctx is cancelled. A snapshot still
// pending at cancellation is written before Run returns.
func (w *Writer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			select {
			case doc := <-w.pending:
				w.write(doc)
			default:
			}
			return
		case doc := <-w.pending:
			w.write(doc)
		}
	}
}

func (w *Writer) write(doc *types.Document) {
	err := w.writeDoc(doc)
	if err != nil {
		slog.Error("snapshot: write failed", "path", w.path, "err", err)
	} else {
		slog.Debug("snapshot: written", "path", w.path, "groups", doc.Len())
	}
	if w.onWrite != nil {
		w.onWrite(err)
	}
}

func (w *Writer) writeDoc(doc *types.Document) error {
	data, err := Encode(doc)
	if err != nil {
		return err
	}
	return writeFileAtomic(w.path, data)
}

// writeFileAtomic writes data to a temp file next to path and renames it
// into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
