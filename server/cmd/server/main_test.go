package main

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sensorhub/sensorhub/server/internal/snapshot"
	"github.com/sensorhub/sensorhub/server/internal/store"
)

// A reading ingested while an ingest source is shutting down must still reach
// the final snapshot.
func TestDrain_LateIngestIsFlushed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groups.json")
	writer := snapshot.New(path)
	st := store.New(5, store.WithPersister(writer))

	var writers, ingest sync.WaitGroup
	bg, stopBg := context.WithCancel(context.Background())
	defer stopBg()
	writers.Add(1)
	go func() {
		defer writers.Done()
		writer.Run(bg)
	}()

	release := make(chan struct{})
	ingest.Add(1)
	go func() {
		defer ingest.Done()
		<-release
		time.Sleep(20 * time.Millisecond)
		st.Ingest("late", 21, 40) //nolint:errcheck
	}()

	close(release)
	drain(&ingest, &writers, stopBg)

	doc, err := snapshot.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Len() != 1 || doc.Groups[0].Name != "late" || len(doc.Groups[0].Readings) != 1 {
		t.Errorf("snapshot: got %+v, want group late with one reading", doc.Groups)
	}
}
