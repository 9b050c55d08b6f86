package store

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/sensorhub/sensorhub/pkg/types"
	"github.com/sensorhub/sensorhub/server/internal/ringbuf"
)

// Default values used when the configuration leaves them unset.
const (
	DefaultMaxLogsPerGroup = 20
	DefaultAlertThreshold  = 20.0
)

var (
	// ErrInvalidInput is returned by Ingest for non-finite values or an
	// empty group name.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidName is returned by CreateGroup for an empty name.
	ErrInvalidName = errors.New("group name is required")

	// ErrAlreadyExists is returned by CreateGroup for a name already in use.
	ErrAlreadyExists = errors.New("group already exists")

	// ErrNotFound is returned for operations on an unknown group.
	ErrNotFound = errors.New("group not found")
)

// Persister receives a full snapshot after every mutation. Save must not
// block: it is called with the store lock held.
type Persister interface {
	Save(doc *types.Document)
}

// Observer is notified of every ingested reading. ReadingIngested is called
// outside the store lock and must return quickly.
type Observer interface {
	ReadingIngested(group string, r types.Reading)
}

// Stats is a point-in-time summary of the store.
type Stats struct {
	Groups   int
	Retained int

	// Counters since process start.
	Ingested uint64
	Evicted  uint64
	Alerts   uint64
}

// Store is the thread-safe group log store.
type Store struct {
	mu        sync.RWMutex
	groups    map[string]*ringbuf.Ring[types.Reading]
	order     []string // group names in insertion order
	maxLogs   int
	threshold float64
	persist   Persister
	observers []Observer

	ingested uint64
	evicted  uint64
	alerts   uint64

	now func() time.Time // injectable for deterministic tests
}

// Option configures a Store.
type Option func(*Store)

// WithPersister sets the snapshot sink called after every mutation.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persist = p }
}

// WithAlertThreshold sets the temperature above which readings are flagged.
func WithAlertThreshold(v float64) Option {
	return func(s *Store) { s.threshold = v }
}

// New creates an empty Store keeping at most maxLogs readings per group.
// A maxLogs below 1 selects DefaultMaxLogsPerGroup.
func New(maxLogs int, opts ...Option) *Store {
	if maxLogs < 1 {
		maxLogs = DefaultMaxLogsPerGroup
	}
	s := &Store{
		groups:    make(map[string]*ringbuf.Ring[types.Reading]),
		maxLogs:   maxLogs,
		threshold: DefaultAlertThreshold,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Observe registers o to be notified of every subsequent ingested reading.
func (s *Store) Observe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Restore replaces the store contents with doc without persisting. Groups
// holding more than MaxLogsPerGroup readings keep only the newest ones.
// A nil doc empties the store.
func (s *Store) Restore(doc *types.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.groups = make(map[string]*ringbuf.Ring[types.Reading])
	s.order = nil
	if doc == nil {
		return
	}
	for _, g := range doc.Groups {
		if g.Name == "" {
			slog.Warn("store: skipping snapshot group with empty name")
			continue
		}
		ring, ok := s.groups[g.Name]
		if !ok {
			ring = ringbuf.New[types.Reading](s.maxLogs)
			s.groups[g.Name] = ring
			s.order = append(s.order, g.Name)
		}
		dropped := 0
		for _, r := range g.Readings {
			if _, evicted := ring.Push(r); evicted {
				dropped++
			}
		}
		if dropped > 0 {
			slog.Warn("store: snapshot group exceeds capacity, oldest readings dropped",
				"group", g.Name, "dropped", dropped, "max_logs", s.maxLogs)
		}
	}
}

// CreateGroup adds an empty group named name.
func (s *Store) CreateGroup(name string) (types.GroupLog, error) {
	if name == "" {
		return types.GroupLog{}, ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[name]; ok {
		return types.GroupLog{}, fmt.Errorf("%w: %q", ErrAlreadyExists, name)
	}
	s.addGroupLocked(name)
	s.saveLocked()

	slog.Info("store: group created", "group", name)
	return types.GroupLog{Name: name, Readings: []types.Reading{}}, nil
}

// DeleteGroup removes the group and all of its readings.
func (s *Store) DeleteGroup(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	delete(s.groups, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.saveLocked()

	slog.Info("store: group deleted", "group", name)
	return nil
}

// ListGroups returns all group names in insertion order.
func (s *Store) ListGroups() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Ingest records a reading for group, creating the group if it does not
// exist. The reading is timestamped now and flagged as an alert when
// temperature exceeds the alert threshold.
func (s *Store) Ingest(group string, temperature, humidity float64) (types.Reading, error) {
	if group == "" {
		return types.Reading{}, fmt.Errorf("%w: group name is required", ErrInvalidInput)
	}
	if !finite(temperature) || !finite(humidity) {
		return types.Reading{}, fmt.Errorf("%w: temperature and humidity must be numbers", ErrInvalidInput)
	}

	s.mu.Lock()
	ring, ok := s.groups[group]
	if !ok {
		ring = s.addGroupLocked(group)
		slog.Info("store: group auto-created", "group", group)
	}

	r := types.Reading{
		Temperature: temperature,
		Humidity:    humidity,
		Timestamp:   s.now().UTC().Truncate(time.Millisecond),
		Alert:       temperature > s.threshold,
	}
	if _, evicted := ring.Push(r); evicted {
		s.evicted++
	}
	s.ingested++
	if r.Alert {
		s.alerts++
	}
	s.saveLocked()
	observers := s.observers
	s.mu.Unlock()

	for _, o := range observers {
		o.ReadingIngested(group, r)
	}
	return r, nil
}

// GetLogs returns the readings of group, oldest first.
func (s *Store) GetLogs(group string) ([]types.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring, ok := s.groups[group]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, group)
	}
	return ring.Slice(), nil
}

// Snapshot returns a deep copy of the store contents in group order.
func (s *Store) Snapshot() *types.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Stats returns group and reading counts.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Groups:   len(s.groups),
		Ingested: s.ingested,
		Evicted:  s.evicted,
		Alerts:   s.alerts,
	}
	for _, ring := range s.groups {
		st.Retained += ring.Len()
	}
	return st
}

// MaxLogsPerGroup returns the per-group capacity.
func (s *Store) MaxLogsPerGroup() int { return s.maxLogs }

// AlertThreshold returns the temperature threshold currently in force.
func (s *Store) AlertThreshold() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold
}

// SetAlertThreshold changes the threshold for readings ingested from now on.
// Existing readings keep the flag computed at their ingestion.
func (s *Store) SetAlertThreshold(v float64) {
	s.mu.Lock()
	old := s.threshold
	s.threshold = v
	s.mu.Unlock()

	if old != v {
		slog.Info("store: alert threshold changed", "old", old, "new", v)
	}
}

// --- internal ---------------------------------------------------------------

func (s *Store) addGroupLocked(name string) *ringbuf.Ring[types.Reading] {
	ring := ringbuf.New[types.Reading](s.maxLogs)
	s.groups[name] = ring
	s.order = append(s.order, name)
	return ring
}

func (s *Store) snapshotLocked() *types.Document {
	doc := &types.Document{Groups: make([]types.GroupLog, 0, len(s.order))}
	for _, name := range s.order {
		doc.Groups = append(doc.Groups, types.GroupLog{
			Name:     name,
			Readings: s.groups[name].Slice(),
		})
	}
	return doc
}

// saveLocked hands the current state to the persister. Callers hold s.mu.
func (s *Store) saveLocked() {
	if s.persist == nil {
		return
	}
	s.persist.Save(s.snapshotLocked())
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
