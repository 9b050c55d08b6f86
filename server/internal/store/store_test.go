package store

import (
	"errors"
	"math"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/sensorhub/sensorhub/pkg/types"
)

// fixedClock returns a func() time.Time that always returns t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

// recorder is a Persister and Observer that remembers what it was given.
type recorder struct {
	mu       sync.Mutex
	docs     []*types.Document
	readings []types.Reading
	groups   []string
}

func (r *recorder) Save(doc *types.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = append(r.docs, doc)
}

func (r *recorder) ReadingIngested(group string, rd types.Reading) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups = append(r.groups, group)
	r.readings = append(r.readings, rd)
}

func (r *recorder) saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}

func TestIngest_AutoCreatesGroup(t *testing.T) {
	st := New(20)
	if _, err := st.Ingest("kitchen", 21, 40); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if got := st.ListGroups(); !reflect.DeepEqual(got, []string{"kitchen"}) {
		t.Errorf("ListGroups: got %v, want [kitchen]", got)
	}
	logs, err := st.GetLogs("kitchen")
	if err != nil {
		t.Fatalf("GetLogs: %v", err)
	}
	if len(logs) != 1 {
		t.Errorf("GetLogs: got %d readings, want 1", len(logs))
	}
}

func TestIngest_AlertFlag(t *testing.T) {
	st := New(20)

	hot, err := st.Ingest("g1", 25, 50)
	if err != nil {
		t.Fatalf("Ingest hot: %v", err)
	}
	if !hot.Alert {
		t.Error("Ingest(25): expected alert=true with default threshold 20")
	}

	cold, err := st.Ingest("g1", 15, 50)
	if err != nil {
		t.Fatalf("Ingest cold: %v", err)
	}
	if cold.Alert {
		t.Error("Ingest(15): expected alert=false with default threshold 20")
	}

	edge, _ := st.Ingest("g1", 20, 50)
	if edge.Alert {
		t.Error("Ingest(20): threshold is exclusive, expected alert=false")
	}
}

func TestIngest_TimestampFromClock(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 123456789, time.UTC)
	st := New(20)
	st.now = fixedClock(base)

	r, err := st.Ingest("g", 1, 2)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	want := base.Truncate(time.Millisecond)
	if !r.Timestamp.Equal(want) {
		t.Errorf("Timestamp: got %v, want %v", r.Timestamp, want)
	}
	if r.Temperature != 1 || r.Humidity != 2 {
		t.Errorf("values: got (%v, %v), want (1, 2)", r.Temperature, r.Humidity)
	}
}

func TestIngest_InvalidInput(t *testing.T) {
	cases := []struct {
		name        string
		group       string
		temperature float64
		humidity    float64
	}{
		{"nan temperature", "g", math.NaN(), 50},
		{"inf humidity", "g", 20, math.Inf(1)},
		{"negative inf temperature", "g", math.Inf(-1), 50},
		{"empty group", "", 20, 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := New(20)
			_, err := st.Ingest(tc.group, tc.temperature, tc.humidity)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("Ingest: got %v, want ErrInvalidInput", err)
			}
			if n := len(st.ListGroups()); n != 0 {
				t.Errorf("ListGroups after rejected ingest: got %d groups, want 0", n)
			}
		})
	}
}

func TestIngest_FIFOBound(t *testing.T) {
	st := New(20)
	for i := 1; i <= 25; i++ {
		if _, err := st.Ingest("g", float64(i), 50); err != nil {
			t.Fatalf("Ingest #%d: %v", i, err)
		}
	}

	logs, err := st.GetLogs("g")
	if err != nil {
		t.Fatalf("GetLogs: %v", err)
	}
	if len(logs) != 20 {
		t.Fatalf("GetLogs: got %d readings, want 20", len(logs))
	}
	for i, r := range logs {
		if want := float64(i + 6); r.Temperature != want {
			t.Errorf("logs[%d].Temperature: got %v, want %v", i, r.Temperature, want)
		}
	}

	stats := st.Stats()
	if stats.Evicted != 5 {
		t.Errorf("Stats.Evicted: got %d, want 5", stats.Evicted)
	}
	if stats.Ingested != 25 {
		t.Errorf("Stats.Ingested: got %d, want 25", stats.Ingested)
	}
}

func TestIngest_BoundHoldsPerGroup(t *testing.T) {
	st := New(3)
	for i := 0; i < 10; i++ {
		st.Ingest("a", float64(i), 0) //nolint:errcheck
		if i%2 == 0 {
			st.Ingest("b", float64(i), 0) //nolint:errcheck
		}
	}
	for _, g := range st.ListGroups() {
		logs, _ := st.GetLogs(g)
		if len(logs) > 3 {
			t.Errorf("group %s: got %d readings, bound is 3", g, len(logs))
		}
	}
	b, _ := st.GetLogs("b")
	want := []float64{4, 6, 8}
	for i, r := range b {
		if r.Temperature != want[i] {
			t.Errorf("b[%d]: got %v, want %v", i, r.Temperature, want[i])
		}
	}
}

func TestCreateGroup(t *testing.T) {
	st := New(20)
	g, err := st.CreateGroup("x")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if g.Name != "x" || len(g.Readings) != 0 {
		t.Errorf("CreateGroup: got %+v, want empty group x", g)
	}

	logs, err := st.GetLogs("x")
	if err != nil {
		t.Fatalf("GetLogs: %v", err)
	}
	if logs == nil || len(logs) != 0 {
		t.Errorf("GetLogs on new group: got %#v, want empty slice", logs)
	}
}

func TestCreateGroup_Duplicate(t *testing.T) {
	rec := &recorder{}
	st := New(20, WithPersister(rec))
	if _, err := st.CreateGroup("x"); err != nil {
		t.Fatalf("first CreateGroup: %v", err)
	}
	st.Ingest("x", 10, 10) //nolint:errcheck
	saves := rec.saves()

	_, err := st.CreateGroup("x")
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("second CreateGroup: got %v, want ErrAlreadyExists", err)
	}
	if rec.saves() != saves {
		t.Error("rejected CreateGroup must not schedule persistence")
	}
	logs, _ := st.GetLogs("x")
	if len(logs) != 1 {
		t.Errorf("store changed by rejected CreateGroup: got %d readings, want 1", len(logs))
	}
}

func TestCreateGroup_EmptyName(t *testing.T) {
	st := New(20)
	if _, err := st.CreateGroup(""); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("CreateGroup(\"\"): got %v, want ErrInvalidName", err)
	}
}

func TestCreateGroup_CaseSensitive(t *testing.T) {
	st := New(20)
	if _, err := st.CreateGroup("Lab"); err != nil {
		t.Fatalf("CreateGroup(Lab): %v", err)
	}
	if _, err := st.CreateGroup("lab"); err != nil {
		t.Fatalf("CreateGroup(lab): %v", err)
	}
	if n := len(st.ListGroups()); n != 2 {
		t.Errorf("ListGroups: got %d, want 2", n)
	}
}

func TestDeleteGroup(t *testing.T) {
	st := New(20)
	st.Ingest("x", 10, 10) //nolint:errcheck

	if err := st.DeleteGroup("x"); err != nil {
		t.Fatalf("DeleteGroup: %v", err)
	}
	if _, err := st.GetLogs("x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetLogs after delete: got %v, want ErrNotFound", err)
	}
	if n := len(st.ListGroups()); n != 0 {
		t.Errorf("ListGroups after delete: got %d, want 0", n)
	}
}

func TestDeleteGroup_Unknown(t *testing.T) {
	st := New(20)
	if err := st.DeleteGroup("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("DeleteGroup: got %v, want ErrNotFound", err)
	}
}

func TestGetLogs_Unknown(t *testing.T) {
	st := New(20)
	if _, err := st.GetLogs("never"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetLogs: got %v, want ErrNotFound", err)
	}
	if n := len(st.ListGroups()); n != 0 {
		t.Errorf("GetLogs must not create groups: got %d groups", n)
	}
}

func TestListGroups_InsertionOrder(t *testing.T) {
	st := New(20)
	st.CreateGroup("c")  //nolint:errcheck
	st.Ingest("a", 1, 1) //nolint:errcheck
	st.CreateGroup("b")  //nolint:errcheck
	st.Ingest("c", 1, 1) //nolint:errcheck
	st.DeleteGroup("a")  //nolint:errcheck
	st.Ingest("a", 1, 1) //nolint:errcheck

	want := []string{"c", "b", "a"}
	if got := st.ListGroups(); !reflect.DeepEqual(got, want) {
		t.Errorf("ListGroups: got %v, want %v", got, want)
	}
}

func TestPersister_CalledOnEveryMutation(t *testing.T) {
	rec := &recorder{}
	st := New(20, WithPersister(rec))

	st.CreateGroup("a")  //nolint:errcheck
	st.Ingest("a", 1, 1) //nolint:errcheck
	st.Ingest("b", 2, 2) //nolint:errcheck
	st.DeleteGroup("a")  //nolint:errcheck
	st.GetLogs("b")      //nolint:errcheck
	st.ListGroups()

	if n := rec.saves(); n != 4 {
		t.Fatalf("Save calls: got %d, want 4", n)
	}
	last := rec.docs[3]
	if last.Len() != 1 || last.Groups[0].Name != "b" {
		t.Errorf("last snapshot: got %+v, want only group b", last.Groups)
	}
}

func TestObserver_Notified(t *testing.T) {
	rec := &recorder{}
	st := New(20)
	st.Observe(rec)

	st.Ingest("g", 30, 10) //nolint:errcheck
	st.CreateGroup("h")    //nolint:errcheck

	if len(rec.readings) != 1 {
		t.Fatalf("observer: got %d readings, want 1", len(rec.readings))
	}
	if rec.groups[0] != "g" || !rec.readings[0].Alert {
		t.Errorf("observer: got (%s, %+v), want alerting reading for g", rec.groups[0], rec.readings[0])
	}
}

func TestRestore_TrimsAndKeepsOrder(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var many []types.Reading
	for i := 0; i < 5; i++ {
		many = append(many, types.Reading{Temperature: float64(i), Timestamp: base.Add(time.Duration(i) * time.Second)})
	}
	doc := &types.Document{Groups: []types.GroupLog{
		{Name: "z", Readings: many},
		{Name: "a"},
	}}

	st := New(3)
	st.Restore(doc)

	if got := st.ListGroups(); !reflect.DeepEqual(got, []string{"z", "a"}) {
		t.Errorf("ListGroups: got %v, want [z a]", got)
	}
	logs, _ := st.GetLogs("z")
	if len(logs) != 3 || logs[0].Temperature != 2 || logs[2].Temperature != 4 {
		t.Errorf("GetLogs(z): got %+v, want temperatures 2..4", logs)
	}
}

func TestSnapshot_RestoreRoundTrip(t *testing.T) {
	src := New(20)
	src.Ingest("g1", 25, 50) //nolint:errcheck
	src.Ingest("g1", 15, 55) //nolint:errcheck
	src.CreateGroup("empty") //nolint:errcheck

	dst := New(20)
	dst.Restore(src.Snapshot())

	if !reflect.DeepEqual(dst.ListGroups(), src.ListGroups()) {
		t.Errorf("ListGroups: got %v, want %v", dst.ListGroups(), src.ListGroups())
	}
	a, _ := src.GetLogs("g1")
	b, _ := dst.GetLogs("g1")
	if !reflect.DeepEqual(a, b) {
		t.Errorf("GetLogs(g1): got %+v, want %+v", b, a)
	}
}

func TestSetAlertThreshold(t *testing.T) {
	st := New(20, WithAlertThreshold(30))
	r1, _ := st.Ingest("g", 25, 0)
	if r1.Alert {
		t.Error("threshold 30: reading at 25 should not alert")
	}

	st.SetAlertThreshold(20)
	r2, _ := st.Ingest("g", 25, 0)
	if !r2.Alert {
		t.Error("threshold 20: reading at 25 should alert")
	}

	logs, _ := st.GetLogs("g")
	if logs[0].Alert {
		t.Error("existing readings must keep the flag computed at ingestion")
	}
	if st.AlertThreshold() != 20 {
		t.Errorf("AlertThreshold: got %v, want 20", st.AlertThreshold())
	}
}

func TestNew_DefaultCapacity(t *testing.T) {
	if got := New(0).MaxLogsPerGroup(); got != DefaultMaxLogsPerGroup {
		t.Errorf("MaxLogsPerGroup: got %d, want %d", got, DefaultMaxLogsPerGroup)
	}
}

func TestConcurrentIngest(t *testing.T) {
	st := New(20, WithPersister(&recorder{}))
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func(n int) {
			defer wg.Done()
			st.Ingest("shared", float64(n), 0) //nolint:errcheck
		}(i)
		go func() {
			defer wg.Done()
			st.GetLogs("shared") //nolint:errcheck
		}()
		go func() {
			defer wg.Done()
			st.Snapshot()
		}()
	}
	wg.Wait()

	logs, _ := st.GetLogs("shared")
	if len(logs) != 20 {
		t.Errorf("GetLogs: got %d readings, want 20", len(logs))
	}
	if st.Stats().Ingested != 50 {
		t.Errorf("Stats.Ingested: got %d, want 50", st.Stats().Ingested)
	}
}
