package audit

import (
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/newtron-network/lookupclass/pkg/state"
)

func newLogger(t *testing.T, rotation RotationConfig) (*FileLogger, string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "audit.log")
	logger, err := NewFileLogger(logPath, rotation)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger, logPath
}

func TestEvent_New(t *testing.T) {
	event := NewEvent(KindRoute, "20.0.0.0/24").
		WithClassIDs(state.NoClassID, 10).
		WithChange(state.Changed).
		WithGeneration(7)

	if event.Kind != KindRoute || event.Key != "20.0.0.0/24" {
		t.Errorf("event = %+v", event)
	}
	if event.OldClassID != state.NoClassID || event.NewClassID != 10 {
		t.Errorf("classIDs = %s -> %s", event.OldClassID, event.NewClassID)
	}
	if event.Change != "changed" {
		t.Errorf("Change = %q, want changed", event.Change)
	}
	if event.ID == "" {
		t.Error("ID should not be empty")
	}
	if event.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestEventsFromDelta(t *testing.T) {
	mac := net.HardwareAddr{0x02, 0, 0, 0, 0, 5}
	b := state.Empty().Modify()
	b.SetVlan(100, "Vlan100", 100)
	b.SetRoute(state.NewRoute(0, netip.MustParsePrefix("20.0.0.0/24")).WithClassID(10))
	b.SetRoute(state.NewRoute(2, netip.MustParsePrefix("20.0.1.0/24")).WithClassID(11))
	b.SetRoute(state.NewRoute(0, netip.MustParsePrefix("20.0.2.0/24")))
	if err := b.SetMacEntry(state.NewMacEntry(100, mac, 1, 12)); err != nil {
		t.Fatal(err)
	}
	old := b.Publish()

	b = old.Modify()
	r, _ := b.Route(0, netip.MustParsePrefix("20.0.0.0/24"))
	b.SetRoute(r.WithClassID(20))
	b.RemoveRoute(2, netip.MustParsePrefix("20.0.1.0/24"))
	b.SetRoute(state.NewRoute(0, netip.MustParsePrefix("20.0.3.0/24")))
	e, _ := b.MacEntry(100, mac)
	if err := b.SetMacEntry(e.WithClassID(state.NoClassID)); err != nil {
		t.Fatal(err)
	}
	next := b.Publish()

	events := EventsFromDelta(state.NewDelta(old, next))
	want := []struct {
		kind     Kind
		key      string
		change   string
		old, new state.ClassID
	}{
		{KindRoute, "20.0.0.0/24", "changed", 10, 20},
		{KindRoute, "Vrf2:20.0.1.0/24", "removed", 11, state.NoClassID},
		{KindMAC, "Vlan100|02:00:00:00:00:05", "changed", 12, state.NoClassID},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(want), events)
	}
	for i, w := range want {
		got := events[i]
		if got.Kind != w.kind || got.Key != w.key || got.Change != w.change ||
			got.OldClassID != w.old || got.NewClassID != w.new {
			t.Errorf("event %d = %+v, want %+v", i, got, w)
		}
		if got.Generation != next.Generation() {
			t.Errorf("event %d generation = %d, want %d", i, got.Generation, next.Generation())
		}
	}
}

func TestJournal(t *testing.T) {
	logger, _ := newLogger(t, RotationConfig{})
	j := NewJournal(logger)

	b := state.Empty().Modify()
	b.SetRoute(state.NewRoute(0, netip.MustParsePrefix("20.0.0.0/24")).WithClassID(10))
	s1 := b.Publish()
	j.StateUpdated(state.NewDelta(state.Empty(), s1))

	b = s1.Modify()
	b.RemoveRoute(0, netip.MustParsePrefix("20.0.0.0/24"))
	j.StateUpdated(state.NewDelta(s1, b.Publish()))

	events, err := logger.Query(Filter{Key: "20.0.0.0/24"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Change != "added" || events[0].NewClassID != 10 {
		t.Errorf("first event = %+v", events[0])
	}
	if events[1].Change != "removed" || events[1].OldClassID != 10 {
		t.Errorf("second event = %+v", events[1])
	}
}

func TestFileLogger_QueryFilters(t *testing.T) {
	logger, _ := newLogger(t, RotationConfig{})

	events := []*Event{
		NewEvent(KindRoute, "20.0.0.0/24").WithClassIDs(0, 10).WithGeneration(1),
		NewEvent(KindRoute, "20.0.1.0/24").WithClassIDs(0, 11).WithGeneration(2),
		NewEvent(KindMAC, "Vlan100|02:00:00:00:00:05").WithClassIDs(0, 10).WithGeneration(3),
		NewEvent(KindRoute, "20.0.0.0/24").WithClassIDs(10, 0).WithGeneration(4),
	}
	for _, e := range events {
		if err := logger.Log(e); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"kind", Filter{Kind: KindMAC}, 1},
		{"key", Filter{Key: "20.0.0.0/24"}, 2},
		{"class matches old or new", Filter{ClassID: 10}, 3},
		{"min generation", Filter{MinGeneration: 3}, 2},
		{"set only", Filter{SetOnly: true}, 3},
		{"clear only", Filter{ClearOnly: true}, 1},
		{"limit", Filter{Limit: 2}, 2},
		{"offset", Filter{Offset: 3}, 1},
		{"offset past end", Filter{Offset: 10}, 0},
		{"future start", Filter{StartTime: time.Now().Add(time.Hour)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := logger.Query(tt.filter)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(results) != tt.want {
				t.Errorf("got %d events, want %d", len(results), tt.want)
			}
		})
	}
}

func TestFileLogger_SkipsMalformedLines(t *testing.T) {
	logger, logPath := newLogger(t, RotationConfig{})
	if err := logger.Log(NewEvent(KindRoute, "20.0.0.0/24")); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("not json\n")
	f.Close()

	events, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("Expected 1 event, got %d", len(events))
	}
}

func TestFileLogger_RotationWithCleanup(t *testing.T) {
	logger, logPath := newLogger(t, RotationConfig{
		MaxSize:    50, // Very small to trigger many rotations
		MaxBackups: 2,
	})

	for i := 0; i < 10; i++ {
		if err := logger.Log(NewEvent(KindRoute, "20.0.0.0/24").WithGeneration(uint64(i))); err != nil {
			t.Fatalf("Log failed on iteration %d: %v", i, err)
		}
	}

	matches, err := filepath.Glob(logPath + ".*")
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("Expected 2 backup files, got %d", len(matches))
	}

	// Each file holds one event; only the retained backups are queried.
	events, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	for i, want := range []uint64{7, 8, 9} {
		if events[i].Generation != want {
			t.Errorf("event %d generation = %d, want %d", i, events[i].Generation, want)
		}
	}
}
