package roster

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bus-tracker/internal/fleet"
)

var now = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func ago(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

type fakeLister struct {
	mu      sync.Mutex
	records []fleet.BusRecord
	err     error
	calls   int
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeLister) set(records []fleet.BusRecord, err error) {
	f.mu.Lock()
	f.records, f.err = records, err
	f.mu.Unlock()
}

func (f *fakeLister) ListBuses(ctx context.Context) ([]fleet.BusRecord, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return append([]fleet.BusRecord(nil), f.records...), f.err
}

type fakeFocus struct{ at []fleet.Coordinates }

func (f *fakeFocus) Focus(_ context.Context, at fleet.Coordinates) error {
	f.at = append(f.at, at)
	return nil
}

func bus(id int, zone string, lat float64, last *time.Time) fleet.BusRecord {
	return fleet.BusRecord{
		ID:         "rec-" + zone + "-" + string(rune('a'+id)),
		BusID:      id,
		Zone:       zone,
		Location:   fleet.Coordinates{Lat: lat, Lng: 72.5},
		LastUpdate: last,
	}
}

func newEngine(l Lister, scope Scope, focus Focuser) *Engine {
	return New(Options{
		Lister:       l,
		Scope:        scope,
		Interval:     time.Hour,
		ActiveWindow: fleet.DefaultActiveWindow,
		Focus:        focus,
		Now:          func() time.Time { return now },
	})
}

func TestPollFiltersZoneAndCounts(t *testing.T) {
	l := &fakeLister{records: []fleet.BusRecord{
		bus(4, "Zone 2", 23.1, ago(time.Minute)),
		bus(5, "Zone 3", 23.2, ago(time.Minute)),
		bus(6, "zone2", 23.3, nil),
		bus(8, "", 23.4, ago(time.Second)),
	}}
	e := newEngine(l, ZoneScope("Zone - 2"), nil)

	if err := e.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	v := e.View(now)
	if len(v.Buses) != 2 || v.Buses[0].BusID != 4 || v.Buses[1].BusID != 6 {
		t.Fatalf("visible = %+v", v.Buses)
	}
	if v.Counts != (fleet.Counts{Active: 1, Inactive: 1}) {
		t.Fatalf("counts = %+v", v.Counts)
	}
	if v.Buses[0].Status != fleet.Active || v.Buses[1].Status != fleet.Inactive {
		t.Fatalf("statuses = %v, %v", v.Buses[0].Status, v.Buses[1].Status)
	}
	if !v.Loaded {
		t.Fatal("view should be loaded after a successful poll")
	}
}

func TestAllZonesScope(t *testing.T) {
	l := &fakeLister{records: []fleet.BusRecord{
		bus(1, "Zone 1", 23.0, nil),
		bus(2, "", 23.1, nil),
	}}
	e := newEngine(l, AllZones(), nil)
	if err := e.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := e.Counts(now); got.Inactive != 2 {
		t.Fatalf("counts = %+v", got)
	}
}

func TestPollIsIdempotent(t *testing.T) {
	l := &fakeLister{records: []fleet.BusRecord{bus(1, "Zone 1", 23.0, ago(time.Minute))}}
	e := newEngine(l, ZoneScope("Zone 1"), nil)
	ctx := context.Background()

	if err := e.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	first := e.View(now)
	if err := e.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	second := e.View(now)
	if len(first.Buses) != len(second.Buses) || first.Counts != second.Counts {
		t.Fatalf("repeat poll changed view: %+v vs %+v", first, second)
	}
}

func TestPollFailureKeepsSnapshot(t *testing.T) {
	l := &fakeLister{records: []fleet.BusRecord{bus(1, "Zone 1", 23.0, nil)}}
	e := newEngine(l, ZoneScope("Zone 1"), nil)
	ctx := context.Background()
	if err := e.Poll(ctx); err != nil {
		t.Fatal(err)
	}

	l.set(nil, errors.New("connection reset"))
	if err := e.Poll(ctx); err == nil {
		t.Fatal("expected poll error")
	}
	if v := e.View(now); len(v.Buses) != 1 || !v.Loaded {
		t.Fatalf("snapshot lost after failed poll: %+v", v)
	}
}

func TestPollFailureRerendersAgedStatuses(t *testing.T) {
	clock := now
	l := &fakeLister{records: []fleet.BusRecord{bus(1, "Zone 1", 23.0, ago(170*time.Second))}}
	var views []View
	e := New(Options{
		Lister:       l,
		Scope:        ZoneScope("Zone 1"),
		Interval:     time.Hour,
		ActiveWindow: fleet.DefaultActiveWindow,
		OnChange:     func(v View) { views = append(views, v) },
		Now:          func() time.Time { return clock },
	})
	ctx := context.Background()
	if err := e.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 || views[0].Buses[0].Status != fleet.Active {
		t.Fatalf("views after first poll = %+v", views)
	}

	l.set(nil, errors.New("connection reset"))
	clock = now.Add(10 * time.Minute)
	if err := e.Poll(ctx); err == nil {
		t.Fatal("expected poll error")
	}
	if len(views) != 2 {
		t.Fatalf("failed poll notified %d times, want 2 in total", len(views))
	}
	last := views[1]
	if last.Buses[0].Status != fleet.Inactive || last.Counts != (fleet.Counts{Inactive: 1}) {
		t.Fatalf("aged view = %+v", last)
	}
}

func TestPollFailureBeforeLoadDoesNotNotify(t *testing.T) {
	l := &fakeLister{err: errors.New("dns")}
	var changes int
	e := New(Options{Lister: l, Scope: AllZones(), Interval: time.Hour, OnChange: func(View) { changes++ }})
	if err := e.Poll(context.Background()); err == nil {
		t.Fatal("expected poll error")
	}
	if changes != 0 {
		t.Fatalf("OnChange called %d times before any roster loaded", changes)
	}
}

func TestSelectionReconciliation(t *testing.T) {
	l := &fakeLister{records: []fleet.BusRecord{bus(7, "Zone 1", 23.0, nil)}}
	e := newEngine(l, ZoneScope("Zone 1"), nil)
	ctx := context.Background()
	if err := e.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Select(ctx, 7); err != nil {
		t.Fatalf("Select: %v", err)
	}

	l.set([]fleet.BusRecord{bus(7, "Zone 1", 23.5, ago(time.Second))}, nil)
	if err := e.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	sel, ok := e.Selected()
	if !ok || sel.Location.Lat != 23.5 || sel.LastUpdate == nil {
		t.Fatalf("selection not replaced: %+v", sel)
	}

	l.set([]fleet.BusRecord{bus(9, "Zone 1", 24.0, nil)}, nil)
	if err := e.Poll(ctx); err != nil {
		t.Fatal(err)
	}
	sel, ok = e.Selected()
	if !ok || sel.BusID != 7 || sel.Location.Lat != 23.5 {
		t.Fatalf("missing bus should leave selection unchanged, got %+v ok=%v", sel, ok)
	}
}

func TestSearch(t *testing.T) {
	l := &fakeLister{records: []fleet.BusRecord{
		bus(4, "Zone 1", 23.0, nil),
		bus(42, "Zone 1", 23.4, nil),
		bus(43, "Zone 9", 23.9, nil),
	}}
	focus := &fakeFocus{}
	e := newEngine(l, ZoneScope("Zone 1"), focus)
	ctx := context.Background()
	if err := e.Poll(ctx); err != nil {
		t.Fatal(err)
	}

	rec, ok := e.Search(ctx, " 42 ")
	if !ok || rec.BusID != 42 {
		t.Fatalf("Search(42) = %+v, %v", rec, ok)
	}
	if len(focus.at) != 1 || focus.at[0] != rec.Location {
		t.Fatalf("focus = %+v", focus.at)
	}

	for _, q := range []string{"043", "43", "4x", ""} {
		if _, ok := e.Search(ctx, q); ok {
			t.Fatalf("Search(%q) matched", q)
		}
	}
	if sel, _ := e.Selected(); sel.BusID != 42 {
		t.Fatalf("failed search changed selection to %+v", sel)
	}
	if len(focus.at) != 1 {
		t.Fatalf("failed search focused the map: %+v", focus.at)
	}

	e.ClearSearch()
	if v := e.View(now); v.Query != "" || v.Selected != nil {
		t.Fatalf("clearing the search must drop the selection too, view = %+v", v)
	}

	if _, err := e.Select(ctx, 4); err != nil {
		t.Fatal(err)
	}
	e.Deselect()
	if _, ok := e.Selected(); ok {
		t.Fatal("Deselect kept the selection")
	}
}

func TestSelectMarker(t *testing.T) {
	b := bus(3, "Zone 1", 23.0, nil)
	l := &fakeLister{records: []fleet.BusRecord{b}}
	var changes int
	e := New(Options{
		Lister:   l,
		Scope:    ZoneScope("Zone 1"),
		Interval: time.Hour,
		OnChange: func(View) { changes++ },
		Now:      func() time.Time { return now },
	})
	if err := e.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if changes != 1 {
		t.Fatalf("poll notified %d times, want 1", changes)
	}
	if _, err := e.SelectMarker(b.ID); err != nil {
		t.Fatalf("SelectMarker: %v", err)
	}
	if _, err := e.SelectMarker("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if changes != 2 {
		t.Fatalf("OnChange called %d times, want 2", changes)
	}
}

func TestOverlappingPollIsSkipped(t *testing.T) {
	l := &fakeLister{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	e := newEngine(l, AllZones(), nil)

	done := make(chan error, 1)
	go func() { done <- e.Poll(context.Background()) }()
	<-l.entered

	if err := e.Poll(context.Background()); !errors.Is(err, ErrPollInFlight) {
		t.Fatalf("err = %v, want ErrPollInFlight", err)
	}
	close(l.block)
	if err := <-done; err != nil {
		t.Fatalf("first poll: %v", err)
	}
}

func TestRunPollsImmediatelyAndStops(t *testing.T) {
	l := &fakeLister{records: []fleet.BusRecord{bus(1, "Zone 1", 23.0, nil)}}
	e := New(Options{Lister: l, Scope: AllZones(), Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !e.Loaded() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !e.Loaded() {
		t.Fatal("Run did not poll")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
