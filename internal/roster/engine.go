package roster

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"bus-tracker/internal/fleet"
	"bus-tracker/internal/log"
	"bus-tracker/internal/metrics"
)

var (
	ErrPollInFlight = errors.New("roster poll already in flight")
	ErrNotFound     = errors.New("bus not in roster")
)

// Lister fetches the full roster from the fleet API.
type Lister interface {
	ListBuses(ctx context.Context) ([]fleet.BusRecord, error)
}

// Focuser moves the map camera.
type Focuser interface {
	Focus(ctx context.Context, at fleet.Coordinates) error
}

// Scope restricts which part of the roster a viewer sees.
type Scope struct {
	Zone string
	All  bool
}

func ZoneScope(zone string) Scope { return Scope{Zone: zone} }
func AllZones() Scope             { return Scope{All: true} }

func (s Scope) String() string {
	if s.All {
		return "all"
	}
	return s.Zone
}

func (s Scope) apply(records []fleet.BusRecord) []fleet.BusRecord {
	if s.All {
		return records
	}
	return fleet.FilterZone(records, s.Zone)
}

type Options struct {
	Lister       Lister
	Scope        Scope
	Interval     time.Duration
	ActiveWindow time.Duration

	Focus    Focuser            // optional
	OnChange func(View)         // optional, called after every poll of a loaded roster and every selection change
	Metrics  *metrics.Collector // optional
	Now      func() time.Time
}

// Engine owns the roster snapshot and the selected bus. Only Poll, Search
// and the selection methods mutate them; everything else reads copies.
type Engine struct {
	opts   Options
	guard  *semaphore.Weighted
	logger log.Logger

	mu       sync.RWMutex
	all      []fleet.BusRecord
	loaded   bool
	selected *fleet.BusRecord
	query    string
}

func New(opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ActiveWindow <= 0 {
		opts.ActiveWindow = fleet.DefaultActiveWindow
	}
	return &Engine{
		opts:   opts,
		guard:  semaphore.NewWeighted(1),
		logger: log.WithName("roster").WithValues("scope", opts.Scope.String()),
	}
}

// Run polls immediately and then on every interval until ctx is done.
// Poll failures never stop the loop.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("roster sync started", "interval", e.opts.Interval)
	e.spawnPoll(ctx)

	tick := time.NewTicker(e.opts.Interval)
	defer tick.Stop()
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("roster sync stopped")
			return nil
		case <-tick.C:
			wg.Add(1)
			go func() {
				defer wg.Done()
				e.spawnPoll(ctx)
			}()
		}
	}
}

func (e *Engine) spawnPoll(ctx context.Context) {
	if err := e.Poll(ctx); err != nil && !errors.Is(err, ErrPollInFlight) && ctx.Err() == nil {
		e.logger.Debug("poll failed, keeping previous snapshot", "error", err)
	}
}

// Poll fetches the roster and replaces the snapshot wholesale. On failure
// the previous snapshot stays in place.
func (e *Engine) Poll(ctx context.Context) error {
	if !e.guard.TryAcquire(1) {
		e.opts.Metrics.PollSkipped()
		return ErrPollInFlight
	}
	defer e.guard.Release(1)

	started := time.Now()
	records, err := e.opts.Lister.ListBuses(ctx)
	took := time.Since(started)
	if err != nil {
		e.opts.Metrics.PollFailed(took)
		if ctx.Err() != nil {
			return fmt.Errorf("poll roster: %w", err)
		}
		e.logger.Warn("roster poll failed", "error", err)
		// Statuses age even without fresh data.
		if e.Loaded() {
			e.changed(e.View(e.opts.Now()))
		}
		return fmt.Errorf("poll roster: %w", err)
	}

	e.mu.Lock()
	e.all = records
	e.loaded = true
	if e.selected != nil {
		// A selection missing from the new snapshot is kept as-is.
		if fresh, ok := fleet.FindBusID(records, e.selected.BusID); ok {
			e.selected = &fresh
		}
	}
	e.mu.Unlock()

	v := e.View(e.opts.Now())
	e.opts.Metrics.PollOK(took, v.Counts.Active, v.Counts.Inactive)
	e.logger.Debug("roster refreshed", "total", len(records), "visible", len(v.Buses))
	e.changed(v)
	return nil
}

// Search selects the first visible bus whose id matches query exactly and
// focuses the map on it. Without a match the selection is left alone.
func (e *Engine) Search(ctx context.Context, query string) (fleet.BusRecord, bool) {
	e.mu.Lock()
	e.query = strings.TrimSpace(query)
	rec, ok := fleet.MatchBusID(e.opts.Scope.apply(e.all), query)
	if ok {
		e.selected = &rec
	}
	e.mu.Unlock()

	if ok {
		e.focus(ctx, rec.Location)
	}
	e.changed(e.View(e.opts.Now()))
	return rec, ok
}

// Select marks the visible bus with busID as selected and focuses on it.
func (e *Engine) Select(ctx context.Context, busID int) (fleet.BusRecord, error) {
	e.mu.Lock()
	rec, ok := fleet.FindBusID(e.opts.Scope.apply(e.all), busID)
	if ok {
		e.selected = &rec
	}
	e.mu.Unlock()
	if !ok {
		return fleet.BusRecord{}, fmt.Errorf("bus %d: %w", busID, ErrNotFound)
	}
	e.focus(ctx, rec.Location)
	e.changed(e.View(e.opts.Now()))
	return rec, nil
}

// SelectMarker handles a marker press, which carries the record id.
func (e *Engine) SelectMarker(id string) (fleet.BusRecord, error) {
	e.mu.Lock()
	var (
		rec fleet.BusRecord
		ok  bool
	)
	for _, r := range e.opts.Scope.apply(e.all) {
		if r.ID == id {
			rec, ok = r, true
			break
		}
	}
	if ok {
		e.selected = &rec
	}
	e.mu.Unlock()
	if !ok {
		return fleet.BusRecord{}, fmt.Errorf("marker %q: %w", id, ErrNotFound)
	}
	e.changed(e.View(e.opts.Now()))
	return rec, nil
}

func (e *Engine) Deselect() {
	e.mu.Lock()
	e.selected = nil
	e.mu.Unlock()
	e.changed(e.View(e.opts.Now()))
}

// ClearSearch empties the query and drops the selection with it.
func (e *Engine) ClearSearch() {
	e.mu.Lock()
	e.query = ""
	e.selected = nil
	e.mu.Unlock()
	e.changed(e.View(e.opts.Now()))
}

func (e *Engine) Selected() (fleet.BusRecord, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.selected == nil {
		return fleet.BusRecord{}, false
	}
	return *e.selected, true
}

// Loaded reports whether at least one poll has succeeded.
func (e *Engine) Loaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loaded
}

func (e *Engine) Scope() Scope { return e.opts.Scope }

func (e *Engine) focus(ctx context.Context, at fleet.Coordinates) {
	if e.opts.Focus == nil {
		return
	}
	if err := e.opts.Focus.Focus(ctx, at); err != nil {
		e.logger.Warn("map focus failed", "error", err)
	}
}

func (e *Engine) changed(v View) {
	if e.opts.OnChange != nil {
		e.opts.OnChange(v)
	}
}
