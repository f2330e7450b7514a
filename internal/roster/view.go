package roster

import (
	"time"

	"bus-tracker/internal/fleet"
)

// BusView is a roster entry with its status derived at render time.
type BusView struct {
	fleet.BusRecord
	Status fleet.ActivityStatus `json:"status"`
}

// View is a read-only copy of the engine state as of Now.
type View struct {
	Scope    string       `json:"scope"`
	Loaded   bool         `json:"loaded"`
	Buses    []BusView    `json:"buses"`
	Counts   fleet.Counts `json:"counts"`
	Selected *BusView     `json:"selected,omitempty"`
	Query    string       `json:"query,omitempty"`
	At       time.Time    `json:"at"`
}

func (e *Engine) View(now time.Time) View {
	e.mu.RLock()
	defer e.mu.RUnlock()

	window := e.opts.ActiveWindow
	visible := e.opts.Scope.apply(e.all)
	v := View{
		Scope:  e.opts.Scope.String(),
		Loaded: e.loaded,
		Buses:  make([]BusView, 0, len(visible)),
		Counts: fleet.CountStatus(visible, now, window),
		Query:  e.query,
		At:     now,
	}
	for _, r := range visible {
		v.Buses = append(v.Buses, BusView{BusRecord: r, Status: r.Status(now, window)})
	}
	if e.selected != nil {
		v.Selected = &BusView{BusRecord: *e.selected, Status: e.selected.Status(now, window)}
	}
	return v
}

// Counts returns active and inactive totals over the visible roster.
func (e *Engine) Counts(now time.Time) fleet.Counts {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return fleet.CountStatus(e.opts.Scope.apply(e.all), now, e.opts.ActiveWindow)
}
