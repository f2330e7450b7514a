package tracker

import "time"

const neverSynced = "Initializing..."

// Status is what the driver dashboard shows.
type Status struct {
	BusID       int        `json:"busId"`
	State       string     `json:"state"`
	Connected   bool       `json:"connected"`
	Updating    bool       `json:"updating"`
	LastSuccess *time.Time `json:"lastSuccess,omitempty"`
	LastSync    string     `json:"lastSync"`
	At          time.Time  `json:"at"`
}

func (t *Tracker) Status() Status {
	t.mu.Lock()
	st := Status{
		BusID:     t.opts.BusID,
		Connected: t.connected,
		Updating:  t.updating,
		LastSync:  neverSynced,
		At:        t.opts.Now(),
	}
	if !t.lastSuccess.IsZero() {
		last := t.lastSuccess
		st.LastSuccess = &last
		st.LastSync = last.In(t.opts.Location).Format("15:04:05")
	}
	t.mu.Unlock()
	st.State = t.fsm.Current()
	return st
}

// State returns the current tracking state.
func (t *Tracker) State() string { return t.fsm.Current() }
