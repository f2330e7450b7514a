package fleet

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultActiveWindow is how long a report keeps a bus Active.
const DefaultActiveWindow = 3 * time.Minute

type ActivityStatus int

const (
	Inactive ActivityStatus = iota
	Active
)

func (s ActivityStatus) String() string {
	if s == Active {
		return "ACTIVE"
	}
	return "INACTIVE"
}

func (s ActivityStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *ActivityStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "ACTIVE":
		*s = Active
	case "INACTIVE":
		*s = Inactive
	default:
		return fmt.Errorf("unknown activity status %q", b)
	}
	return nil
}

// StatusAt classifies a bus by the age of its last report. The window is
// inclusive: a report exactly window old is still Active.
func StatusAt(lastUpdate *time.Time, now time.Time, window time.Duration) ActivityStatus {
	if lastUpdate == nil {
		return Inactive
	}
	if now.Sub(*lastUpdate) <= window {
		return Active
	}
	return Inactive
}

// Status is StatusAt for a record.
func (b BusRecord) Status(now time.Time, window time.Duration) ActivityStatus {
	return StatusAt(b.LastUpdate, now, window)
}

// NormalizeZone folds case and drops whitespace and hyphens so that
// "Zone - 1", "Zone 1" and "zone1" compare equal.
func NormalizeZone(zone string) string {
	var b strings.Builder
	b.Grow(len(zone))
	for _, r := range strings.ToLower(zone) {
		switch r {
		case ' ', '\t', '\n', '\r', '\v', '\f', '-':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func SameZone(a, b string) bool { return NormalizeZone(a) == NormalizeZone(b) }

// FilterZone keeps records whose zone matches zone after normalization.
// Records without a zone never match, and an empty zone matches nothing.
func FilterZone(records []BusRecord, zone string) []BusRecord {
	target := NormalizeZone(zone)
	if target == "" {
		return nil
	}
	out := make([]BusRecord, 0, len(records))
	for _, r := range records {
		if r.Zone == "" {
			continue
		}
		if NormalizeZone(r.Zone) == target {
			out = append(out, r)
		}
	}
	return out
}

func CountStatus(records []BusRecord, now time.Time, window time.Duration) Counts {
	var c Counts
	for _, r := range records {
		if r.Status(now, window) == Active {
			c.Active++
		}
	}
	c.Inactive = len(records) - c.Active
	return c
}

// FindBusID returns the first record whose busId equals id.
func FindBusID(records []BusRecord, id int) (BusRecord, bool) {
	for _, r := range records {
		if r.BusID == id {
			return r, true
		}
	}
	return BusRecord{}, false
}

// MatchBusID returns the first record whose busId renders exactly as the
// trimmed query. "07" does not match bus 7.
func MatchBusID(records []BusRecord, query string) (BusRecord, bool) {
	q := strings.TrimSpace(query)
	if q == "" {
		return BusRecord{}, false
	}
	for _, r := range records {
		if strconv.Itoa(r.BusID) == q {
			return r, true
		}
	}
	return BusRecord{}, false
}
