package fleet

import (
	"encoding/json"
	"testing"
	"time"
)

func ptr(t time.Time) *time.Time { return &t }

func TestStatusAtBoundary(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		last *time.Time
		want ActivityStatus
	}{
		{"missing", nil, Inactive},
		{"179s", ptr(now.Add(-179 * time.Second)), Active},
		{"180s", ptr(now.Add(-180 * time.Second)), Active},
		{"181s", ptr(now.Add(-181 * time.Second)), Inactive},
		{"just now", ptr(now), Active},
		{"future skew", ptr(now.Add(time.Minute)), Active},
		{"hours old", ptr(now.Add(-5 * time.Hour)), Inactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusAt(tt.last, now, DefaultActiveWindow); got != tt.want {
				t.Errorf("StatusAt = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeZoneEquivalence(t *testing.T) {
	want := NormalizeZone("zone1")
	for _, in := range []string{"Zone - 1", "Zone 1", "zone1", "ZONE-1", " zone\t1 "} {
		if got := NormalizeZone(in); got != want {
			t.Errorf("NormalizeZone(%q) = %q, want %q", in, got, want)
		}
	}
	if SameZone("Zone 1", "Zone 11") {
		t.Error("Zone 1 and Zone 11 must differ")
	}
}

func TestFilterZone(t *testing.T) {
	records := []BusRecord{
		{ID: "a", BusID: 1, Zone: "Zone 2"},
		{ID: "b", BusID: 2, Zone: "Zone 3"},
		{ID: "c", BusID: 3, Zone: ""},
		{ID: "d", BusID: 4, Zone: "zone-2"},
	}

	got := FilterZone(records, "Zone - 2")
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "d" {
		t.Fatalf("FilterZone = %+v", got)
	}
	if got := FilterZone(records, ""); len(got) != 0 {
		t.Fatalf("empty zone should match nothing, got %+v", got)
	}
}

func TestCountStatus(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []BusRecord{
		{BusID: 1, LastUpdate: ptr(now.Add(-time.Minute))},
		{BusID: 2, LastUpdate: ptr(now.Add(-10 * time.Minute))},
		{BusID: 3},
	}
	got := CountStatus(records, now, DefaultActiveWindow)
	if got != (Counts{Active: 1, Inactive: 2}) {
		t.Fatalf("CountStatus = %+v", got)
	}
}

func TestMatchBusID(t *testing.T) {
	records := []BusRecord{{BusID: 4}, {BusID: 42}, {BusID: 420}}

	tests := []struct {
		query string
		want  int
		ok    bool
	}{
		{"42", 42, true},
		{" 42 ", 42, true},
		{"4", 4, true},
		{"042", 0, false},
		{"", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, ok := MatchBusID(records, tt.query)
			if ok != tt.ok || got.BusID != tt.want {
				t.Errorf("MatchBusID(%q) = %d,%v want %d,%v", tt.query, got.BusID, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestBusRecordDecode(t *testing.T) {
	raw := `[
		{"_id":"65a","busId":7,"zone":"Zone 1","location":[23.04,72.59],"lastUpdate":"2025-03-01T11:59:00.000Z"},
		{"_id":"65b","busId":8,"zone":"Zone 1","location":[23.05,72.60]}
	]`
	var got []BusRecord
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got[0].Location != (Coordinates{Lat: 23.04, Lng: 72.59}) {
		t.Errorf("location = %+v", got[0].Location)
	}
	if got[0].LastUpdate == nil || got[0].LastUpdate.Minute() != 59 {
		t.Errorf("lastUpdate = %v", got[0].LastUpdate)
	}
	if got[1].LastUpdate != nil {
		t.Errorf("missing lastUpdate decoded as %v", got[1].LastUpdate)
	}

	var bad Coordinates
	if err := json.Unmarshal([]byte(`[1]`), &bad); err == nil {
		t.Error("single-value location should fail")
	}
}

func TestLoginDetailPassword(t *testing.T) {
	var rows []LoginDetail
	raw := `[{"busId":1,"zone":"Z","password":1234},{"busId":2,"zone":"Z","password":"abcd"}]`
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rows[0].Password != "1234" || rows[1].Password != "abcd" {
		t.Fatalf("passwords = %q, %q", rows[0].Password, rows[1].Password)
	}
}
