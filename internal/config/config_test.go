package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ReportInterval != 60*time.Second {
		t.Errorf("ReportInterval = %s", cfg.ReportInterval)
	}
	if cfg.NetCheckInterval != 5*time.Second || cfg.RosterPollInterval != 5*time.Second {
		t.Errorf("poll intervals = %s / %s", cfg.NetCheckInterval, cfg.RosterPollInterval)
	}
	if cfg.ActiveWindow != 3*time.Minute {
		t.Errorf("ActiveWindow = %s", cfg.ActiveWindow)
	}
	if cfg.SessionKey != "bus_session" {
		t.Errorf("SessionKey = %q", cfg.SessionKey)
	}
	if _, ok := cfg.FixedPosition(); ok {
		t.Error("no fixed position expected by default")
	}
	if cfg.Location == nil {
		t.Error("Location not resolved")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FLEET_API_URL", "http://fleet.local/api/")
	t.Setenv("REPORT_INTERVAL", "2s")
	t.Setenv("FIXED_LAT", "22.3")
	t.Setenv("FIXED_LNG", "73.2")
	t.Setenv("TZ", "Asia/Kolkata")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FleetAPIURL != "http://fleet.local/api" {
		t.Errorf("FleetAPIURL = %q", cfg.FleetAPIURL)
	}
	if cfg.ReportInterval != 2*time.Second {
		t.Errorf("ReportInterval = %s", cfg.ReportInterval)
	}
	pos, ok := cfg.FixedPosition()
	if !ok || pos.Lat != 22.3 || pos.Lng != 73.2 {
		t.Errorf("FixedPosition = %+v, %v", pos, ok)
	}
	if cfg.Location.String() != "Asia/Kolkata" {
		t.Errorf("Location = %s", cfg.Location)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name, key, value, want string
	}{
		{"zero interval", "REPORT_INTERVAL", "0s", "REPORT_INTERVAL"},
		{"half fixed fix", "FIXED_LAT", "22.3", "FIXED_LAT and FIXED_LNG"},
		{"bad duration", "NETCHECK_INTERVAL", "often", "NETCHECK_INTERVAL"},
		{"bad tz", "TZ", "Mars/Olympus", "invalid TZ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
