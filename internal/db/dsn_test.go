package db

import "testing"

func TestParseDSN(t *testing.T) {
	tests := []struct {
		dsn     string
		dialect Dialect
		source  string
		wantErr bool
	}{
		{"postgres://bus:pw@db:5432/fleet?sslmode=disable", Postgres, "postgres://bus:pw@db:5432/fleet?sslmode=disable", false},
		{"postgresql://db/fleet", Postgres, "postgresql://db/fleet", false},
		{"file:bustracker.db", SQLite, "file:bustracker.db", false},
		{"file:///var/lib/bus.db", SQLite, "file:///var/lib/bus.db", false},
		{":memory:", SQLite, ":memory:", false},
		{"sqlite:///var/lib/bus.db", SQLite, "/var/lib/bus.db", false},
		{"mysql://db/fleet", Dialect{}, "", true},
		{"  ", Dialect{}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			d, src, err := ParseDSN(tt.dsn)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if d != tt.dialect || src != tt.source {
				t.Errorf("got %+v %q, want %+v %q", d, src, tt.dialect, tt.source)
			}
		})
	}
}

func TestPlaceholder(t *testing.T) {
	if got := Postgres.Placeholder(2); got != "$2" {
		t.Errorf("postgres placeholder = %q", got)
	}
	if got := SQLite.Placeholder(2); got != "?" {
		t.Errorf("sqlite placeholder = %q", got)
	}
}
