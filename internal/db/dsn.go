package db

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Dialect names a database/sql driver and how it spells bind parameters.
type Dialect struct {
	Name     string
	numbered bool
}

var (
	Postgres = Dialect{Name: "pgx", numbered: true}
	SQLite   = Dialect{Name: "sqlite"}
)

// Placeholder returns the n-th (1-based) bind parameter.
func (d Dialect) Placeholder(n int) string {
	if d.numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// ParseDSN maps a DSN to its dialect. postgres:// and postgresql:// URLs go
// to pgx; everything else (a path, file: URI or :memory:) goes to sqlite.
func ParseDSN(dsn string) (Dialect, string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return Dialect{}, "", fmt.Errorf("empty DSN")
	}
	if !strings.Contains(dsn, "://") {
		return SQLite, dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return Dialect{}, "", err
	}
	switch u.Scheme {
	case "postgres", "postgresql":
		return Postgres, dsn, nil
	case "file":
		return SQLite, dsn, nil
	case "sqlite":
		return SQLite, strings.TrimPrefix(dsn, "sqlite://"), nil
	}
	return Dialect{}, "", fmt.Errorf("unsupported DSN scheme %q", u.Scheme)
}
