package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"bus-tracker/internal/fleet"
)

type Config struct {
	FleetAPIURL string        `env:"FLEET_API_URL" envDefault:"https://bus-traker-backend-82zs.vercel.app/api"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`

	ReportInterval     time.Duration `env:"REPORT_INTERVAL" envDefault:"60s"`
	NetCheckInterval   time.Duration `env:"NETCHECK_INTERVAL" envDefault:"5s"`
	RosterPollInterval time.Duration `env:"ROSTER_POLL_INTERVAL" envDefault:"5s"`
	ActiveWindow       time.Duration `env:"ACTIVE_WINDOW" envDefault:"3m"`
	LocationTimeout    time.Duration `env:"LOCATION_TIMEOUT" envDefault:"15s"`

	// SessionDSN selects the session store: postgres:// URLs use pgx,
	// anything else is a sqlite path or file: URI.
	SessionDSN string `env:"SESSION_DSN" envDefault:"file:bustracker.db"`
	SessionKey string `env:"SESSION_KEY" envDefault:"bus_session"`

	NATSURL           string `env:"NATS_URL"`
	NATSSubjectPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"bustracker"`
	LocationSubject   string `env:"LOCATION_SUBJECT"`

	FixedLat *float64 `env:"FIXED_LAT"`
	FixedLng *float64 `env:"FIXED_LNG"`

	DestinationLat float64 `env:"DESTINATION_LAT" envDefault:"23.0451519"`
	DestinationLng float64 `env:"DESTINATION_LNG" envDefault:"72.5900635"`

	MapAddr     string `env:"MAP_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"METRICS_ADDR"`

	SuperAdminPassword string `env:"SUPER_ADMIN_PASSWORD" envDefault:"9876"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	TZ       string `env:"TZ"`
	Location *time.Location
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.TZ == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.TZ)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}
	cfg.FleetAPIURL = strings.TrimRight(cfg.FleetAPIURL, "/")
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	positive := map[string]time.Duration{
		"HTTP_TIMEOUT":         c.HTTPTimeout,
		"REPORT_INTERVAL":      c.ReportInterval,
		"NETCHECK_INTERVAL":    c.NetCheckInterval,
		"ROSTER_POLL_INTERVAL": c.RosterPollInterval,
		"ACTIVE_WINDOW":        c.ActiveWindow,
		"LOCATION_TIMEOUT":     c.LocationTimeout,
	}
	for name, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("invalid %s: %s", name, d))
		}
	}
	if strings.TrimSpace(c.FleetAPIURL) == "" {
		errs = append(errs, errors.New("FLEET_API_URL must be set"))
	}
	if (c.FixedLat == nil) != (c.FixedLng == nil) {
		errs = append(errs, errors.New("FIXED_LAT and FIXED_LNG must be set together"))
	}
	if c.SessionKey == "" {
		errs = append(errs, errors.New("SESSION_KEY must not be empty"))
	}
	return errors.Join(errs...)
}

func (c *Config) Destination() fleet.Coordinates {
	return fleet.Coordinates{Lat: c.DestinationLat, Lng: c.DestinationLng}
}

// FixedPosition reports the static fix configured by FIXED_LAT/FIXED_LNG.
func (c *Config) FixedPosition() (fleet.Coordinates, bool) {
	if c.FixedLat == nil || c.FixedLng == nil {
		return fleet.Coordinates{}, false
	}
	return fleet.Coordinates{Lat: *c.FixedLat, Lng: *c.FixedLng}, true
}
