package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sort"
	"strings"

	"bus-tracker/internal/fleet"
	"bus-tracker/internal/log"
)

var (
	ErrCredentialRejected = errors.New("incorrect credentials")
	ErrMissingFields      = errors.New("please fill all fields")
)

// API is the part of the fleet API used for login.
type API interface {
	LoginDetails(ctx context.Context) ([]fleet.LoginDetail, error)
	AdminZones(ctx context.Context) ([]string, error)
	AdminLogin(ctx context.Context, zone, password string) (bool, error)
}

// SessionSaver persists a successful login.
type SessionSaver interface {
	Save(ctx context.Context, s fleet.Session) error
	Clear(ctx context.Context) error
}

type Service struct {
	api         API
	store       SessionSaver
	superSecret string
	logger      log.Logger
}

func New(api API, store SessionSaver, superAdminPassword string) *Service {
	return &Service{api: api, store: store, superSecret: superAdminPassword, logger: log.WithName("auth")}
}

// DriverZones lists the distinct zones with driver credentials, sorted.
func (s *Service) DriverZones(ctx context.Context) ([]string, error) {
	details, err := s.api.LoginDetails(ctx)
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	zones := make([]string, 0, len(details))
	for _, d := range details {
		zones = append(zones, d.Zone)
	}
	return uniqueSorted(zones), nil
}

// DriverBuses lists bus ids registered in zone.
func (s *Service) DriverBuses(ctx context.Context, zone string) ([]int, error) {
	details, err := s.api.LoginDetails(ctx)
	if err != nil {
		return nil, fmt.Errorf("list buses: %w", err)
	}
	var ids []int
	for _, d := range details {
		if d.Zone == zone {
			ids = append(ids, d.BusID)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (s *Service) AdminZones(ctx context.Context) ([]string, error) {
	zones, err := s.api.AdminZones(ctx)
	if err != nil {
		return nil, fmt.Errorf("list admin zones: %w", err)
	}
	return uniqueSorted(zones), nil
}

// LoginDriver checks the password of bus busID in zone and saves a driver
// session. Zone and bus must match exactly; the password is trimmed.
func (s *Service) LoginDriver(ctx context.Context, zone string, busID int, password string) (fleet.DriverSession, error) {
	password = strings.TrimSpace(password)
	if zone == "" || busID == 0 || password == "" {
		return fleet.DriverSession{}, ErrMissingFields
	}
	details, err := s.api.LoginDetails(ctx)
	if err != nil {
		return fleet.DriverSession{}, fmt.Errorf("fetch login details: %w", err)
	}
	var match *fleet.LoginDetail
	for i := range details {
		if details[i].Zone == zone && details[i].BusID == busID {
			match = &details[i]
			break
		}
	}
	if match == nil || !equal(string(match.Password), password) {
		s.logger.Info("driver login rejected", "zone", zone, "busId", busID)
		return fleet.DriverSession{}, ErrCredentialRejected
	}
	sess := fleet.DriverSession{BusID: busID, Zone: zone}
	if err := s.store.Save(ctx, sess); err != nil {
		return fleet.DriverSession{}, err
	}
	s.logger.Info("driver logged in", "zone", zone, "busId", busID)
	return sess, nil
}

// LoginAdmin delegates the password check for zone to the fleet API.
func (s *Service) LoginAdmin(ctx context.Context, zone, password string) (fleet.AdminSession, error) {
	password = strings.TrimSpace(password)
	if zone == "" || password == "" {
		return fleet.AdminSession{}, ErrMissingFields
	}
	ok, err := s.api.AdminLogin(ctx, zone, password)
	if err != nil {
		return fleet.AdminSession{}, fmt.Errorf("admin login: %w", err)
	}
	if !ok {
		s.logger.Info("admin login rejected", "zone", zone)
		return fleet.AdminSession{}, fmt.Errorf("zone %s: %w", zone, ErrCredentialRejected)
	}
	sess := fleet.AdminSession{Zone: zone}
	if err := s.store.Save(ctx, sess); err != nil {
		return fleet.AdminSession{}, err
	}
	s.logger.Info("admin logged in", "zone", zone)
	return sess, nil
}

// LoginSuperAdmin compares against the configured master password.
func (s *Service) LoginSuperAdmin(ctx context.Context, password string) (fleet.SuperAdminSession, error) {
	if s.superSecret == "" || !equal(password, s.superSecret) {
		s.logger.Info("super admin login rejected")
		return fleet.SuperAdminSession{}, ErrCredentialRejected
	}
	sess := fleet.SuperAdminSession{}
	if err := s.store.Save(ctx, sess); err != nil {
		return fleet.SuperAdminSession{}, err
	}
	s.logger.Info("super admin logged in")
	return sess, nil
}

// Logout clears the stored session. It is safe to call with none stored.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
