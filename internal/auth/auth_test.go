package auth

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"bus-tracker/internal/db"
	"bus-tracker/internal/fleet"
	"bus-tracker/internal/session"
)

type fakeAPI struct {
	details    []fleet.LoginDetail
	adminZones []string
	adminPass  map[string]string
	err        error
}

func (f *fakeAPI) LoginDetails(context.Context) ([]fleet.LoginDetail, error) {
	return f.details, f.err
}

func (f *fakeAPI) AdminZones(context.Context) ([]string, error) { return f.adminZones, f.err }

func (f *fakeAPI) AdminLogin(_ context.Context, zone, password string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.adminPass[zone] == password, nil
}

func newService(t *testing.T, api API) (*Service, *session.SQLStore) {
	t.Helper()
	conn, dialect, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	store := session.NewSQLStore(conn, dialect, "bus_session")
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	return New(api, store, "9876"), store
}

var details = []fleet.LoginDetail{
	{BusID: 7, Zone: "Zone 1", Password: "1234"},
	{BusID: 3, Zone: "Zone 1", Password: "abcd"},
	{BusID: 9, Zone: "Zone 2", Password: "5555"},
}

func TestDriverListings(t *testing.T) {
	s, _ := newService(t, &fakeAPI{details: details})
	ctx := context.Background()

	zones, err := s.DriverZones(ctx)
	if err != nil || !reflect.DeepEqual(zones, []string{"Zone 1", "Zone 2"}) {
		t.Fatalf("DriverZones = %v, %v", zones, err)
	}
	buses, err := s.DriverBuses(ctx, "Zone 1")
	if err != nil || !reflect.DeepEqual(buses, []int{3, 7}) {
		t.Fatalf("DriverBuses = %v, %v", buses, err)
	}
}

func TestLoginDriver(t *testing.T) {
	s, store := newService(t, &fakeAPI{details: details})
	ctx := context.Background()

	tests := []struct {
		name     string
		zone     string
		busID    int
		password string
		wantErr  error
	}{
		{"missing password", "Zone 1", 7, "  ", ErrMissingFields},
		{"wrong zone", "Zone 2", 7, "1234", ErrCredentialRejected},
		{"wrong password", "Zone 1", 7, "12345", ErrCredentialRejected},
		{"trimmed password", "Zone 1", 7, " 1234 ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.LoginDriver(ctx, tt.zone, tt.busID, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != (fleet.DriverSession{BusID: 7, Zone: "Zone 1"}) {
		t.Fatalf("stored %#v", got)
	}
}

func TestLoginAdmin(t *testing.T) {
	api := &fakeAPI{adminZones: []string{"Zone 2", "Zone 1", "Zone 2"}, adminPass: map[string]string{"Zone 2": "pw"}}
	s, store := newService(t, api)
	ctx := context.Background()

	zones, err := s.AdminZones(ctx)
	if err != nil || !reflect.DeepEqual(zones, []string{"Zone 1", "Zone 2"}) {
		t.Fatalf("AdminZones = %v, %v", zones, err)
	}
	if _, err := s.LoginAdmin(ctx, "Zone 2", "nope"); !errors.Is(err, ErrCredentialRejected) {
		t.Fatalf("err = %v", err)
	}
	if _, err := s.LoginAdmin(ctx, "Zone 2", " pw "); err != nil {
		t.Fatalf("LoginAdmin: %v", err)
	}
	if got, _ := store.Load(ctx); got != (fleet.AdminSession{Zone: "Zone 2"}) {
		t.Fatalf("stored %#v", got)
	}

	api.err = errors.New("offline")
	if _, err := s.LoginAdmin(ctx, "Zone 2", "pw"); err == nil || errors.Is(err, ErrCredentialRejected) {
		t.Fatalf("transport failure should not read as a rejection: %v", err)
	}
}

func TestLoginSuperAdminAndLogout(t *testing.T) {
	s, store := newService(t, &fakeAPI{})
	ctx := context.Background()

	if _, err := s.LoginSuperAdmin(ctx, "1234"); !errors.Is(err, ErrCredentialRejected) {
		t.Fatalf("err = %v", err)
	}
	if _, err := s.LoginSuperAdmin(ctx, "9876"); err != nil {
		t.Fatal(err)
	}
	if got, _ := store.Load(ctx); got != (fleet.SuperAdminSession{}) {
		t.Fatalf("stored %#v", got)
	}

	if err := s.Logout(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("after logout err = %v", err)
	}
	if err := s.Logout(ctx); err != nil {
		t.Fatalf("second logout: %v", err)
	}
}
