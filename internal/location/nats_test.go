package location

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNATSProviderDeniedWithoutFeed(t *testing.T) {
	tests := []struct {
		name    string
		subject string
	}{
		{"no subject", ""},
		{"no connection", "gps.bus.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewNATSProvider(nil, tt.subject, time.Second)
			if err := p.RequestPermission(context.Background()); !errors.Is(err, ErrPermissionDenied) {
				t.Fatalf("err = %v, want ErrPermissionDenied", err)
			}
		})
	}
}

func TestNATSProviderCurrentWaitsForFix(t *testing.T) {
	p := NewNATSProvider(nil, "gps.bus.7", 2*time.Second)

	go func() {
		time.Sleep(20 * time.Millisecond)
		p.handle([]byte(`{"lat":23.04,"lon":72.59,"bearing":90,"timestamp":"2025-03-01T10:00:00Z"}`))
	}()

	pos, err := p.Current(context.Background())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if pos.Lat != 23.04 || pos.Lng != 72.59 {
		t.Fatalf("pos = %+v", pos)
	}
	if pos.Heading == nil || *pos.Heading != 90 {
		t.Fatalf("heading = %v", pos.Heading)
	}
}

func TestNATSProviderNoFix(t *testing.T) {
	p := NewNATSProvider(nil, "gps.bus.7", 30*time.Millisecond)
	if _, err := p.Current(context.Background()); !errors.Is(err, ErrNoFix) {
		t.Fatalf("err = %v, want ErrNoFix", err)
	}

	p.handle([]byte(`not json`))
	if _, err := p.Current(context.Background()); !errors.Is(err, ErrNoFix) {
		t.Fatalf("malformed message must not count as a fix, err = %v", err)
	}
}

func TestNATSProviderWatch(t *testing.T) {
	p := NewNATSProvider(nil, "gps.bus.7", time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	ch := p.Watch(ctx)
	p.handle([]byte(`{"lat":1,"lon":2}`))

	select {
	case pos := <-ch:
		if pos.Lat != 1 || pos.Lng != 2 || pos.Timestamp.IsZero() {
			t.Fatalf("pos = %+v", pos)
		}
	case <-time.After(time.Second):
		t.Fatal("no fix delivered to watcher")
	}

	cancel()
	for range ch {
	}
}
