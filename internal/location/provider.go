package location

import (
	"context"
	"errors"
	"time"

	"bus-tracker/internal/fleet"
)

var (
	ErrPermissionDenied = errors.New("location permission denied")
	ErrNoFix            = errors.New("no location fix")
)

// Provider yields device positions once permission has been granted.
type Provider interface {
	// RequestPermission returns nil when access is granted and an error
	// wrapping ErrPermissionDenied otherwise.
	RequestPermission(ctx context.Context) error
	Current(ctx context.Context) (fleet.Position, error)
	// Watch streams fixes until ctx is done, then closes the channel.
	Watch(ctx context.Context) <-chan fleet.Position
}

// StaticProvider reports a fixed point, for depots and stationary test rigs.
type StaticProvider struct {
	at  fleet.Coordinates
	now func() time.Time
}

func NewStatic(at fleet.Coordinates) *StaticProvider {
	return &StaticProvider{at: at, now: time.Now}
}

func (p *StaticProvider) RequestPermission(context.Context) error { return nil }

func (p *StaticProvider) Current(ctx context.Context) (fleet.Position, error) {
	if err := ctx.Err(); err != nil {
		return fleet.Position{}, err
	}
	return fleet.Position{Coordinates: p.at, Timestamp: p.now()}, nil
}

func (p *StaticProvider) Watch(ctx context.Context) <-chan fleet.Position {
	ch := make(chan fleet.Position, 1)
	ch <- fleet.Position{Coordinates: p.at, Timestamp: p.now()}
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}
