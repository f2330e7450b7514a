package location

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"bus-tracker/internal/fleet"
	"bus-tracker/internal/log"
)

// positionMessage matches the JSON emitted by GTFS vehicle simulators and
// on-board GPS bridges: {"lat":..,"lon":..,"bearing":..,"timestamp":..}.
type positionMessage struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Bearing   *float64  `json:"bearing,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NATSProvider follows a position feed published on a NATS subject.
// Subscribing is the permission grant: no subject, no access.
type NATSProvider struct {
	nc      *nats.Conn
	subject string
	timeout time.Duration
	logger  log.Logger

	mu       sync.Mutex
	sub      *nats.Subscription
	last     *fleet.Position
	fresh    chan struct{} // closed and replaced on every fix
	watchers map[chan fleet.Position]struct{}
}

func NewNATSProvider(nc *nats.Conn, subject string, timeout time.Duration) *NATSProvider {
	return &NATSProvider{
		nc:       nc,
		subject:  subject,
		timeout:  timeout,
		logger:   log.WithName("location"),
		fresh:    make(chan struct{}),
		watchers: make(map[chan fleet.Position]struct{}),
	}
}

func (p *NATSProvider) RequestPermission(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sub != nil {
		return nil
	}
	if p.subject == "" || p.nc == nil {
		return fmt.Errorf("%w: no position feed configured", ErrPermissionDenied)
	}
	sub, err := p.nc.Subscribe(p.subject, func(m *nats.Msg) { p.handle(m.Data) })
	if err != nil {
		return fmt.Errorf("%w: subscribe %s: %v", ErrPermissionDenied, p.subject, err)
	}
	p.sub = sub
	p.logger.Info("following position feed", "subject", p.subject)
	return nil
}

func (p *NATSProvider) handle(data []byte) {
	var msg positionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		p.logger.Warn("dropping malformed position", "subject", p.subject, "error", err)
		return
	}
	pos := fleet.Position{
		Coordinates: fleet.Coordinates{Lat: msg.Lat, Lng: msg.Lon},
		Heading:     msg.Bearing,
		Timestamp:   msg.Timestamp,
	}
	if pos.Timestamp.IsZero() {
		pos.Timestamp = time.Now()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = &pos
	close(p.fresh)
	p.fresh = make(chan struct{})
	for ch := range p.watchers {
		select {
		case ch <- pos:
		default: // slow watcher, it gets the next fix
		}
	}
}

// Current returns the latest fix, waiting up to the provider timeout for
// the first one.
func (p *NATSProvider) Current(ctx context.Context) (fleet.Position, error) {
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	for {
		p.mu.Lock()
		if p.last != nil {
			pos := *p.last
			p.mu.Unlock()
			return pos, nil
		}
		wait := p.fresh
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return fleet.Position{}, ctx.Err()
		case <-timer.C:
			return fleet.Position{}, fmt.Errorf("%w after %s on %s", ErrNoFix, p.timeout, p.subject)
		case <-wait:
		}
	}
}

func (p *NATSProvider) Watch(ctx context.Context) <-chan fleet.Position {
	ch := make(chan fleet.Position, 1)
	p.mu.Lock()
	p.watchers[ch] = struct{}{}
	if p.last != nil {
		ch <- *p.last
	}
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		delete(p.watchers, ch)
		close(ch)
		p.mu.Unlock()
	}()
	return ch
}

func (p *NATSProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sub == nil {
		return nil
	}
	err := p.sub.Unsubscribe()
	p.sub = nil
	return err
}
