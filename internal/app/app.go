package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"bus-tracker/internal/config"
	"bus-tracker/internal/fleet"
	"bus-tracker/internal/location"
	"bus-tracker/internal/log"
	"bus-tracker/internal/mapview"
	"bus-tracker/internal/metrics"
	"bus-tracker/internal/netmon"
	"bus-tracker/internal/publisher"
	"bus-tracker/internal/roster"
	"bus-tracker/internal/session"
	"bus-tracker/internal/tracker"
)

// Fleet is the fleet API as seen by the two loops.
type Fleet interface {
	tracker.Reporter
	roster.Lister
}

type Deps struct {
	Config   *config.Config
	Fleet    Fleet
	Sessions session.Store
	Locator  location.Provider
	Network  netmon.Monitor

	NATS             *nats.Conn                 // optional
	PublisherMetrics publisher.PublisherMetrics // optional
	Metrics          *metrics.Collector         // optional
}

// Run starts the screen for sess and blocks until ctx is done or the user
// logs out.
func Run(ctx context.Context, sess fleet.Session, d Deps) error {
	switch s := sess.(type) {
	case fleet.DriverSession:
		return runDriver(ctx, s, d)
	case fleet.AdminSession:
		return runRoster(ctx, roster.ZoneScope(s.Zone), d)
	case fleet.SuperAdminSession:
		return runRoster(ctx, roster.AllZones(), d)
	}
	return fmt.Errorf("%w: %T", fleet.ErrInvalidSession, sess)
}

func runDriver(ctx context.Context, s fleet.DriverSession, d Deps) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	cfg := d.Config
	logger := log.WithName("driver").WithValues("busId", s.BusID, "zone", s.Zone)

	latest, out, pub := d.renderers(s.Zone)
	opts := tracker.Options{
		BusID:            s.BusID,
		Reporter:         d.Fleet,
		Locator:          d.Locator,
		Network:          d.Network,
		Sessions:         d.Sessions,
		ReportInterval:   cfg.ReportInterval,
		NetCheckInterval: cfg.NetCheckInterval,
		Metrics:          d.Metrics,
		Location:         cfg.Location,
	}
	if pub != nil {
		opts.Sink = pub
	}
	tr := tracker.New(opts)

	srv := mapview.NewServer(latest, out, cfg.Destination(), nil)
	mountTracker(srv.Router(), tr, cancel)
	defer d.serve(srv)()

	logger.Info("driver session started")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return tr.Run(gctx)
	})
	g.Go(func() error {
		followSelf(gctx, s, d.Locator, out, cfg.Destination())
		return nil
	})
	return g.Wait()
}

// followSelf redraws the driver's own marker on every device fix.
func followSelf(ctx context.Context, s fleet.DriverSession, loc location.Provider, out mapview.Renderer, dest fleet.Coordinates) {
	for pos := range loc.Watch(ctx) {
		if err := out.Render(ctx, mapview.SelfFrame(s.BusID, s.Zone, pos, dest)); err != nil {
			log.Debug("render self frame failed", "error", err)
		}
	}
}

func runRoster(ctx context.Context, scope roster.Scope, d Deps) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	cfg := d.Config
	dest := cfg.Destination()
	logger := log.WithName("viewer").WithValues("scope", scope.String())

	latest, out, _ := d.renderers(scope.String())
	eng := roster.New(roster.Options{
		Lister:       d.Fleet,
		Scope:        scope,
		Interval:     cfg.RosterPollInterval,
		ActiveWindow: cfg.ActiveWindow,
		Focus:        out,
		Metrics:      d.Metrics,
		OnChange: func(v roster.View) {
			if err := out.Render(ctx, mapview.RosterFrame(v, dest)); err != nil {
				logger.Debug("render roster frame failed", "error", err)
			}
		},
	})
	press := func(_ context.Context, id string) error {
		_, err := eng.SelectMarker(id)
		return err
	}

	latest.Follow(func(now time.Time) mapview.Frame {
		return mapview.RosterFrame(eng.View(now), dest)
	})

	srv := mapview.NewServer(latest, out, dest, press)
	mountRoster(srv.Router(), eng, d.Sessions, cancel)
	defer d.serve(srv)()

	logger.Info("viewer session started")
	return eng.Run(ctx)
}

// renderers returns the polling renderer, the full fan-out and the NATS
// publisher when NATS is configured.
func (d Deps) renderers(zone string) (*mapview.Latest, mapview.Multi, *publisher.NATSPublisher) {
	latest := &mapview.Latest{}
	out := mapview.Multi{latest}
	if d.NATS == nil {
		return latest, out, nil
	}
	pub := publisher.NewNATSPublisher(d.NATS, publisher.NewSubjects(d.Config.NATSSubjectPrefix, zone), false, d.PublisherMetrics)
	return latest, append(out, pub), pub
}

// serve starts the map server when MAP_ADDR is set and returns its
// shutdown func.
func (d Deps) serve(srv *mapview.Server) func() {
	if d.Config.MapAddr == "" {
		return func() {}
	}
	httpSrv := srv.Serve(d.Config.MapAddr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil && err != http.ErrServerClosed {
			log.Warn("map server shutdown", "error", err)
		}
	}
}
