package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"bus-tracker/internal/app"
	"bus-tracker/internal/config"
	"bus-tracker/internal/fleet"
	"bus-tracker/internal/location"
	"bus-tracker/internal/log"
	"bus-tracker/internal/metrics"
	"bus-tracker/internal/netmon"
	"bus-tracker/internal/publisher"
	"bus-tracker/internal/session"
)

func newRunCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Resume the stored session: report location as a driver or watch the fleet as an admin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), e)
		},
	}
}

func run(ctx context.Context, e *env) error {
	cfg := e.cfg
	sess, err := e.store.Load(ctx)
	if errors.Is(err, session.ErrNoSession) {
		return errors.New("no stored session, log in first")
	}
	if err != nil {
		return err
	}

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.ReportInterval, cfg.RosterPollInterval)
		srv := mcol.Serve(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = publisher.Connect(cfg.NATSURL, "bustracker", wrapPublisherMetrics(mcol))
		if err != nil {
			return err
		}
		defer func() {
			nc.Drain()
			nc.Close()
		}()
	}

	network := netmon.Monitor(netmon.NewHTTPProbe(cfg.FleetAPIURL, cfg.HTTPTimeout))
	locator, err := newLocator(cfg, nc, sess)
	if err != nil {
		return err
	}
	if np, ok := locator.(*location.NATSProvider); ok {
		defer np.Close()
		// Fixes arrive over NATS, so a dropped NATS link is offline too.
		network = netmon.All(network, netmon.NewNATSMonitor(nc))
	}

	log.Info("resuming session", "role", string(sess.Role()), "api", e.api.BaseURL())
	err = app.Run(ctx, sess, app.Deps{
		Config:           cfg,
		Fleet:            e.api,
		Sessions:         e.store,
		Locator:          locator,
		Network:          network,
		NATS:             nc,
		PublisherMetrics: wrapPublisherMetrics(mcol),
		Metrics:          mcol,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutting down")
	return nil
}

// newLocator picks the position source: a NATS feed when LOCATION_SUBJECT
// is set, else the fixed FIXED_LAT/FIXED_LNG point. Viewers never sample.
func newLocator(cfg *config.Config, nc *nats.Conn, sess fleet.Session) (location.Provider, error) {
	if cfg.LocationSubject != "" {
		if nc == nil {
			return nil, errors.New("LOCATION_SUBJECT requires NATS_URL")
		}
		return location.NewNATSProvider(nc, cfg.LocationSubject, cfg.LocationTimeout), nil
	}
	if at, ok := cfg.FixedPosition(); ok {
		return location.NewStatic(at), nil
	}
	if _, driver := sess.(fleet.DriverSession); driver {
		return nil, fmt.Errorf("driver session needs a position source: set LOCATION_SUBJECT or FIXED_LAT/FIXED_LNG")
	}
	return location.NewStatic(cfg.Destination()), nil
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
