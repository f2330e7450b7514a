package metrics

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bus-tracker/internal/log"
)

type Collector struct {
	reg *prometheus.Registry

	ReportsSent    prometheus.Counter
	ReportsFailed  *prometheus.CounterVec // reason label: location|request
	CyclesSkipped  *prometheus.CounterVec // reason label: offline|overlap
	Connected      prometheus.Gauge
	LastSuccess    prometheus.Gauge // unix seconds
	ReportDuration prometheus.Histogram
	TrackerHalted  prometheus.Gauge

	RosterPolls        prometheus.Counter
	RosterPollErrs     prometheus.Counter
	RosterPollsSkipped prometheus.Counter
	RosterPollDuration prometheus.Histogram
	RosterBuses        *prometheus.GaugeVec // status label: active|inactive

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	ReportInterval prometheus.Gauge // seconds
	PollInterval   prometheus.Gauge // seconds
}

func NewCollector(reportInterval, pollInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ReportsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bustracker_reports_sent_total",
			Help: "Location reports accepted by the fleet API.",
		}),
		ReportsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bustracker_reports_failed_total",
			Help: "Location reports that failed, by reason.",
		}, []string{"reason"}),
		CyclesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bustracker_cycles_skipped_total",
			Help: "Tracking cycles skipped before sampling, by reason.",
		}, []string{"reason"}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bustracker_connected",
			Help: "1 if the device currently considers itself online, 0 otherwise.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bustracker_last_success_timestamp_seconds",
			Help: "Unix time of the last accepted location report.",
		}),
		ReportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bustracker_report_duration_seconds",
			Help:    "Duration of a full tracking cycle that reached the fleet API.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		TrackerHalted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bustracker_tracker_halted",
			Help: "1 once the tracking loop has halted for this session.",
		}),
		RosterPolls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bustracker_roster_polls_total",
			Help: "Successful roster polls.",
		}),
		RosterPollErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bustracker_roster_poll_errors_total",
			Help: "Roster polls that failed and kept the previous snapshot.",
		}),
		RosterPollsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bustracker_roster_polls_skipped_total",
			Help: "Roster ticks skipped because the previous poll was still in flight.",
		}),
		RosterPollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bustracker_roster_poll_duration_seconds",
			Help:    "Duration of roster fetches.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		RosterBuses: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bustracker_roster_buses",
			Help: "Buses in the viewed roster at the last poll, by activity status.",
		}, []string{"status"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bustracker_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bustracker_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bustracker_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bustracker_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		ReportInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bustracker_report_interval_seconds",
			Help: "Driver report interval in seconds.",
		}),
		PollInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bustracker_roster_poll_interval_seconds",
			Help: "Roster poll interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.ReportsSent, c.ReportsFailed, c.CyclesSkipped, c.Connected, c.LastSuccess,
		c.ReportDuration, c.TrackerHalted,
		c.RosterPolls, c.RosterPollErrs, c.RosterPollsSkipped, c.RosterPollDuration, c.RosterBuses,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.ReportInterval, c.PollInterval,
	)

	c.ReportInterval.Set(reportInterval.Seconds())
	c.PollInterval.Set(pollInterval.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	r := mux.NewRouter()
	r.Handle("/metrics", c.Handler()).Methods(http.MethodGet)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "metrics server stopped")
		}
	}()
	log.Info("metrics listening", "addr", addr)
	return srv
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// The methods below are nil-safe so loops can run without a collector.

func (c *Collector) SetConnected(b bool) {
	if c != nil {
		c.Connected.Set(boolGauge(b))
	}
}

func (c *Collector) ReportOK(at time.Time, took time.Duration) {
	if c == nil {
		return
	}
	c.ReportsSent.Inc()
	c.LastSuccess.Set(float64(at.Unix()))
	c.ReportDuration.Observe(took.Seconds())
}

func (c *Collector) ReportFailed(reason string) {
	if c != nil {
		c.ReportsFailed.WithLabelValues(reason).Inc()
	}
}

func (c *Collector) CycleSkipped(reason string) {
	if c != nil {
		c.CyclesSkipped.WithLabelValues(reason).Inc()
	}
}

func (c *Collector) Halted() {
	if c != nil {
		c.TrackerHalted.Set(1)
	}
}

func (c *Collector) PollOK(took time.Duration, active, inactive int) {
	if c == nil {
		return
	}
	c.RosterPolls.Inc()
	c.RosterPollDuration.Observe(took.Seconds())
	c.RosterBuses.WithLabelValues("active").Set(float64(active))
	c.RosterBuses.WithLabelValues("inactive").Set(float64(inactive))
}

func (c *Collector) PollFailed(took time.Duration) {
	if c == nil {
		return
	}
	c.RosterPollErrs.Inc()
	c.RosterPollDuration.Observe(took.Seconds())
}

func (c *Collector) PollSkipped() {
	if c != nil {
		c.RosterPollsSkipped.Inc()
	}
}
