package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"bus-tracker/internal/fleet"
	"bus-tracker/internal/log"
	"bus-tracker/internal/mapview"
	"bus-tracker/internal/tracker"
)

var ErrNotConnected = errors.New("nats not connected")

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

// Connect dials NATS and keeps m's connection gauge in step with the
// connection state.
func Connect(url, name string, m PublisherMetrics) (*nats.Conn, error) {
	setConnected := func(b bool) {
		if m != nil {
			m.NATSSetConnected(b)
		}
	}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			setConnected(false)
			log.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			setConnected(true)
			log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			setConnected(false)
			log.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	setConnected(true)
	return nc, nil
}

// Subjects names where one viewer's messages go.
type Subjects struct {
	prefix string
	zone   string
}

func NewSubjects(prefix, zone string) Subjects {
	return Subjects{prefix: subjectToken(prefix), zone: subjectToken(fleet.NormalizeZone(zone))}
}

func (s Subjects) Frame() string { return fmt.Sprintf("%s.map.%s", s.prefix, s.zone) }
func (s Subjects) Focus() string { return s.Frame() + ".focus" }
func (s Subjects) Status(busID int) string {
	return fmt.Sprintf("%s.tracker.%s", s.prefix, subjectToken(strconv.Itoa(busID)))
}

// NATSPublisher sends map frames, focus commands and tracker status to
// NATS. It satisfies mapview.Renderer and tracker.StatusSink.
type NATSPublisher struct {
	nc          *nats.Conn
	subjects    Subjects
	logSubjects bool
	metrics     PublisherMetrics
}

func NewNATSPublisher(nc *nats.Conn, subjects Subjects, logSubjects bool, m PublisherMetrics) *NATSPublisher {
	return &NATSPublisher{nc: nc, subjects: subjects, logSubjects: logSubjects, metrics: m}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

type FocusMessage struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

func (p *NATSPublisher) Render(_ context.Context, f mapview.Frame) error {
	return p.publish(p.subjects.Frame(), f)
}

func (p *NATSPublisher) Focus(_ context.Context, at fleet.Coordinates) error {
	return p.publish(p.subjects.Focus(), FocusMessage{Latitude: at.Lat, Longitude: at.Lng, Timestamp: time.Now()})
}

func (p *NATSPublisher) PublishStatus(_ context.Context, st tracker.Status) error {
	return p.publish(p.subjects.Status(st.BusID), st)
}

func (p *NATSPublisher) publish(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if p.nc == nil {
		p.observe(0, ErrNotConnected)
		return ErrNotConnected
	}
	if p.logSubjects {
		log.Debug("nats publish", "subject", subject)
	}
	msg := nats.NewMsg(subject)
	msg.Header.Set(nats.MsgIdHdr, uuid.NewString())
	msg.Data = b

	start := time.Now()
	err = p.nc.PublishMsg(msg)
	p.observe(time.Since(start), err)
	return err
}

func (p *NATSPublisher) observe(d time.Duration, err error) {
	if p.metrics == nil {
		return
	}
	p.metrics.PublishObserve(d)
	if err != nil {
		p.metrics.NATSPublishErrInc()
	} else {
		p.metrics.NATSPublishedInc()
	}
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
