package netmon

import (
	"context"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
)

// Monitor answers whether the device can currently reach the network.
type Monitor interface {
	Connected(ctx context.Context) bool
}

// Func adapts a plain function to Monitor.
type Func func(ctx context.Context) bool

func (f Func) Connected(ctx context.Context) bool { return f(ctx) }

// HTTPProbe treats any HTTP response from url as connectivity; only
// transport failures and timeouts count as offline.
type HTTPProbe struct {
	url    string
	client *http.Client
}

func NewHTTPProbe(url string, timeout time.Duration) *HTTPProbe {
	return &HTTPProbe{url: url, client: &http.Client{Timeout: timeout}}
}

func (p *HTTPProbe) Connected(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}
	res, err := p.client.Do(req)
	if err != nil {
		return false
	}
	res.Body.Close()
	return true
}

// NATSMonitor reports the state of an existing NATS connection.
type NATSMonitor struct {
	nc *nats.Conn
}

func NewNATSMonitor(nc *nats.Conn) *NATSMonitor { return &NATSMonitor{nc: nc} }

func (m *NATSMonitor) Connected(context.Context) bool {
	return m.nc != nil && m.nc.IsConnected()
}

// All is connected only when every monitor is.
func All(monitors ...Monitor) Monitor {
	return Func(func(ctx context.Context) bool {
		for _, m := range monitors {
			if !m.Connected(ctx) {
				return false
			}
		}
		return true
	})
}
