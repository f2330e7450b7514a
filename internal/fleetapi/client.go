package fleetapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bus-tracker/internal/fleet"
)

// ErrRequestFailed marks a response the API did not accept: a non-OK
// status, a malformed body or success:false.
var ErrRequestFailed = errors.New("fleet api request failed")

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL is the API root, used by reachability probes.
func (c *Client) BaseURL() string { return c.baseURL }

type envelope[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
}

// ListBuses fetches the full roster.
func (c *Client) ListBuses(ctx context.Context) ([]fleet.BusRecord, error) {
	var env envelope[[]fleet.BusRecord]
	if err := c.do(ctx, http.MethodGet, "/buses", nil, &env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fmt.Errorf("%w: GET /buses returned success=false", ErrRequestFailed)
	}
	return env.Data, nil
}

type locationUpdate struct {
	BusID    int               `json:"busId"`
	Location fleet.Coordinates `json:"location"`
}

// UpdateLocation reports a bus position. Only 200 OK counts as success.
func (c *Client) UpdateLocation(ctx context.Context, busID int, loc fleet.Coordinates) error {
	return c.do(ctx, http.MethodPatch, "/buses", locationUpdate{BusID: busID, Location: loc}, nil)
}

func (c *Client) LoginDetails(ctx context.Context) ([]fleet.LoginDetail, error) {
	var env envelope[[]fleet.LoginDetail]
	if err := c.do(ctx, http.MethodGet, "/buses/login-details", nil, &env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fmt.Errorf("%w: GET /buses/login-details returned success=false", ErrRequestFailed)
	}
	return env.Data, nil
}

// AdminZones lists zones that have an admin. Items may be plain strings or
// objects carrying a zone field.
func (c *Client) AdminZones(ctx context.Context) ([]string, error) {
	var env envelope[[]json.RawMessage]
	if err := c.do(ctx, http.MethodGet, "/admin/login", nil, &env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fmt.Errorf("%w: GET /admin/login returned success=false", ErrRequestFailed)
	}
	zones := make([]string, 0, len(env.Data))
	for _, raw := range env.Data {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			zones = append(zones, s)
			continue
		}
		var obj struct {
			Zone string `json:"zone"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("%w: zone item %s: %v", ErrRequestFailed, raw, err)
		}
		zones = append(zones, obj.Zone)
	}
	return zones, nil
}

type adminCredentials struct {
	Zone     string `json:"zone"`
	Password string `json:"password"`
}

// AdminLogin asks the API to check a zone admin password. A rejection,
// either 401/403 or a success:false body under any status, returns
// ok=false with a nil error.
func (c *Client) AdminLogin(ctx context.Context, zone, password string) (bool, error) {
	var env envelope[json.RawMessage]
	err := c.do(ctx, http.MethodPost, "/admin/login", adminCredentials{Zone: zone, Password: password}, &env)
	var se *StatusError
	if errors.As(err, &se) && se.rejected() {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return env.Success, nil
}

// StatusError carries a non-OK HTTP status and the start of its body.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
}

func (e *StatusError) Unwrap() error { return ErrRequestFailed }

// rejected reports whether the API turned the credentials down rather than
// failing to answer.
func (e *StatusError) rejected() bool {
	if e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden {
		return true
	}
	var body struct {
		Success *bool `json:"success"`
	}
	return json.Unmarshal(e.Body, &body) == nil && body.Success != nil && !*body.Success
}

const maxErrorBody = 4 << 10

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		_, _ = io.Copy(io.Discard, res.Body)
		return &StatusError{Method: method, Path: path, Code: res.StatusCode, Body: b}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %v", ErrRequestFailed, method, path, err)
	}
	return nil
}
