package fleet

import (
	"encoding/json"
	"fmt"
	"time"
)

// Coordinates is a WGS84 point. On the wire it is the pair [lat, lng].
type Coordinates struct {
	Lat float64
	Lng float64
}

func (c Coordinates) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{c.Lat, c.Lng})
}

func (c *Coordinates) UnmarshalJSON(b []byte) error {
	var pair []float64
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("location: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("location: want [lat, lng], got %d values", len(pair))
	}
	c.Lat, c.Lng = pair[0], pair[1]
	return nil
}

// BusRecord is a read-only snapshot of one bus as returned by the fleet API.
type BusRecord struct {
	ID         string      `json:"_id"`
	BusID      int         `json:"busId"`
	Zone       string      `json:"zone"`
	Location   Coordinates `json:"location"`
	LastUpdate *time.Time  `json:"lastUpdate,omitempty"` // nil until the first accepted report
}

// Position is a single device fix.
type Position struct {
	Coordinates
	Heading   *float64 // degrees, nil when the device does not report one
	Timestamp time.Time
}

// LoginDetail is a driver credential row from /buses/login-details.
type LoginDetail struct {
	BusID    int      `json:"busId"`
	Zone     string   `json:"zone"`
	Password Password `json:"password"`
}

// Password accepts either a JSON string or a JSON number.
type Password string

func (p *Password) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*p = Password(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("password: %w", err)
	}
	*p = Password(n.String())
	return nil
}

// Counts aggregates activity over a roster.
type Counts struct {
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
}
