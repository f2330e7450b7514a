package mapview

import (
	"strconv"
	"time"

	"bus-tracker/internal/fleet"
	"bus-tracker/internal/roster"
)

// SelfID is the marker id of the driver's own position.
const SelfID = "self"

// Marker is one point drawn on the map.
type Marker struct {
	ID          string               `json:"id"`
	Latitude    float64              `json:"latitude"`
	Longitude   float64              `json:"longitude"`
	Label       string               `json:"label"`
	Activity    fleet.ActivityStatus `json:"activity"`
	Highlighted bool                 `json:"highlighted,omitempty"`
	Heading     *float64             `json:"heading,omitempty"`
}

// Frame is everything a renderer needs to draw one screen.
type Frame struct {
	Scope       string             `json:"scope"`
	Markers     []Marker           `json:"markers"`
	Destination fleet.Coordinates  `json:"destination"`
	Self        *Marker            `json:"self,omitempty"`
	ETA         *ETA               `json:"eta,omitempty"`
	Heading     *float64           `json:"headingToDestination,omitempty"`
	Focus       *fleet.Coordinates `json:"focus,omitempty"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

func busLabel(busID int) string { return "Bus " + strconv.Itoa(busID) }

// RosterFrame draws every visible bus, highlighting the selected one.
func RosterFrame(v roster.View, destination fleet.Coordinates) Frame {
	f := Frame{
		Scope:       v.Scope,
		Markers:     make([]Marker, 0, len(v.Buses)),
		Destination: destination,
		UpdatedAt:   v.At,
	}
	for _, b := range v.Buses {
		f.Markers = append(f.Markers, Marker{
			ID:          b.ID,
			Latitude:    b.Location.Lat,
			Longitude:   b.Location.Lng,
			Label:       busLabel(b.BusID),
			Activity:    b.Status,
			Highlighted: v.Selected != nil && v.Selected.BusID == b.BusID,
		})
	}
	return f
}

// SelfFrame draws the driver's own position with an ETA to the destination.
// The self marker is always Active: it is the live device fix.
func SelfFrame(busID int, zone string, pos fleet.Position, destination fleet.Coordinates) Frame {
	self := Marker{
		ID:        SelfID,
		Latitude:  pos.Lat,
		Longitude: pos.Lng,
		Label:     busLabel(busID),
		Activity:  fleet.Active,
		Heading:   pos.Heading,
	}
	eta := EstimateETA(pos.Coordinates, destination)
	heading := bearingDeg(pos.Coordinates, destination)
	return Frame{
		Scope:       zone,
		Markers:     []Marker{self},
		Destination: destination,
		Self:        &self,
		ETA:         &eta,
		Heading:     &heading,
		UpdatedAt:   pos.Timestamp,
	}
}
