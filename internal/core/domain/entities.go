package domain

import (
	"fmt"
	"time"
)

// Position is a single sample from the device location feed.
type Position struct {
	DeviceID string    `json:"device_id,omitempty"`
	Location GeoPoint  `json:"location"`
	Speed    *float64  `json:"speed,omitempty"` // m/s, nil when the sensor omits it
	Accuracy float64   `json:"accuracy,omitempty"`
	Time     time.Time `json:"time"`
}

// SpeedKmh formats the speed for the status panel.
func (p Position) SpeedKmh() string {
	if p.Speed == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.1f km/h", *p.Speed*3.6)
}

// Destination is a geocoded trip target. ID changes on every new search.
type Destination struct {
	ID       string    `json:"id"`
	Query    string    `json:"query"`
	Name     string    `json:"name,omitempty"`
	Location GeoPoint  `json:"location"`
	SetAt    time.Time `json:"set_at"`
}

// Route is a driving route towards a destination.
type Route struct {
	DestinationID string        `json:"destination_id"`
	Path          GeoLineString `json:"path"`
	DistanceKm    float64       `json:"distance_km"`
	From          GeoPoint      `json:"from"`
	ComputedAt    time.Time     `json:"computed_at"`
	// Seq identifies the route request that produced this route.
	Seq uint64 `json:"-"`
}

// Stage is the proximity progress marker for the live destination.
type Stage string

const (
	StageUnset   Stage = ""
	StageFar     Stage = "far"
	StageMid     Stage = "mid"
	StageNear    Stage = "near"
	StageArrived Stage = "arrived"
)

// AlarmState tracks the one-shot proximity alarm. Armed is set only by
// entering the alarm radius; Active also follows stop and replay.
type AlarmState struct {
	Armed  bool `json:"armed"`
	Active bool `json:"active"`
}

// TripState is the navigator's complete mutable state.
type TripState struct {
	Position       *Position
	Destination    *Destination
	Route          *Route
	LastRoutedFrom *GeoPoint
	RouteSeq       uint64 // sequence of the latest route request
	Stage          Stage
	Alarm          AlarmState
	AlarmRadius    float64
}

// Sensor states reported in Status.
const (
	SensorWaiting     = "waiting"
	SensorOK          = "ok"
	SensorUnavailable = "unavailable"
)

// Status is the snapshot rendered by the status panel and pushed to clients.
type Status struct {
	Position        *Position    `json:"position,omitempty"`
	Speed           string       `json:"speed"`
	Destination     *Destination `json:"destination,omitempty"`
	RouteDistanceKm *float64     `json:"route_distance_km,omitempty"`
	DistanceMeters  *float64     `json:"distance_meters,omitempty"`
	AlarmRadius     float64      `json:"alarm_radius"`
	AlarmZone       *Bounds      `json:"alarm_zone,omitempty"`
	Stage           Stage        `json:"stage"`
	Alarm           AlarmState   `json:"alarm"`
	Sensor          string       `json:"sensor"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Utterance is one spoken announcement.
type Utterance struct {
	Text string `json:"text"`
	Lang string `json:"lang"`
}

// NotificationKind distinguishes spoken announcements from on-screen alerts.
type NotificationKind string

const (
	NotificationSpeech NotificationKind = "speech"
	NotificationAlert  NotificationKind = "alert"
)

// Notification is a journaled announcement or alert.
type Notification struct {
	ID            int64            `json:"id"`
	DestinationID string           `json:"destination_id,omitempty"`
	Kind          NotificationKind `json:"kind"`
	Stage         Stage            `json:"stage,omitempty"`
	Message       string           `json:"message"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Trip records one destination from search to arrival.
type Trip struct {
	DestinationID string     `json:"destination_id"`
	Query         string     `json:"query"`
	Name          string     `json:"name,omitempty"`
	Destination   GeoPoint   `json:"destination"`
	StartedAt     time.Time  `json:"started_at"`
	ArrivedAt     *time.Time `json:"arrived_at,omitempty"`
	DistanceKm    *float64   `json:"distance_km,omitempty"`
	ArchiveKey    string     `json:"archive_key,omitempty"`
}
