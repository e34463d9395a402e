// Package sensors defines the telemetry collaborator contract. The engine
// never talks to a device API directly; a Provider implementation (or its
// absence) is injected at startup. A nil Provider means the capability is not
// available — callers check for nil instead of probing method sets.
package sensors

import (
	"context"
	"time"
)

// Reading is one telemetry update from a bin-mounted device. Exactly one of
// FillLevel or DistanceCm is expected; a raw distance is converted to fill
// using the bin's calibration.
type Reading struct {
	SensorID     string     `json:"sensor_id"`
	FillLevel    *float64   `json:"fill_level,omitempty"`
	DistanceCm   *float64   `json:"distance_cm,omitempty"`
	TemperatureC float64    `json:"temperature_c"`
	BatteryLevel float64    `json:"battery_level"`
	Latitude     *float64   `json:"latitude,omitempty"`
	Longitude    *float64   `json:"longitude,omitempty"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
}

// Device describes a registered telemetry unit.
type Device struct {
	SensorID string `json:"sensor_id"`
	Model    string `json:"model"`
	Online   bool   `json:"online"`
}

// GPSFix is a device position report.
type GPSFix struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// Provider is the external sensor API. Every call is fallible and possibly
// slow; callers must degrade gracefully when it errors or hangs.
type Provider interface {
	LookupDevice(ctx context.Context, sensorID string) (*Device, error)
	LiveReading(ctx context.Context, sensorID string) (*Reading, error)
	GPS(ctx context.Context, sensorID string) (*GPSFix, error)
	History(ctx context.Context, sensorID string, since time.Time) ([]Reading, error)
}
