package models

import "time"

// Collection verification states.
const (
	VerificationNoSensor       = "no_sensor"
	VerificationPendingSensor  = "pending_sensor"
	VerificationSensorVerified = "sensor_verified"
	VerificationSensorRejected = "sensor_rejected"
)

// Collection is a driver-reported emptying event for a bin.
type Collection struct {
	ID               string   `json:"id"`
	BinID            string   `json:"bin_id"`
	DriverID         string   `json:"driver_id"`
	Timestamp        string   `json:"timestamp"` // ISO-8601
	FillBefore       float64  `json:"fill_before"`
	FillAfter        *float64 `json:"fill_after,omitempty"`
	CollectedPercent *float64 `json:"collected_percent,omitempty"`
	Verification     string   `json:"verification"`
	AdHoc            bool     `json:"ad_hoc"`
}

// IsTerminal reports whether the verification state can no longer change.
// Terminal collections are immutable.
func (c *Collection) IsTerminal() bool {
	switch c.Verification {
	case VerificationNoSensor, VerificationSensorVerified, VerificationSensorRejected:
		return true
	}
	return false
}

// Age returns how long ago the collection was reported.
func (c *Collection) Age(now time.Time) time.Duration {
	t, err := time.Parse(time.RFC3339, c.Timestamp)
	if err != nil {
		return 0
	}
	return now.Sub(t)
}

// CollectionInput is what a driver-facing collaborator submits.
type CollectionInput struct {
	BinID    string `json:"bin_id"`
	DriverID string `json:"driver_id"`
	AdHoc    bool   `json:"ad_hoc"`
}
