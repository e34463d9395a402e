package models

import "math"

// Bin statuses. fire-risk overrides the fill-based levels.
const (
	StatusNormal   = "normal"
	StatusWarning  = "warning"
	StatusCritical = "critical"
	StatusFireRisk = "fire-risk"
)

// Fill and temperature thresholds for status derivation.
const (
	WarningFillLevel  = 70.0
	CriticalFillLevel = 85.0
	FireRiskTempC     = 60.0
)

// Calibration maps raw ultrasonic distance readings to fill percentages.
type Calibration struct {
	EmptyDistanceCm float64 `json:"empty_distance_cm"`
	FullDistanceCm  float64 `json:"full_distance_cm"`
}

// DefaultCalibration is applied to auto-registered bins until an admin sets
// real mounting distances.
var DefaultCalibration = Calibration{EmptyDistanceCm: 120, FullDistanceCm: 15}

type Bin struct {
	ID             string      `json:"id"`
	FillLevel      float64     `json:"fill_level"`
	Status         string      `json:"status"`
	Latitude       float64     `json:"latitude"`
	Longitude      float64     `json:"longitude"`
	SensorID       string      `json:"sensor_id,omitempty"`
	LastCollection string      `json:"last_collection,omitempty"` // ISO-8601
	Temperature    float64     `json:"temperature"`
	BatteryLevel   float64     `json:"battery_level"`
	Calibration    Calibration `json:"calibration"`
	CreatedAt      string      `json:"created_at"` // ISO-8601
	UpdatedAt      string      `json:"updated_at"` // ISO-8601
}

// HasSensor reports whether the bin is linked to a telemetry device. A linked
// sensor is ground truth for fill levels; driver reports alone never confirm
// an empty bin when one is present.
func (b *Bin) HasSensor() bool {
	return b.SensorID != ""
}

// BinResponse is what we send to read-only consumers. It carries the fill
// value under both keys because older callers still read `fill`.
type BinResponse struct {
	ID             string      `json:"id"`
	Fill           float64     `json:"fill"`
	FillLevel      float64     `json:"fill_level"`
	Status         string      `json:"status"`
	Latitude       float64     `json:"latitude"`
	Longitude      float64     `json:"longitude"`
	SensorID       string      `json:"sensor_id,omitempty"`
	LastCollection string      `json:"last_collection,omitempty"`
	Temperature    float64     `json:"temperature"`
	BatteryLevel   float64     `json:"battery_level"`
	Calibration    Calibration `json:"calibration"`
	CreatedAt      string      `json:"created_at"`
	UpdatedAt      string      `json:"updated_at"`
}

// ToBinResponse converts a Bin to BinResponse.
func (b *Bin) ToBinResponse() BinResponse {
	return BinResponse{
		ID:             b.ID,
		Fill:           b.FillLevel,
		FillLevel:      b.FillLevel,
		Status:         b.Status,
		Latitude:       b.Latitude,
		Longitude:      b.Longitude,
		SensorID:       b.SensorID,
		LastCollection: b.LastCollection,
		Temperature:    b.Temperature,
		BatteryLevel:   b.BatteryLevel,
		Calibration:    b.Calibration,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}
}

// ClampFill clamps a fill value to [0,100] and rounds it to one decimal.
// Every fill write goes through here before storage.
func ClampFill(v float64) float64 {
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return math.Round(v*10) / 10
}

// DeriveStatus computes the bin status from the current fill level and
// temperature. Pure and history-free: the same inputs always produce the
// same status.
func DeriveStatus(fillLevel, temperature float64) string {
	switch {
	case temperature > FireRiskTempC:
		return StatusFireRisk
	case fillLevel >= CriticalFillLevel:
		return StatusCritical
	case fillLevel >= WarningFillLevel:
		return StatusWarning
	default:
		return StatusNormal
	}
}

// FillFromDistance converts a raw distance reading to a fill percentage using
// the bin's calibration. Falls back to 0 when the calibration is degenerate.
func FillFromDistance(distanceCm float64, cal Calibration) float64 {
	span := cal.EmptyDistanceCm - cal.FullDistanceCm
	if span <= 0 {
		return 0
	}
	return ClampFill((cal.EmptyDistanceCm - distanceCm) / span * 100)
}
