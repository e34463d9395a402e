package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampFill(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"negative clamps to zero", -5, 0},
		{"zero stays zero", 0, 0},
		{"in range untouched", 42.5, 42.5},
		{"rounds to one decimal", 33.333, 33.3},
		{"rounds up", 66.66, 66.7},
		{"hundred stays", 100, 100},
		{"over hundred clamps", 120, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampFill(tt.in))
		})
	}
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name string
		fill float64
		temp float64
		want string
	}{
		{"empty bin", 0, 20, StatusNormal},
		{"below warning", 69.9, 20, StatusNormal},
		{"at warning threshold", 70, 20, StatusWarning},
		{"between warning and critical", 84.9, 20, StatusWarning},
		{"at critical threshold", 85, 20, StatusCritical},
		{"full bin", 100, 20, StatusCritical},
		{"fire risk overrides fill", 10, 61, StatusFireRisk},
		{"fire risk with critical fill", 95, 80, StatusFireRisk},
		{"exactly at fire temp is not fire", 95, 60, StatusCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(tt.fill, tt.temp))
		})
	}
}

func TestFillFromDistance(t *testing.T) {
	cal := Calibration{EmptyDistanceCm: 120, FullDistanceCm: 20}

	assert.Equal(t, 0.0, FillFromDistance(120, cal))
	assert.Equal(t, 100.0, FillFromDistance(20, cal))
	assert.Equal(t, 50.0, FillFromDistance(70, cal))
	// Readings beyond the calibrated range clamp instead of going negative.
	assert.Equal(t, 0.0, FillFromDistance(150, cal))
	assert.Equal(t, 100.0, FillFromDistance(5, cal))
}

func TestFillFromDistanceDegenerateCalibration(t *testing.T) {
	assert.Equal(t, 0.0, FillFromDistance(50, Calibration{EmptyDistanceCm: 10, FullDistanceCm: 10}))
	assert.Equal(t, 0.0, FillFromDistance(50, Calibration{EmptyDistanceCm: 10, FullDistanceCm: 40}))
}

func TestBinResponseCarriesBothFillKeys(t *testing.T) {
	bin := Bin{ID: "BIN-1", FillLevel: 73.5, Status: StatusWarning}
	data, err := json.Marshal(bin.ToBinResponse())
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 73.5, decoded["fill"])
	assert.Equal(t, 73.5, decoded["fill_level"])
}

func TestHasSensor(t *testing.T) {
	assert.False(t, (&Bin{}).HasSensor())
	assert.True(t, (&Bin{SensorID: "SNS-1"}).HasSensor())
}
