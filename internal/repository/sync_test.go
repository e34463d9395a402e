package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binsync-backend/internal/sensors"
)

// fakeProvider serves canned live readings keyed by sensor ID.
type fakeProvider struct {
	readings map[string]*sensors.Reading
	failing  map[string]bool
}

func (f *fakeProvider) LookupDevice(_ context.Context, sensorID string) (*sensors.Device, error) {
	return &sensors.Device{SensorID: sensorID, Online: true}, nil
}

func (f *fakeProvider) LiveReading(_ context.Context, sensorID string) (*sensors.Reading, error) {
	if f.failing[sensorID] {
		return nil, errors.New("device unreachable")
	}
	return f.readings[sensorID], nil
}

func (f *fakeProvider) GPS(context.Context, string) (*sensors.GPSFix, error) {
	return nil, errors.New("not supported")
}

func (f *fakeProvider) History(context.Context, string, time.Time) ([]sensors.Reading, error) {
	return nil, errors.New("not supported")
}

func TestSyncSensorsNilProviderIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	synced, err := env.repo.SyncSensors(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, synced)
}

func TestSyncSensorsIngestsLiveReadings(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	linked, err := env.repo.CreateBin(ctx, CreateBinInput{FillLevel: 10, SensorID: "SNS-1"})
	require.NoError(t, err)
	_, err = env.repo.CreateBin(ctx, CreateBinInput{FillLevel: 10})
	require.NoError(t, err)

	provider := &fakeProvider{readings: map[string]*sensors.Reading{
		"SNS-1": {SensorID: "SNS-1", FillLevel: floatPtr(88), TemperatureC: 25, BatteryLevel: 60},
	}}

	synced, err := env.repo.SyncSensors(ctx, provider)
	require.NoError(t, err)
	assert.Equal(t, 1, synced)

	got, err := env.repo.GetBin(ctx, linked.ID)
	require.NoError(t, err)
	assert.Equal(t, 88.0, got.FillLevel)
	assert.Equal(t, 60.0, got.BatteryLevel)
}

func TestSyncSensorsSkipsFailingDevices(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.repo.CreateBin(ctx, CreateBinInput{SensorID: "SNS-dead"})
	require.NoError(t, err)
	ok, err := env.repo.CreateBin(ctx, CreateBinInput{SensorID: "SNS-ok"})
	require.NoError(t, err)

	provider := &fakeProvider{
		readings: map[string]*sensors.Reading{
			"SNS-ok": {SensorID: "SNS-ok", FillLevel: floatPtr(42)},
		},
		failing: map[string]bool{"SNS-dead": true},
	}

	synced, err := env.repo.SyncSensors(ctx, provider)
	require.NoError(t, err)
	assert.Equal(t, 1, synced)

	got, err := env.repo.GetBin(ctx, ok.ID)
	require.NoError(t, err)
	assert.Equal(t, 42.0, got.FillLevel)
}
