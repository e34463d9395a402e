package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binsync-backend/internal/metrics"
	"binsync-backend/internal/models"
	"binsync-backend/internal/sensors"
	"binsync-backend/internal/store"
)

func floatPtr(v float64) *float64 { return &v }

type testEnv struct {
	repo *Repository
	agg  *metrics.Aggregator
	now  time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		agg: metrics.New(nil),
		now: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
	}
	env.repo = New(store.NewMemory(), Config{},
		WithClock(func() time.Time { return env.now }),
		WithMetrics(env.agg),
	)
	return env
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

func TestAddCollectionWithoutSensorTrustsDriver(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	bin, err := env.repo.CreateBin(ctx, CreateBinInput{FillLevel: 60})
	require.NoError(t, err)

	col, err := env.repo.AddCollection(ctx, models.CollectionInput{BinID: bin.ID, DriverID: "DRV-1"})
	require.NoError(t, err)

	assert.Equal(t, models.VerificationNoSensor, col.Verification)
	assert.Equal(t, 60.0, col.FillBefore)
	require.NotNil(t, col.FillAfter)
	assert.Equal(t, 0.0, *col.FillAfter)
	require.NotNil(t, col.CollectedPercent)
	assert.Equal(t, 60.0, *col.CollectedPercent)
	assert.True(t, col.IsTerminal())

	got, err := env.repo.GetBin(ctx, bin.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.FillLevel)
	assert.Equal(t, models.StatusNormal, got.Status)
	assert.NotEmpty(t, got.LastCollection)
}

func TestAddCollectionWithSensorStaysPending(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	bin, err := env.repo.CreateBin(ctx, CreateBinInput{FillLevel: 82, SensorID: "SNS-1"})
	require.NoError(t, err)

	col, err := env.repo.AddCollection(ctx, models.CollectionInput{BinID: bin.ID, DriverID: "DRV-1"})
	require.NoError(t, err)

	assert.Equal(t, models.VerificationPendingSensor, col.Verification)
	assert.Nil(t, col.FillAfter)
	assert.Nil(t, col.CollectedPercent)
	assert.False(t, col.IsTerminal())

	// The sensor, not the driver, decides when this bin is empty.
	got, err := env.repo.GetBin(ctx, bin.ID)
	require.NoError(t, err)
	assert.Equal(t, 82.0, got.FillLevel)
	assert.NotEmpty(t, got.LastCollection)
}

func TestSensorReadingVerifiesPendingCollection(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	bin, err := env.repo.CreateBin(ctx, CreateBinInput{FillLevel: 80, SensorID: "SNS-1"})
	require.NoError(t, err)
	col, err := env.repo.AddCollection(ctx, models.CollectionInput{BinID: bin.ID, DriverID: "DRV-1"})
	require.NoError(t, err)

	env.advance(20 * time.Minute)
	_, err = env.repo.RecordSensorReading(ctx, sensors.Reading{
		SensorID:  "SNS-1",
		FillLevel: floatPtr(10),
	})
	require.NoError(t, err)

	resolved, err := env.repo.GetCollection(ctx, col.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationSensorVerified, resolved.Verification)
	require.NotNil(t, resolved.FillAfter)
	assert.Equal(t, 10.0, *resolved.FillAfter)
	require.NotNil(t, resolved.CollectedPercent)
	assert.Equal(t, 70.0, *resolved.CollectedPercent)

	assert.Equal(t, int64(1), env.agg.Counter(metrics.PredictionsAccurate))
	assert.Equal(t, int64(1), env.agg.Counter(metrics.OptimizationsSuccessful))
}

func TestSensorReadingRejectsPhantomCollection(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	bin, err := env.repo.CreateBin(ctx, CreateBinInput{FillLevel: 80, SensorID: "SNS-1"})
	require.NoError(t, err)
	col, err := env.repo.AddCollection(ctx, models.CollectionInput{BinID: bin.ID, DriverID: "DRV-1"})
	require.NoError(t, err)

	env.advance(20 * time.Minute)
	_, err = env.repo.RecordSensorReading(ctx, sensors.Reading{
		SensorID:  "SNS-1",
		FillLevel: floatPtr(40),
	})
	require.NoError(t, err)

	resolved, err := env.repo.GetCollection(ctx, col.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationSensorRejected, resolved.Verification)
	require.NotNil(t, resolved.CollectedPercent)
	assert.Equal(t, 40.0, *resolved.CollectedPercent)
	assert.Equal(t, int64(0), env.agg.Counter(metrics.PredictionsAccurate))

	// The phantom pickup leaves an audit trail.
	alerts, err := env.repo.ActiveAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertCollectionRejected, alerts[0].Type)
	assert.Equal(t, col.ID, alerts[0].RelatedID)

	// The bin keeps the sensor's value, not the driver's claim.
	got, err := env.repo.GetBin(ctx, bin.ID)
	require.NoError(t, err)
	assert.Equal(t, 40.0, got.FillLevel)
}

func TestCollectionLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	bin, err := env.repo.CreateBin(ctx, CreateBinInput{FillLevel: 82, SensorID: "SNS-9"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusWarning, bin.Status)

	col, err := env.repo.AddCollection(ctx, models.CollectionInput{BinID: bin.ID, DriverID: "DRV-7"})
	require.NoError(t, err)
	assert.Equal(t, models.VerificationPendingSensor, col.Verification)

	env.advance(30 * time.Minute)
	updated, err := env.repo.RecordSensorReading(ctx, sensors.Reading{
		SensorID:  "SNS-9",
		FillLevel: floatPtr(5),
	})
	require.NoError(t, err)
	assert.Equal(t, 5.0, updated.FillLevel)
	assert.Equal(t, models.StatusNormal, updated.Status)

	resolved, err := env.repo.GetCollection(ctx, col.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationSensorVerified, resolved.Verification)
	assert.Equal(t, 77.0, *resolved.CollectedPercent)
	assert.Equal(t, int64(1), env.agg.Counter(metrics.PredictionsTotal))
	assert.Equal(t, int64(1), env.agg.Counter(metrics.PredictionsAccurate))
}

func TestReadingOutsideLookbackDoesNotResolve(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	bin, err := env.repo.CreateBin(ctx, CreateBinInput{FillLevel: 75, SensorID: "SNS-1"})
	require.NoError(t, err)
	col, err := env.repo.AddCollection(ctx, models.CollectionInput{BinID: bin.ID, DriverID: "DRV-1"})
	require.NoError(t, err)

	env.advance(3 * time.Hour)
	_, err = env.repo.RecordSensorReading(ctx, sensors.Reading{
		SensorID:  "SNS-1",
		FillLevel: floatPtr(5),
	})
	require.NoError(t, err)

	// Too late to count as confirmation; the bin still takes the telemetry.
	stale, err := env.repo.GetCollection(ctx, col.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationPendingSensor, stale.Verification)

	got, err := env.repo.GetBin(ctx, bin.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, got.FillLevel)
}

func TestTerminalCollectionIsImmutable(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	bin, err := env.repo.CreateBin(ctx, CreateBinInput{FillLevel: 80, SensorID: "SNS-1"})
	require.NoError(t, err)
	col, err := env.repo.AddCollection(ctx, models.CollectionInput{BinID: bin.ID, DriverID: "DRV-1"})
	require.NoError(t, err)

	env.advance(10 * time.Minute)
	_, err = env.repo.RecordSensorReading(ctx, sensors.Reading{SensorID: "SNS-1", FillLevel: floatPtr(10)})
	require.NoError(t, err)

	// A second reading must not rewrite the resolved collection.
	env.advance(10 * time.Minute)
	_, err = env.repo.RecordSensorReading(ctx, sensors.Reading{SensorID: "SNS-1", FillLevel: floatPtr(90)})
	require.NoError(t, err)

	resolved, err := env.repo.GetCollection(ctx, col.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationSensorVerified, resolved.Verification)
	assert.Equal(t, 10.0, *resolved.FillAfter)
}

func TestExpirePendingCollections(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	bin, err := env.repo.CreateBin(ctx, CreateBinInput{FillLevel: 65, SensorID: "SNS-1"})
	require.NoError(t, err)
	col, err := env.repo.AddCollection(ctx, models.CollectionInput{BinID: bin.ID, DriverID: "DRV-1"})
	require.NoError(t, err)

	// Still inside the timeout: nothing expires.
	env.advance(12 * time.Hour)
	expired, err := env.repo.ExpirePendingCollections(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired)

	env.advance(13 * time.Hour)
	expired, err = env.repo.ExpirePendingCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	resolved, err := env.repo.GetCollection(ctx, col.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationNoSensor, resolved.Verification)
	assert.Equal(t, 65.0, *resolved.CollectedPercent)

	got, err := env.repo.GetBin(ctx, bin.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.FillLevel)

	alerts, err := env.repo.ActiveAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertSensorSilent, alerts[0].Type)

	// Idempotent: a second sweep finds nothing pending.
	expired, err = env.repo.ExpirePendingCollections(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired)
}

func TestUnknownSensorAutoRegisters(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	bin, err := env.repo.RecordSensorReading(ctx, sensors.Reading{
		SensorID:     "SNS-NEW",
		FillLevel:    floatPtr(33),
		TemperatureC: 21,
		Latitude:     floatPtr(55.6),
		Longitude:    floatPtr(12.5),
	})
	require.NoError(t, err)
	assert.Equal(t, "SNS-NEW", bin.SensorID)
	assert.Equal(t, 33.0, bin.FillLevel)
	assert.Equal(t, 55.6, bin.Latitude)

	found, err := env.repo.FindBinBySensor(ctx, "SNS-NEW")
	require.NoError(t, err)
	assert.Equal(t, bin.ID, found.ID)
}

func TestDistanceReadingUsesCalibration(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	cal := models.Calibration{EmptyDistanceCm: 100, FullDistanceCm: 20}
	bin, err := env.repo.CreateBin(ctx, CreateBinInput{SensorID: "SNS-1", Calibration: &cal})
	require.NoError(t, err)

	updated, err := env.repo.RecordSensorReading(ctx, sensors.Reading{
		SensorID:   "SNS-1",
		DistanceCm: floatPtr(60),
	})
	require.NoError(t, err)
	assert.Equal(t, bin.ID, updated.ID)
	assert.Equal(t, 50.0, updated.FillLevel)
}

func TestAddCollectionUnknownBin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.repo.AddCollection(ctx, models.CollectionInput{BinID: "BIN-nope", DriverID: "DRV-1"})
	assert.ErrorIs(t, err, ErrBinNotFound)
}

func TestListCollectionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	bin, err := env.repo.CreateBin(ctx, CreateBinInput{FillLevel: 50})
	require.NoError(t, err)

	first, err := env.repo.AddCollection(ctx, models.CollectionInput{BinID: bin.ID, DriverID: "DRV-1"})
	require.NoError(t, err)
	env.advance(time.Hour)
	second, err := env.repo.AddCollection(ctx, models.CollectionInput{BinID: bin.ID, DriverID: "DRV-2"})
	require.NoError(t, err)

	cols, err := env.repo.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, second.ID, cols[0].ID)
	assert.Equal(t, first.ID, cols[1].ID)
}
