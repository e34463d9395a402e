package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"binsync-backend/internal/metrics"
	"binsync-backend/internal/models"
	"binsync-backend/internal/sensors"
	"binsync-backend/internal/store"
)

// ErrCollectionNotFound is returned when a collection ID resolves to nothing.
var ErrCollectionNotFound = errors.New("collection not found")

// AddCollection records a driver's pickup claim.
//
// Without a linked sensor the driver is trusted: the collection is finalized
// immediately and the bin's fill resets to 0. With a sensor the collection
// stays pending_sensor and the bin's fill is NOT touched — the sensor, not
// the driver, decides whether the bin is actually empty.
func (r *Repository) AddCollection(ctx context.Context, input models.CollectionInput) (*models.Collection, error) {
	unlock := r.lockEntity(input.BinID)
	defer unlock()

	bin, err := r.GetBin(ctx, input.BinID)
	if err != nil {
		return nil, err
	}

	now := r.timestamp()
	col := &models.Collection{
		ID:         NewID("COL"),
		BinID:      bin.ID,
		DriverID:   input.DriverID,
		Timestamp:  now,
		FillBefore: bin.FillLevel,
		AdHoc:      input.AdHoc,
	}

	if !bin.HasSensor() {
		zero := 0.0
		collected := col.FillBefore
		col.FillAfter = &zero
		col.CollectedPercent = &collected
		col.Verification = models.VerificationNoSensor
	} else {
		col.Verification = models.VerificationPendingSensor
	}

	if err := r.save(ctx, collectionKey(col.ID), col); err != nil {
		return nil, err
	}

	if bin.HasSensor() {
		// Most recent pending collection wins the index; an older pending one
		// is left for the timeout sweep.
		if err := r.store.Set(ctx, pendingIdxKey(bin.ID), []byte(col.ID)); err != nil {
			return nil, fmt.Errorf("failed to index pending collection: %w", err)
		}
		bin.LastCollection = now
		bin.UpdatedAt = now
		if err := r.save(ctx, binKey(bin.ID), bin); err != nil {
			return nil, err
		}
	} else {
		zero := 0.0
		if _, err := r.updateBinLocked(ctx, bin.ID, BinUpdate{FillLevel: &zero}); err != nil {
			return nil, err
		}
		if err := r.stampLastCollection(ctx, bin.ID, now); err != nil {
			return nil, err
		}
	}

	r.appendHistory(ctx, bin.ID, models.HistoryCollection,
		fmt.Sprintf("collection %s by %s (%s)", col.ID, col.DriverID, col.Verification), col.FillBefore)
	r.inc(metrics.PredictionsTotal)
	r.emit(EventCollectionCreated, col.ID)
	return col, nil
}

func (r *Repository) stampLastCollection(ctx context.Context, binID, ts string) error {
	bin, err := r.GetBin(ctx, binID)
	if err != nil {
		return err
	}
	bin.LastCollection = ts
	return r.save(ctx, binKey(bin.ID), bin)
}

// GetCollection loads one collection.
func (r *Repository) GetCollection(ctx context.Context, id string) (*models.Collection, error) {
	var col models.Collection
	if err := r.load(ctx, collectionKey(id), &col); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCollectionNotFound
		}
		return nil, err
	}
	return &col, nil
}

// ListCollections returns every collection, newest first.
func (r *Repository) ListCollections(ctx context.Context) ([]models.Collection, error) {
	keys, err := r.store.Keys(ctx, "collection:")
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	cols := make([]models.Collection, 0, len(keys))
	for _, key := range keys {
		var col models.Collection
		if err := r.load(ctx, key, &col); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		cols = append(cols, col)
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].Timestamp > cols[j].Timestamp })
	return cols, nil
}

// RecordSensorReading ingests one telemetry update. It updates the bin (with
// clamped fill, derived status, and threshold alerts), auto-registers a bin
// for unknown sensors, and resolves any pending_sensor collection inside the
// lookback window.
func (r *Repository) RecordSensorReading(ctx context.Context, reading sensors.Reading) (*models.Bin, error) {
	bin, err := r.FindBinBySensor(ctx, reading.SensorID)
	if errors.Is(err, ErrBinNotFound) {
		return r.autoRegister(ctx, reading)
	}
	if err != nil {
		return nil, err
	}

	fill := resolveFill(reading, bin.Calibration)

	unlock := r.lockEntity(bin.ID)
	defer unlock()

	update := BinUpdate{
		FillLevel:    &fill,
		Temperature:  &reading.TemperatureC,
		BatteryLevel: &reading.BatteryLevel,
		Latitude:     reading.Latitude,
		Longitude:    reading.Longitude,
	}
	bin, err = r.updateBinLocked(ctx, bin.ID, update)
	if err != nil {
		return nil, err
	}

	r.appendHistory(ctx, bin.ID, models.HistorySensorReading,
		fmt.Sprintf("sensor %s reported %.1f%%", reading.SensorID, fill), fill)

	if err := r.resolvePending(ctx, bin, fill); err != nil {
		// Resolution failure must not lose the telemetry update itself.
		log.Printf("[REPO] Failed to resolve pending collection for %s: %v", bin.ID, err)
	}
	return bin, nil
}

func resolveFill(reading sensors.Reading, cal models.Calibration) float64 {
	if reading.FillLevel != nil {
		return models.ClampFill(*reading.FillLevel)
	}
	if reading.DistanceCm != nil {
		return models.FillFromDistance(*reading.DistanceCm, cal)
	}
	return 0
}

// autoRegister creates a bin for a sensor the fleet has never seen.
func (r *Repository) autoRegister(ctx context.Context, reading sensors.Reading) (*models.Bin, error) {
	fill := resolveFill(reading, models.DefaultCalibration)
	input := CreateBinInput{
		FillLevel:   fill,
		SensorID:    reading.SensorID,
		Temperature: reading.TemperatureC,
	}
	if reading.Latitude != nil {
		input.Latitude = *reading.Latitude
	}
	if reading.Longitude != nil {
		input.Longitude = *reading.Longitude
	}
	bin, err := r.CreateBin(ctx, input)
	if err != nil {
		return nil, err
	}
	log.Printf("[REPO] Auto-registered bin %s for unknown sensor %s", bin.ID, reading.SensorID)
	return bin, nil
}

// resolvePending finalizes the indexed pending_sensor collection for a bin,
// if the new reading arrived within the lookback window.
func (r *Repository) resolvePending(ctx context.Context, bin *models.Bin, newReading float64) error {
	colIDRaw, err := r.store.Get(ctx, pendingIdxKey(bin.ID))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	col, err := r.GetCollection(ctx, string(colIDRaw))
	if err != nil {
		if errors.Is(err, ErrCollectionNotFound) {
			return r.store.Delete(ctx, pendingIdxKey(bin.ID))
		}
		return err
	}
	if col.IsTerminal() {
		return r.store.Delete(ctx, pendingIdxKey(bin.ID))
	}
	if col.Age(r.now()) > r.cfg.SensorLookback {
		// Too old for this reading to count as confirmation; the timeout
		// sweep will deal with it.
		return nil
	}

	collected := col.FillBefore - newReading
	if collected < 0 {
		collected = 0
	}
	if collected > 100 {
		collected = 100
	}
	col.FillAfter = &newReading
	col.CollectedPercent = &collected

	if newReading <= r.cfg.EmptyThreshold {
		col.Verification = models.VerificationSensorVerified
		r.inc(metrics.PredictionsAccurate)
		if collected >= 50 {
			r.inc(metrics.OptimizationsSuccessful)
		}
	} else {
		// Driver claimed a collection the sensor does not see. Flag it for
		// audit; the bin keeps the sensor's fill value.
		col.Verification = models.VerificationSensorRejected
		r.raiseAlertInternal(ctx, models.AlertCollectionRejected, col.ID, models.PriorityHigh,
			fmt.Sprintf("Collection %s on bin %s rejected: sensor reads %.1f%% after claimed pickup",
				col.ID, bin.ID, newReading))
	}

	if err := r.save(ctx, collectionKey(col.ID), col); err != nil {
		return err
	}
	if err := r.store.Delete(ctx, pendingIdxKey(bin.ID)); err != nil {
		return err
	}
	r.emit(EventCollectionResolved, col.ID)
	return nil
}

// ExpirePendingCollections is the timeout policy for collections whose sensor
// never reported back: after PendingTimeout they fall back to driver trust
// and are finalized exactly like the no-sensor path. A sensor_silent alert
// keeps the dead sensor link visible for audit.
func (r *Repository) ExpirePendingCollections(ctx context.Context) (int, error) {
	cols, err := r.ListCollections(ctx)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range cols {
		col := &cols[i]
		if col.Verification != models.VerificationPendingSensor {
			continue
		}
		if col.Age(r.now()) < r.cfg.PendingTimeout {
			continue
		}

		unlock := r.lockEntity(col.BinID)

		zero := 0.0
		collected := col.FillBefore
		col.FillAfter = &zero
		col.CollectedPercent = &collected
		col.Verification = models.VerificationNoSensor
		if err := r.save(ctx, collectionKey(col.ID), col); err != nil {
			unlock()
			return expired, err
		}
		if _, err := r.updateBinLocked(ctx, col.BinID, BinUpdate{FillLevel: &zero}); err != nil && !errors.Is(err, ErrBinNotFound) {
			unlock()
			return expired, err
		}
		if err := r.store.Delete(ctx, pendingIdxKey(col.BinID)); err != nil {
			log.Printf("[REPO] Failed to drop pending index %s: %v", col.BinID, err)
		}
		unlock()

		r.raiseAlertInternal(ctx, models.AlertSensorSilent, col.BinID, models.PriorityLow,
			fmt.Sprintf("Bin %s sensor silent since collection %s; fell back to driver report", col.BinID, col.ID))
		r.emit(EventCollectionResolved, col.ID)
		expired++
	}
	if expired > 0 {
		log.Printf("[REPO] Expired %d pending collection(s) past the sensor timeout", expired)
	}
	return expired, nil
}
