package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"binsync-backend/internal/models"
	"binsync-backend/internal/store"
)

// ErrBinNotFound is returned when a bin ID resolves to nothing.
var ErrBinNotFound = errors.New("bin not found")

// CreateBinInput is what an admin (or sensor auto-registration) supplies.
type CreateBinInput struct {
	FillLevel   float64
	Latitude    float64
	Longitude   float64
	SensorID    string
	Temperature float64
	Calibration *models.Calibration
}

// BinUpdate carries partial updates; nil fields are left untouched.
type BinUpdate struct {
	FillLevel    *float64
	Temperature  *float64
	BatteryLevel *float64
	Latitude     *float64
	Longitude    *float64
	SensorID     *string
	Calibration  *models.Calibration
}

// CreateBin registers a new bin, derives its status, and logs the creation.
func (r *Repository) CreateBin(ctx context.Context, input CreateBinInput) (*models.Bin, error) {
	now := r.timestamp()
	cal := models.DefaultCalibration
	if input.Calibration != nil {
		cal = *input.Calibration
	}
	bin := &models.Bin{
		ID:           NewID("BIN"),
		FillLevel:    models.ClampFill(input.FillLevel),
		Latitude:     input.Latitude,
		Longitude:    input.Longitude,
		SensorID:     input.SensorID,
		Temperature:  input.Temperature,
		BatteryLevel: 100,
		Calibration:  cal,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	bin.Status = models.DeriveStatus(bin.FillLevel, bin.Temperature)

	unlock := r.lockEntity(bin.ID)
	defer unlock()

	if err := r.save(ctx, binKey(bin.ID), bin); err != nil {
		return nil, err
	}
	if bin.SensorID != "" {
		if err := r.store.Set(ctx, sensorIdxKey(bin.SensorID), []byte(bin.ID)); err != nil {
			return nil, fmt.Errorf("failed to index sensor %s: %w", bin.SensorID, err)
		}
	}
	r.appendHistory(ctx, bin.ID, models.HistoryRegistered, "bin registered", bin.FillLevel)
	r.checkThresholdAlerts(ctx, bin, "")
	r.emit(EventBinCreated, bin.ID)
	return bin, nil
}

// GetBin loads one bin.
func (r *Repository) GetBin(ctx context.Context, id string) (*models.Bin, error) {
	var bin models.Bin
	if err := r.load(ctx, binKey(id), &bin); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrBinNotFound
		}
		return nil, err
	}
	return &bin, nil
}

// ListBins returns every bin, ordered by ID.
func (r *Repository) ListBins(ctx context.Context) ([]models.Bin, error) {
	keys, err := r.store.Keys(ctx, "bin:")
	if err != nil {
		return nil, fmt.Errorf("failed to list bins: %w", err)
	}
	bins := make([]models.Bin, 0, len(keys))
	for _, key := range keys {
		var bin models.Bin
		if err := r.load(ctx, key, &bin); err != nil {
			// A concurrently deleted bin is not worth failing the snapshot for.
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		bins = append(bins, bin)
	}
	sort.Slice(bins, func(i, j int) bool { return bins[i].ID < bins[j].ID })
	return bins, nil
}

// FindBinBySensor resolves a sensor ID to its bin, if any.
func (r *Repository) FindBinBySensor(ctx context.Context, sensorID string) (*models.Bin, error) {
	binID, err := r.store.Get(ctx, sensorIdxKey(sensorID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrBinNotFound
		}
		return nil, err
	}
	return r.GetBin(ctx, string(binID))
}

// UpdateBin applies a partial update, re-derives status, and raises threshold
// alerts. Fill writes are clamped and rounded before storage.
func (r *Repository) UpdateBin(ctx context.Context, id string, update BinUpdate) (*models.Bin, error) {
	unlock := r.lockEntity(id)
	defer unlock()
	return r.updateBinLocked(ctx, id, update)
}

func (r *Repository) updateBinLocked(ctx context.Context, id string, update BinUpdate) (*models.Bin, error) {
	bin, err := r.GetBin(ctx, id)
	if err != nil {
		return nil, err
	}

	prevStatus := bin.Status
	if update.FillLevel != nil {
		bin.FillLevel = models.ClampFill(*update.FillLevel)
	}
	if update.Temperature != nil {
		bin.Temperature = *update.Temperature
	}
	if update.BatteryLevel != nil {
		bin.BatteryLevel = models.ClampFill(*update.BatteryLevel)
	}
	if update.Latitude != nil {
		bin.Latitude = *update.Latitude
	}
	if update.Longitude != nil {
		bin.Longitude = *update.Longitude
	}
	if update.SensorID != nil && *update.SensorID != bin.SensorID {
		if bin.SensorID != "" {
			if err := r.store.Delete(ctx, sensorIdxKey(bin.SensorID)); err != nil {
				log.Printf("[REPO] Failed to drop sensor index %s: %v", bin.SensorID, err)
			}
		}
		bin.SensorID = *update.SensorID
		if bin.SensorID != "" {
			if err := r.store.Set(ctx, sensorIdxKey(bin.SensorID), []byte(bin.ID)); err != nil {
				return nil, fmt.Errorf("failed to index sensor %s: %w", bin.SensorID, err)
			}
		}
	}
	if update.Calibration != nil {
		bin.Calibration = *update.Calibration
	}

	bin.Status = models.DeriveStatus(bin.FillLevel, bin.Temperature)
	bin.UpdatedAt = r.timestamp()

	if err := r.save(ctx, binKey(bin.ID), bin); err != nil {
		return nil, err
	}
	if bin.Status != prevStatus {
		r.appendHistory(ctx, bin.ID, models.HistoryStatusChange,
			fmt.Sprintf("status %s -> %s", prevStatus, bin.Status), bin.FillLevel)
	}
	r.checkThresholdAlerts(ctx, bin, prevStatus)
	r.emit(EventBinUpdated, bin.ID)
	return bin, nil
}

// DeleteBin removes a bin and cascades its history, collections, and indexes.
func (r *Repository) DeleteBin(ctx context.Context, id string) error {
	unlock := r.lockEntity(id)
	defer unlock()

	bin, err := r.GetBin(ctx, id)
	if err != nil {
		return err
	}

	historyKeys, err := r.store.Keys(ctx, "history:"+id+":")
	if err != nil {
		return fmt.Errorf("failed to list history for %s: %w", id, err)
	}
	for _, key := range historyKeys {
		if err := r.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to cascade history for %s: %w", id, err)
		}
	}

	cols, err := r.ListCollections(ctx)
	if err != nil {
		return err
	}
	for _, col := range cols {
		if col.BinID == id {
			if err := r.store.Delete(ctx, collectionKey(col.ID)); err != nil {
				return fmt.Errorf("failed to cascade collection %s: %w", col.ID, err)
			}
		}
	}

	if bin.SensorID != "" {
		if err := r.store.Delete(ctx, sensorIdxKey(bin.SensorID)); err != nil {
			log.Printf("[REPO] Failed to drop sensor index %s: %v", bin.SensorID, err)
		}
	}
	if err := r.store.Delete(ctx, pendingIdxKey(id)); err != nil {
		log.Printf("[REPO] Failed to drop pending index %s: %v", id, err)
	}
	if err := r.store.Delete(ctx, binKey(id)); err != nil {
		return fmt.Errorf("failed to delete bin %s: %w", id, err)
	}
	r.emit(EventBinDeleted, id)
	return nil
}

// checkThresholdAlerts raises alerts when a bin crosses into critical or
// fire-risk, or its battery runs low. Dedup keeps repeats from piling up.
func (r *Repository) checkThresholdAlerts(ctx context.Context, bin *models.Bin, prevStatus string) {
	crossed := bin.Status != prevStatus
	switch bin.Status {
	case models.StatusFireRisk:
		if crossed {
			r.raiseAlertInternal(ctx, models.AlertBinFireRisk, bin.ID, models.PriorityCritical,
				fmt.Sprintf("Bin %s temperature %.1f°C — possible fire", bin.ID, bin.Temperature))
		}
	case models.StatusCritical:
		if crossed {
			r.raiseAlertInternal(ctx, models.AlertBinCritical, bin.ID, models.PriorityHigh,
				fmt.Sprintf("Bin %s at %.1f%% fill", bin.ID, bin.FillLevel))
		}
	}
	if bin.HasSensor() && bin.BatteryLevel > 0 && bin.BatteryLevel <= r.cfg.BatteryLowLevel {
		r.raiseAlertInternal(ctx, models.AlertBatteryLow, bin.ID, models.PriorityMedium,
			fmt.Sprintf("Bin %s sensor battery at %.0f%%", bin.ID, bin.BatteryLevel))
	}
}
