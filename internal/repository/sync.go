package repository

import (
	"context"
	"log"

	"binsync-backend/internal/sensors"
)

// SyncSensors polls the provider for a live reading of every sensor-linked
// bin and ingests whatever it returns. A nil provider means the telemetry
// capability is absent and the sync is a no-op. Per-device failures are
// logged and skipped; one dead sensor must not abort the fleet sweep.
func (r *Repository) SyncSensors(ctx context.Context, provider sensors.Provider) (int, error) {
	if provider == nil {
		return 0, nil
	}

	bins, err := r.ListBins(ctx)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, bin := range bins {
		if !bin.HasSensor() {
			continue
		}
		reading, err := provider.LiveReading(ctx, bin.SensorID)
		if err != nil {
			log.Printf("[REPO] Live reading for sensor %s failed: %v", bin.SensorID, err)
			continue
		}
		if reading == nil {
			continue
		}
		if _, err := r.RecordSensorReading(ctx, *reading); err != nil {
			log.Printf("[REPO] Failed to ingest reading from sensor %s: %v", bin.SensorID, err)
			continue
		}
		synced++
	}
	return synced, nil
}
