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

// ErrAlertNotFound is returned when an alert ID resolves to nothing.
var ErrAlertNotFound = errors.New("alert not found")

func dedupKey(alertType, relatedID string) string {
	return alertType + "|" + relatedID
}

// RaiseAlert creates an alert, or refreshes the existing active one when the
// same (type, relatedId) pair fired within the dedup window.
func (r *Repository) RaiseAlert(ctx context.Context, alertType, relatedID, priority, message string) (*models.Alert, error) {
	return r.raiseAlert(ctx, alertType, relatedID, priority, message)
}

// raiseAlertInternal is the best-effort variant used inside other mutations:
// an alert write failure never fails the mutation that triggered it.
func (r *Repository) raiseAlertInternal(ctx context.Context, alertType, relatedID, priority, message string) {
	if _, err := r.raiseAlert(ctx, alertType, relatedID, priority, message); err != nil {
		log.Printf("[REPO] Failed to raise %s alert for %s: %v", alertType, relatedID, err)
	}
}

func (r *Repository) raiseAlert(ctx context.Context, alertType, relatedID, priority, message string) (*models.Alert, error) {
	key := dedupKey(alertType, relatedID)

	if cached, ok := r.dedup.Get(key); ok {
		existing, err := r.GetAlert(ctx, cached.(string))
		if err == nil && existing.Status == models.AlertActive {
			existing.Timestamp = r.timestamp()
			existing.Message = message
			if err := r.save(ctx, alertKey(existing.ID), existing); err != nil {
				return nil, err
			}
			r.dedup.SetDefault(key, existing.ID)
			return existing, nil
		}
		// Stale cache entry (dismissed or missing alert): fall through and
		// create a fresh one.
	}

	alert := &models.Alert{
		ID:        NewID("ALT"),
		Type:      alertType,
		RelatedID: relatedID,
		Priority:  priority,
		Message:   message,
		Status:    models.AlertActive,
		Timestamp: r.timestamp(),
	}
	if err := r.save(ctx, alertKey(alert.ID), alert); err != nil {
		return nil, err
	}
	r.dedup.SetDefault(key, alert.ID)
	r.emit(EventAlertRaised, alert.ID)
	return alert, nil
}

// GetAlert loads one alert.
func (r *Repository) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	var alert models.Alert
	if err := r.load(ctx, alertKey(id), &alert); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	return &alert, nil
}

// DismissAlert terminates an alert. There is no auto-expiry; dismissal is the
// only way out of active.
func (r *Repository) DismissAlert(ctx context.Context, id string) error {
	alert, err := r.GetAlert(ctx, id)
	if err != nil {
		return err
	}
	if alert.Status == models.AlertDismissed {
		return nil
	}
	alert.Status = models.AlertDismissed
	if err := r.save(ctx, alertKey(alert.ID), alert); err != nil {
		return err
	}
	r.dedup.Delete(dedupKey(alert.Type, alert.RelatedID))
	return nil
}

// ActiveAlerts returns all active alerts, newest first.
func (r *Repository) ActiveAlerts(ctx context.Context) ([]models.Alert, error) {
	keys, err := r.store.Keys(ctx, "alert:")
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	alerts := make([]models.Alert, 0, len(keys))
	for _, key := range keys {
		var alert models.Alert
		if err := r.load(ctx, key, &alert); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if alert.Status == models.AlertActive {
			alerts = append(alerts, alert)
		}
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].Timestamp > alerts[j].Timestamp })
	return alerts, nil
}
