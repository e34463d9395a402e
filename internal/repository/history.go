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

// appendHistory logs one event against a bin. History writes are best-effort:
// losing a log line is better than failing the mutation it describes.
func (r *Repository) appendHistory(ctx context.Context, binID, kind, detail string, fillLevel float64) {
	entry := models.HistoryEntry{
		ID:        NewID("HST"),
		BinID:     binID,
		Kind:      kind,
		Detail:    detail,
		FillLevel: fillLevel,
		Timestamp: r.timestamp(),
	}
	if err := r.save(ctx, historyKey(binID, entry.ID), entry); err != nil {
		log.Printf("[REPO] Failed to append history for %s: %v", binID, err)
	}
}

// History returns a bin's log, oldest first.
func (r *Repository) History(ctx context.Context, binID string) ([]models.HistoryEntry, error) {
	keys, err := r.store.Keys(ctx, "history:"+binID+":")
	if err != nil {
		return nil, fmt.Errorf("failed to list history for %s: %w", binID, err)
	}
	entries := make([]models.HistoryEntry, 0, len(keys))
	for _, key := range keys {
		var entry models.HistoryEntry
		if err := r.load(ctx, key, &entry); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp < entries[j].Timestamp })
	return entries, nil
}
