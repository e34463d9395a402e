// Package repository owns all canonical bin/collection/alert state. It is the
// only writer against the state store; pipelines and broadcasters read through
// it and never mutate records directly.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"binsync-backend/internal/metrics"
	"binsync-backend/internal/store"
)

// Alert de-duplication window: a repeat (type, relatedId) signal inside this
// window updates the existing alert instead of creating a second one.
const alertDedupWindow = 5 * time.Minute

const lockShards = 32

// Config tunes the verification protocol. Zero values are replaced with the
// defaults below.
type Config struct {
	// EmptyThreshold is the sensor fill reading at or below which a pending
	// collection is confirmed as a real emptying.
	EmptyThreshold float64
	// SensorLookback is how far back a sensor reading may reach to resolve a
	// pending_sensor collection.
	SensorLookback time.Duration
	// PendingTimeout is the age after which a collection stuck in
	// pending_sensor falls back to driver trust.
	PendingTimeout time.Duration
	// BatteryLowLevel triggers a battery_low alert.
	BatteryLowLevel float64
}

func (c Config) withDefaults() Config {
	if c.EmptyThreshold == 0 {
		c.EmptyThreshold = 15
	}
	if c.SensorLookback == 0 {
		c.SensorLookback = 2 * time.Hour
	}
	if c.PendingTimeout == 0 {
		c.PendingTimeout = 24 * time.Hour
	}
	if c.BatteryLowLevel == 0 {
		c.BatteryLowLevel = 20
	}
	return c
}

// Event is a domain notification emitted after a successful mutation.
type Event struct {
	Kind     string
	EntityID string
}

// Event kinds.
const (
	EventBinCreated         = "bin.created"
	EventBinUpdated         = "bin.updated"
	EventBinDeleted         = "bin.deleted"
	EventCollectionCreated  = "collection.created"
	EventCollectionResolved = "collection.resolved"
	EventAlertRaised        = "alert.raised"
)

// Listener receives domain events. It must not block; slow consumers should
// buffer on their side.
type Listener func(Event)

// Repository coordinates reads and writes against the state store.
type Repository struct {
	store    store.Store
	cfg      Config
	agg      *metrics.Aggregator
	now      func() time.Time
	listener Listener
	dedup    *gocache.Cache
	locks    [lockShards]sync.Mutex
}

// Option mutates a Repository during construction.
type Option func(*Repository)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithListener registers the domain event listener.
func WithListener(l Listener) Option {
	return func(r *Repository) { r.listener = l }
}

// WithMetrics attaches the aggregator that receives prediction counters.
func WithMetrics(agg *metrics.Aggregator) Option {
	return func(r *Repository) { r.agg = agg }
}

func New(s store.Store, cfg Config, opts ...Option) *Repository {
	r := &Repository{
		store: s,
		cfg:   cfg.withDefaults(),
		now:   time.Now,
		dedup: gocache.New(alertDedupWindow, 10*time.Minute),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) emit(kind, id string) {
	if r.listener != nil {
		r.listener(Event{Kind: kind, EntityID: id})
	}
}

func (r *Repository) timestamp() string {
	return r.now().UTC().Format(time.RFC3339)
}

// lockEntity serializes mutations per entity ID. Reads stay lock-free; the
// store's last-write-wins semantics cover them.
func (r *Repository) lockEntity(id string) func() {
	h := fnv.New32a()
	h.Write([]byte(id))
	mu := &r.locks[h.Sum32()%lockShards]
	mu.Lock()
	return mu.Unlock
}

func (r *Repository) save(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := r.store.Set(ctx, key, data); err != nil {
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	return nil
}

func (r *Repository) load(ctx context.Context, key string, v interface{}) error {
	data, err := r.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

func (r *Repository) inc(name string) {
	if r.agg != nil {
		r.agg.Inc(name, 1)
	}
}

func binKey(id string) string        { return "bin:" + id }
func collectionKey(id string) string { return "collection:" + id }
func alertKey(id string) string      { return "alert:" + id }
func sensorIdxKey(id string) string  { return "sensoridx:" + id }
func pendingIdxKey(id string) string { return "pendingidx:" + id }
func historyKey(binID, id string) string {
	return "history:" + binID + ":" + id
}
