// Package broadcaster fans alerts, insight snapshots, and recommendation
// lists out to registered subscribers. Snapshots are last-write-wins per
// category; no insight history is kept here.
package broadcaster

import (
	"context"
	"log"
	"sync"
	"time"

	"binsync-backend/internal/models"
)

// Event types delivered to subscribers.
const (
	EventInsights        = "insights"
	EventRecommendations = "recommendations"
	EventAlert           = "alert"
)

// Event is one notification pushed to subscribers.
type Event struct {
	Type      string      `json:"type"`
	Category  string      `json:"category,omitempty"`
	Payload   interface{} `json:"payload"`
	Timestamp string      `json:"timestamp"` // ISO-8601
}

// Subscriber receives events on a buffered channel. A subscriber that stops
// draining gets dropped rather than letting its buffer stall everyone else.
type Subscriber struct {
	Name string
	C    chan Event
}

const subscriberBuffer = 32

// Broadcaster maintains the latest snapshot and recommendation list per
// category and pushes change events to explicitly registered subscribers.
type Broadcaster struct {
	// Snapshot state
	mu       sync.RWMutex
	insights map[string]models.InsightSnapshot
	recs     map[string][]models.Recommendation
	subs     map[*Subscriber]bool

	// Hub channels
	register   chan *Subscriber
	unregister chan *Subscriber
	events     chan Event

	now func() time.Time
}

func New() *Broadcaster {
	return &Broadcaster{
		insights:   make(map[string]models.InsightSnapshot),
		recs:       make(map[string][]models.Recommendation),
		subs:       make(map[*Subscriber]bool),
		register:   make(chan *Subscriber),
		unregister: make(chan *Subscriber),
		events:     make(chan Event, 256),
		now:        time.Now,
	}
}

// Run starts the fan-out loop. Call in its own goroutine; returns when ctx is
// cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			for sub := range b.subs {
				close(sub.C)
				delete(b.subs, sub)
			}
			b.mu.Unlock()
			return

		case sub := <-b.register:
			b.mu.Lock()
			b.subs[sub] = true
			b.mu.Unlock()
			log.Printf("[BROADCASTER] Subscriber %s registered (%d total)", sub.Name, b.subscriberCount())

		case sub := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.subs[sub]; ok {
				delete(b.subs, sub)
				close(sub.C)
			}
			b.mu.Unlock()

		case event := <-b.events:
			b.mu.Lock()
			for sub := range b.subs {
				select {
				case sub.C <- event:
				default:
					// Buffer full: the subscriber stopped draining, drop it.
					log.Printf("[BROADCASTER] Subscriber %s not draining, dropping", sub.Name)
					close(sub.C)
					delete(b.subs, sub)
				}
			}
			b.mu.Unlock()
		}
	}
}

// Subscribe registers a named consumer and returns its event channel holder.
func (b *Broadcaster) Subscribe(name string) *Subscriber {
	sub := &Subscriber{Name: name, C: make(chan Event, subscriberBuffer)}
	b.register <- sub
	return sub
}

// Unsubscribe removes a consumer and closes its channel.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	b.unregister <- sub
}

func (b *Broadcaster) subscriberCount() int {
	return len(b.subs)
}

func (b *Broadcaster) publish(event Event) {
	select {
	case b.events <- event:
	default:
		// The hub loop is not running or badly behind; snapshots are already
		// stored, so dropping the notification beats blocking a pipeline.
		log.Printf("[BROADCASTER] Event queue full, dropping %s/%s notification", event.Type, event.Category)
	}
}

// BroadcastInsights overwrites the category's snapshot and notifies
// subscribers.
func (b *Broadcaster) BroadcastInsights(category string, data interface{}) {
	snapshot := models.InsightSnapshot{
		Category:  category,
		Data:      data,
		UpdatedAt: b.now().UTC().Format(time.RFC3339),
	}
	b.mu.Lock()
	b.insights[category] = snapshot
	b.mu.Unlock()
	b.publish(Event{Type: EventInsights, Category: category, Payload: snapshot, Timestamp: snapshot.UpdatedAt})
}

// BroadcastRecommendations replaces the category's list wholesale — no merge.
func (b *Broadcaster) BroadcastRecommendations(category string, list []models.Recommendation) {
	cloned := make([]models.Recommendation, len(list))
	copy(cloned, list)
	b.mu.Lock()
	b.recs[category] = cloned
	b.mu.Unlock()
	b.publish(Event{
		Type:      EventRecommendations,
		Category:  category,
		Payload:   cloned,
		Timestamp: b.now().UTC().Format(time.RFC3339),
	})
}

// BroadcastAlert pushes an alert notification. Alert state itself lives in
// the repository; this is only the fan-out.
func (b *Broadcaster) BroadcastAlert(alert models.Alert) {
	b.publish(Event{Type: EventAlert, Payload: alert, Timestamp: b.now().UTC().Format(time.RFC3339)})
}

// Deliver makes the broadcaster a pipeline destination: an EnrichedResult
// updates both the insight snapshot and the recommendation list for its
// category; anything else is stored under the pipeline's name.
func (b *Broadcaster) Deliver(_ context.Context, pipeline string, data interface{}) error {
	switch v := data.(type) {
	case models.EnrichedResult:
		b.BroadcastInsights(v.Category, v.Insights)
		if v.Recommendations != nil {
			b.BroadcastRecommendations(v.Category, v.Recommendations)
		}
	case *models.EnrichedResult:
		b.BroadcastInsights(v.Category, v.Insights)
		if v.Recommendations != nil {
			b.BroadcastRecommendations(v.Category, v.Recommendations)
		}
	default:
		b.BroadcastInsights(pipeline, data)
	}
	return nil
}

// Insights returns the latest snapshot for a category, if any.
func (b *Broadcaster) Insights(category string) (models.InsightSnapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snap, ok := b.insights[category]
	return snap, ok
}

// Recommendations returns the latest list for a category.
func (b *Broadcaster) Recommendations(category string) []models.Recommendation {
	b.mu.RLock()
	defer b.mu.RUnlock()
	list := b.recs[category]
	out := make([]models.Recommendation, len(list))
	copy(out, list)
	return out
}
