package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"binsync-backend/internal/metrics"
)

// Orchestrator owns the pipelines and their timers. Construct it, register
// pipelines and destinations, then Start it; there is no ambient global
// instance.
type Orchestrator struct {
	mu           sync.RWMutex
	pipelines    map[string]*runner
	destinations map[string]Destination
	agg          *metrics.Aggregator

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

type runner struct {
	pipeline Pipeline
	// running guards against overlapping ticks of the same pipeline: a tick
	// that finds the previous one still in flight is skipped, not queued.
	running sync.Mutex
	trigger chan struct{}
}

func NewOrchestrator(agg *metrics.Aggregator) *Orchestrator {
	return &Orchestrator{
		pipelines:    make(map[string]*runner),
		destinations: make(map[string]Destination),
		agg:          agg,
	}
}

// Register adds a pipeline. Must be called before Start.
func (o *Orchestrator) Register(p Pipeline) error {
	if p.Name == "" {
		return fmt.Errorf("pipeline name is required")
	}
	if p.Source == nil {
		return fmt.Errorf("pipeline %s: source is required", p.Name)
	}
	if p.Interval <= 0 {
		return fmt.Errorf("pipeline %s: interval must be positive", p.Name)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.pipelines[p.Name]; exists {
		return fmt.Errorf("pipeline %s already registered", p.Name)
	}
	o.pipelines[p.Name] = &runner{pipeline: p, trigger: make(chan struct{}, 1)}
	return nil
}

// RegisterDestination wires a named consumer. A pipeline referencing a name
// that was never registered gets a logged skip, not an error: destinations
// are optional collaborators.
func (o *Orchestrator) RegisterDestination(name string, d Destination) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.destinations[name] = d
}

// Start launches one timer goroutine per registered pipeline.
func (o *Orchestrator) Start(ctx context.Context) {
	ctx, o.cancel = context.WithCancel(ctx)
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, r := range o.pipelines {
		o.wg.Add(1)
		go o.loop(ctx, r)
	}
	log.Printf("[PIPELINE] Orchestrator started with %d pipeline(s)", len(o.pipelines))
}

// Stop cancels all timers and waits for in-flight ticks to finish.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
	log.Println("[PIPELINE] Orchestrator stopped")
}

// Trigger schedules an immediate run of one pipeline, e.g. after a bulk
// resynchronization. Non-blocking: if a trigger is already queued the call
// collapses into it.
func (o *Orchestrator) Trigger(name string) error {
	o.mu.RLock()
	r, ok := o.pipelines[name]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown pipeline %s", name)
	}
	select {
	case r.trigger <- struct{}{}:
	default:
	}
	return nil
}

func (o *Orchestrator) loop(ctx context.Context, r *runner) {
	defer o.wg.Done()
	ticker := time.NewTicker(r.pipeline.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.runOnce(ctx, r)
		case <-r.trigger:
			o.runOnce(ctx, r)
		}
	}
}

// RunOnce executes a single tick of the named pipeline synchronously. Used by
// Trigger handling and by callers that want a run outside the schedule.
func (o *Orchestrator) RunOnce(ctx context.Context, name string) error {
	o.mu.RLock()
	r, ok := o.pipelines[name]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown pipeline %s", name)
	}
	o.runOnce(ctx, r)
	return nil
}

// runOnce is one tick: source → stages in declared order → fan-out. Nothing
// it does may escape as a panic or error into the scheduler.
func (o *Orchestrator) runOnce(ctx context.Context, r *runner) {
	if !r.running.TryLock() {
		log.Printf("[PIPELINE] %s: previous tick still running, skipping", r.pipeline.Name)
		o.agg.Inc(metrics.PipelineSkipped, 1)
		return
	}
	defer r.running.Unlock()

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[PIPELINE] %s: tick panicked: %v", r.pipeline.Name, rec)
			o.agg.Inc(metrics.PipelineErrors, 1)
		}
	}()

	start := time.Now()
	name := r.pipeline.Name

	data, err := r.pipeline.Source(ctx)
	if err != nil {
		log.Printf("[PIPELINE] %s: source failed: %v", name, err)
		o.agg.Inc(metrics.PipelineErrors, 1)
		return
	}

	for _, stage := range r.pipeline.Stages {
		data, err = stage.Run(ctx, data)
		if err != nil {
			// Abort this tick only: no partial delivery, no effect on the
			// next scheduled run.
			log.Printf("[PIPELINE] %s: stage %s failed: %v", name, stage.Name, err)
			o.agg.Inc(metrics.PipelineErrors, 1)
			return
		}
	}

	for _, destName := range r.pipeline.Destinations {
		o.deliver(ctx, name, destName, data)
	}

	o.agg.RecordLatency(time.Since(start))
	o.agg.Inc(metrics.PipelineProcessed, 1)
}

// deliver hands the tick output to one destination, swallowing its failures
// so one broken consumer cannot starve the others.
func (o *Orchestrator) deliver(ctx context.Context, pipeline, destName string, data interface{}) {
	o.mu.RLock()
	dest, ok := o.destinations[destName]
	o.mu.RUnlock()
	if !ok {
		log.Printf("[PIPELINE] %s: destination %s not registered, skipping", pipeline, destName)
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[PIPELINE] %s: destination %s panicked: %v", pipeline, destName, rec)
		}
	}()
	if err := dest.Deliver(ctx, pipeline, data); err != nil {
		log.Printf("[PIPELINE] %s: destination %s failed: %v", pipeline, destName, err)
	}
}
