// Package maintenance runs the periodic housekeeping jobs: derived metric
// ratios and the stale pending_sensor sweep.
package maintenance

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"binsync-backend/internal/metrics"
	"binsync-backend/internal/repository"
)

// Runner owns the cron scheduler. Jobs run on the scheduler's goroutine pool
// and must not assume exclusive access to anything.
type Runner struct {
	cron *cron.Cron
	repo *repository.Repository
	agg  *metrics.Aggregator
}

func NewRunner(repo *repository.Repository, agg *metrics.Aggregator) *Runner {
	return &Runner{cron: cron.New(), repo: repo, agg: agg}
}

// Start registers the jobs and launches the scheduler. Specs use the standard
// 5-field cron syntax or @every descriptors.
func (r *Runner) Start(ratioSpec, sweepSpec string) error {
	if _, err := r.cron.AddFunc(ratioSpec, r.recomputeRatios); err != nil {
		return fmt.Errorf("failed to schedule ratio recompute: %w", err)
	}
	if _, err := r.cron.AddFunc(sweepSpec, r.sweepPending); err != nil {
		return fmt.Errorf("failed to schedule pending sweep: %w", err)
	}
	r.cron.Start()
	log.Printf("🧹 Maintenance jobs scheduled (ratios %s, pending sweep %s)", ratioSpec, sweepSpec)
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	log.Println("🧹 Maintenance jobs stopped")
}

func (r *Runner) recomputeRatios() {
	r.agg.RecomputeDerived()
}

func (r *Runner) sweepPending() {
	expired, err := r.repo.ExpirePendingCollections(context.Background())
	if err != nil {
		log.Printf("[MAINTENANCE] Pending sweep failed: %v", err)
		return
	}
	if expired > 0 {
		log.Printf("[MAINTENANCE] Expired %d stale pending collection(s)", expired)
	}
}
