package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"binsync-backend/internal/broadcaster"
	"binsync-backend/internal/config"
	"binsync-backend/internal/insights"
	"binsync-backend/internal/maintenance"
	"binsync-backend/internal/metrics"
	"binsync-backend/internal/models"
	"binsync-backend/internal/pipeline"
	"binsync-backend/internal/repository"
	"binsync-backend/internal/store"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	log.Println("═══════════════════════════════════════════════════════════════════")
	log.Println("🚀 BINSYNC STATE ENGINE STARTING")
	log.Println("═══════════════════════════════════════════════════════════════════")

	log.Println("📂 Loading configuration...")
	cfg := config.Load()
	log.Printf("✅ Configuration loaded (store backend: %s)", cfg.StoreBackend)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Println("❌ FATAL ERROR: State store initialization failed")
		log.Printf("   Error: %v", err)
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Fatal(err)
	}
	defer st.Close()

	agg := metrics.New(prometheus.DefaultRegisterer)
	bcast := broadcaster.New()
	go bcast.Run(ctx)
	log.Println("✅ Broadcaster started")

	orch := pipeline.NewOrchestrator(agg)

	// The listener closes over repo, which is assigned below; events only fire
	// on mutations, well after construction.
	var repo *repository.Repository
	listener := func(event repository.Event) {
		switch event.Kind {
		case repository.EventAlertRaised:
			if alert, err := repo.GetAlert(ctx, event.EntityID); err == nil {
				bcast.BroadcastAlert(*alert)
			}
		case repository.EventBinCreated, repository.EventBinUpdated, repository.EventBinDeleted:
			_ = orch.Trigger(models.CategoryBins)
		case repository.EventCollectionCreated, repository.EventCollectionResolved:
			_ = orch.Trigger(models.CategoryCollections)
		}
	}

	repo = repository.New(st, repository.Config{
		EmptyThreshold:  cfg.EmptyThreshold,
		SensorLookback:  cfg.SensorLookback,
		PendingTimeout:  cfg.PendingTimeout,
		BatteryLowLevel: cfg.BatteryLowLevel,
	},
		repository.WithMetrics(agg),
		repository.WithListener(listener),
	)
	log.Println("✅ Repository ready")

	for _, p := range insights.DefaultPipelines(repo, agg, cfg.BatteryLowLevel, insights.Intervals{
		Bins:        cfg.BinsInterval,
		Collections: cfg.CollectionsInterval,
		Sensors:     cfg.SensorsInterval,
		Performance: cfg.PerformanceInterval,
	}) {
		if err := orch.Register(p); err != nil {
			log.Fatalf("❌ FATAL ERROR: Pipeline registration failed: %v", err)
		}
	}
	orch.RegisterDestination(insights.DestBroadcaster, bcast)
	orch.RegisterDestination(insights.DestAlerts, insights.NewAlertSink(repo))
	orch.RegisterDestination(insights.DestLog, insights.LogSink())
	orch.Start(ctx)

	jobs := maintenance.NewRunner(repo, agg)
	if err := jobs.Start(cfg.RatioRecomputeSpec, cfg.PendingSweepSpec); err != nil {
		log.Fatalf("❌ FATAL ERROR: Maintenance scheduling failed: %v", err)
	}

	log.Println("═══════════════════════════════════════════════════════════════════")
	log.Println("✅ ALL INITIALIZATION COMPLETE")
	log.Println("🔌 Engine running, waiting for shutdown signal")
	log.Println("═══════════════════════════════════════════════════════════════════")

	<-ctx.Done()

	log.Println("🛑 Shutdown signal received, stopping...")
	jobs.Stop()
	orch.Stop()
	log.Println("👋 Engine stopped cleanly")
}

// openStore builds the configured backend wrapped in the in-memory fallback.
// The memory backend needs no fallback; it cannot fail.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case "postgres":
		pg, err := store.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return store.NewFallback(pg), nil
	case "redis":
		rd, err := store.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		return store.NewFallback(rd), nil
	default:
		log.Println("⚠️  Using in-memory state store (data will not survive restart)")
		return store.NewMemory(), nil
	}
}
