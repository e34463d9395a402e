package insights

import (
	"context"
	"fmt"
	"log"
	"time"

	"binsync-backend/internal/metrics"
	"binsync-backend/internal/models"
	"binsync-backend/internal/pipeline"
	"binsync-backend/internal/repository"
)

// Destination names used by the default pipelines.
const (
	DestBroadcaster = "broadcaster"
	DestAlerts      = "alerts"
	DestLog         = "log"
)

// Intervals for the default pipeline set.
type Intervals struct {
	Bins        time.Duration
	Collections time.Duration
	Sensors     time.Duration
	Performance time.Duration
}

// DefaultPipelines builds the fixed pipeline set. Configuration happens once
// per process lifetime; pipelines are never persisted.
func DefaultPipelines(repo *repository.Repository, agg *metrics.Aggregator, batteryLow float64, iv Intervals) []pipeline.Pipeline {
	now := time.Now
	return []pipeline.Pipeline{
		{
			Name:   models.CategoryBins,
			Source: BinsSource(repo),
			Stages: []pipeline.Stage{
				{Name: "overflow-risk", Run: OverflowRiskStage(now)},
				{Name: "recommendations", Run: RecommendationStage(agg)},
			},
			Destinations: []string{DestBroadcaster, DestAlerts, DestLog},
			Interval:     iv.Bins,
		},
		{
			Name:   models.CategoryCollections,
			Source: CollectionsSource(repo),
			Stages: []pipeline.Stage{
				{Name: "verification-summary", Run: VerificationSummaryStage(now)},
			},
			Destinations: []string{DestBroadcaster, DestLog},
			Interval:     iv.Collections,
		},
		{
			Name:   models.CategorySensors,
			Source: BinsSource(repo),
			Stages: []pipeline.Stage{
				{Name: "sensor-health", Run: SensorHealthStage(batteryLow, now)},
			},
			Destinations: []string{DestBroadcaster, DestLog},
			Interval:     iv.Sensors,
		},
		{
			Name:   models.CategoryPerformance,
			Source: MetricsSource(agg),
			Stages: []pipeline.Stage{
				{Name: "performance-summary", Run: PerformanceStage()},
			},
			Destinations: []string{DestBroadcaster},
			Interval:     iv.Performance,
		},
	}
}

// AlertSink raises overflow_risk alerts for urgent recommendations. Alert
// dedup in the repository keeps repeat ticks from flooding.
type AlertSink struct {
	repo *repository.Repository
}

func NewAlertSink(repo *repository.Repository) *AlertSink {
	return &AlertSink{repo: repo}
}

func (s *AlertSink) Deliver(ctx context.Context, _ string, data interface{}) error {
	result, ok := data.(models.EnrichedResult)
	if !ok {
		return nil
	}
	for _, rec := range result.Recommendations {
		if rec.Priority != models.PriorityHigh {
			continue
		}
		if _, err := s.repo.RaiseAlert(ctx, models.AlertOverflowRisk, rec.BinID, models.PriorityHigh,
			fmt.Sprintf("Bin %s likely to overflow: %s", rec.BinID, rec.Reason)); err != nil {
			return err
		}
	}
	return nil
}

var _ pipeline.Destination = (*AlertSink)(nil)

// LogSink is a debugging destination that records each delivery.
func LogSink() pipeline.Destination {
	return pipeline.DestinationFunc(func(_ context.Context, name string, data interface{}) error {
		if result, ok := data.(models.EnrichedResult); ok {
			log.Printf("[PIPELINE] %s: delivered %s insight (%d recommendation(s))",
				name, result.Category, len(result.Recommendations))
			return nil
		}
		log.Printf("[PIPELINE] %s: delivered %T", name, data)
		return nil
	})
}
