// Package insights holds the enrichment stages the pipelines thread domain
// snapshots through, and the default pipeline wiring. Stages are pure with
// respect to canonical state: they read repository snapshots and build new
// values, never mutating records in place.
package insights

import (
	"context"
	"fmt"
	"sort"
	"time"

	"binsync-backend/internal/metrics"
	"binsync-backend/internal/models"
	"binsync-backend/internal/repository"
)

// Overflow risk weights. Fill dominates; temperature and time since last
// collection nudge the score.
const (
	riskFillWeight = 0.7
	riskTempWeight = 0.15
	riskAgeWeight  = 0.15

	riskRecommendAt = 0.6
	riskUrgentAt    = 0.8
)

// BinsInsight summarizes the fleet for the bins category.
type BinsInsight struct {
	Total       int              `json:"total"`
	ByStatus    map[string]int   `json:"by_status"`
	AverageFill float64          `json:"average_fill"`
	Risks       []models.BinRisk `json:"risks"`
	GeneratedAt string           `json:"generated_at"`
}

// CollectionsInsight summarizes verification outcomes.
type CollectionsInsight struct {
	Total          int            `json:"total"`
	ByVerification map[string]int `json:"by_verification"`
	RejectionRate  float64        `json:"rejection_rate"`
	AvgCollected   float64        `json:"avg_collected"`
	GeneratedAt    string         `json:"generated_at"`
}

// SensorsInsight summarizes telemetry health.
type SensorsInsight struct {
	Linked      int     `json:"linked"`
	Unlinked    int     `json:"unlinked"`
	LowBattery  int     `json:"low_battery"`
	Silent      int     `json:"silent"`
	AvgBattery  float64 `json:"avg_battery"`
	GeneratedAt string  `json:"generated_at"`
}

// silentAfter marks a sensor-linked bin as silent when nothing has updated it
// for this long.
const silentAfter = 6 * time.Hour

// RiskScore computes a bin's overflow risk in [0,1].
func RiskScore(bin models.Bin, now time.Time) float64 {
	score := bin.FillLevel / 100 * riskFillWeight

	if bin.Temperature > models.FireRiskTempC {
		score += riskTempWeight
	} else if bin.Temperature > models.FireRiskTempC/2 {
		score += riskTempWeight / 2
	}

	if bin.LastCollection != "" {
		if t, err := time.Parse(time.RFC3339, bin.LastCollection); err == nil {
			days := now.Sub(t).Hours() / 24
			if days > 7 {
				score += riskAgeWeight
			} else if days > 3 {
				score += riskAgeWeight / 2
			}
		}
	} else {
		// Never collected: treat as aged.
		score += riskAgeWeight / 2
	}

	if score > 1 {
		score = 1
	}
	return score
}

// OverflowRiskStage turns a []models.Bin snapshot into a BinsInsight with
// per-bin risk scores, highest risk first.
func OverflowRiskStage(now func() time.Time) func(context.Context, interface{}) (interface{}, error) {
	return func(_ context.Context, data interface{}) (interface{}, error) {
		bins, ok := data.([]models.Bin)
		if !ok {
			return nil, fmt.Errorf("overflow-risk: expected []models.Bin, got %T", data)
		}

		insight := BinsInsight{
			Total:       len(bins),
			ByStatus:    make(map[string]int),
			Risks:       make([]models.BinRisk, 0, len(bins)),
			GeneratedAt: now().UTC().Format(time.RFC3339),
		}
		var fillSum float64
		for _, bin := range bins {
			insight.ByStatus[bin.Status]++
			fillSum += bin.FillLevel
			insight.Risks = append(insight.Risks, models.BinRisk{
				BinID:     bin.ID,
				FillLevel: bin.FillLevel,
				Status:    bin.Status,
				RiskScore: RiskScore(bin, now()),
			})
		}
		if len(bins) > 0 {
			insight.AverageFill = fillSum / float64(len(bins))
		}
		sort.Slice(insight.Risks, func(i, j int) bool {
			return insight.Risks[i].RiskScore > insight.Risks[j].RiskScore
		})
		return insight, nil
	}
}

// RecommendationStage wraps a BinsInsight into the final EnrichedResult,
// recommending collection for bins above the risk thresholds.
func RecommendationStage(agg *metrics.Aggregator) func(context.Context, interface{}) (interface{}, error) {
	return func(_ context.Context, data interface{}) (interface{}, error) {
		insight, ok := data.(BinsInsight)
		if !ok {
			return nil, fmt.Errorf("recommendations: expected BinsInsight, got %T", data)
		}

		var recs []models.Recommendation
		for _, risk := range insight.Risks {
			if risk.RiskScore < riskRecommendAt {
				continue
			}
			priority := models.PriorityMedium
			reason := fmt.Sprintf("fill %.1f%%, risk %.2f", risk.FillLevel, risk.RiskScore)
			if risk.RiskScore >= riskUrgentAt {
				priority = models.PriorityHigh
			}
			recs = append(recs, models.Recommendation{
				BinID:    risk.BinID,
				Action:   "collect",
				Reason:   reason,
				Priority: priority,
				Score:    risk.RiskScore,
			})
		}
		if agg != nil && len(recs) > 0 {
			agg.Inc(metrics.OptimizationsTotal, int64(len(recs)))
		}
		return models.EnrichedResult{
			Category:        models.CategoryBins,
			Insights:        insight,
			Recommendations: recs,
		}, nil
	}
}

// VerificationSummaryStage folds collections into a CollectionsInsight.
func VerificationSummaryStage(now func() time.Time) func(context.Context, interface{}) (interface{}, error) {
	return func(_ context.Context, data interface{}) (interface{}, error) {
		cols, ok := data.([]models.Collection)
		if !ok {
			return nil, fmt.Errorf("verification-summary: expected []models.Collection, got %T", data)
		}

		insight := CollectionsInsight{
			Total:          len(cols),
			ByVerification: make(map[string]int),
			GeneratedAt:    now().UTC().Format(time.RFC3339),
		}
		var collectedSum float64
		var collectedN int
		for _, col := range cols {
			insight.ByVerification[col.Verification]++
			if col.CollectedPercent != nil {
				collectedSum += *col.CollectedPercent
				collectedN++
			}
		}
		resolved := insight.ByVerification[models.VerificationSensorVerified] +
			insight.ByVerification[models.VerificationSensorRejected]
		if resolved > 0 {
			insight.RejectionRate = float64(insight.ByVerification[models.VerificationSensorRejected]) /
				float64(resolved) * 100
		}
		if collectedN > 0 {
			insight.AvgCollected = collectedSum / float64(collectedN)
		}
		return models.EnrichedResult{Category: models.CategoryCollections, Insights: insight}, nil
	}
}

// SensorHealthStage folds bins into a SensorsInsight.
func SensorHealthStage(batteryLow float64, now func() time.Time) func(context.Context, interface{}) (interface{}, error) {
	return func(_ context.Context, data interface{}) (interface{}, error) {
		bins, ok := data.([]models.Bin)
		if !ok {
			return nil, fmt.Errorf("sensor-health: expected []models.Bin, got %T", data)
		}

		insight := SensorsInsight{GeneratedAt: now().UTC().Format(time.RFC3339)}
		var batterySum float64
		for _, bin := range bins {
			if !bin.HasSensor() {
				insight.Unlinked++
				continue
			}
			insight.Linked++
			batterySum += bin.BatteryLevel
			if bin.BatteryLevel <= batteryLow {
				insight.LowBattery++
			}
			if t, err := time.Parse(time.RFC3339, bin.UpdatedAt); err == nil && now().Sub(t) > silentAfter {
				insight.Silent++
			}
		}
		if insight.Linked > 0 {
			insight.AvgBattery = batterySum / float64(insight.Linked)
		}
		return models.EnrichedResult{Category: models.CategorySensors, Insights: insight}, nil
	}
}

// PerformanceStage wraps the metrics snapshot for the performance category.
func PerformanceStage() func(context.Context, interface{}) (interface{}, error) {
	return func(_ context.Context, data interface{}) (interface{}, error) {
		snap, ok := data.(metrics.Snapshot)
		if !ok {
			return nil, fmt.Errorf("performance: expected metrics.Snapshot, got %T", data)
		}
		return models.EnrichedResult{Category: models.CategoryPerformance, Insights: snap}, nil
	}
}

// BinsSource snapshots the fleet.
func BinsSource(repo *repository.Repository) func(context.Context) (interface{}, error) {
	return func(ctx context.Context) (interface{}, error) {
		bins, err := repo.ListBins(ctx)
		if err != nil {
			return nil, err
		}
		return bins, nil
	}
}

// CollectionsSource snapshots all collections.
func CollectionsSource(repo *repository.Repository) func(context.Context) (interface{}, error) {
	return func(ctx context.Context) (interface{}, error) {
		cols, err := repo.ListCollections(ctx)
		if err != nil {
			return nil, err
		}
		return cols, nil
	}
}

// MetricsSource snapshots the aggregator.
func MetricsSource(agg *metrics.Aggregator) func(context.Context) (interface{}, error) {
	return func(context.Context) (interface{}, error) {
		return agg.Snapshot(), nil
	}
}
