// Package reports builds structured reports for the reporting collaborators.
// Formatting (CSV/PDF) happens outside this repository; these are plain data.
package reports

import (
	"context"
	"fmt"
	"time"

	"binsync-backend/internal/metrics"
	"binsync-backend/internal/models"
	"binsync-backend/internal/repository"
)

// ErrUnknownType is returned for report types the generator does not know.
var ErrUnknownType = fmt.Errorf("unknown report type")

const defaultLimit = 20

// Generator assembles reports from repository state and the metrics
// aggregator.
type Generator struct {
	repo *repository.Repository
	agg  *metrics.Aggregator
	now  func() time.Time
}

func NewGenerator(repo *repository.Repository, agg *metrics.Aggregator) *Generator {
	return &Generator{repo: repo, agg: agg, now: time.Now}
}

// Generate produces a report for performance, predictions, or optimizations.
func (g *Generator) Generate(ctx context.Context, reportType string, opts models.ReportOptions) (*models.Report, error) {
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	switch reportType {
	case models.ReportPerformance:
		return g.performance(ctx, opts)
	case models.ReportPredictions:
		return g.predictions(ctx, opts)
	case models.ReportOptimizations:
		return g.optimizations(ctx, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, reportType)
	}
}

func (g *Generator) base(reportType string) *models.Report {
	return &models.Report{
		Type:        reportType,
		GeneratedAt: g.now().UTC().Format(time.RFC3339),
		Summary:     make(map[string]float64),
		Sections:    make(map[string]interface{}),
	}
}

func (g *Generator) performance(ctx context.Context, opts models.ReportOptions) (*models.Report, error) {
	report := g.base(models.ReportPerformance)
	snap := g.agg.Snapshot()

	bins, err := g.repo.ListBins(ctx)
	if err != nil {
		return nil, err
	}
	byStatus := make(map[string]int)
	var fillSum float64
	for _, bin := range bins {
		byStatus[bin.Status]++
		fillSum += bin.FillLevel
	}

	report.Summary["bins"] = float64(len(bins))
	if len(bins) > 0 {
		report.Summary["average_fill"] = fillSum / float64(len(bins))
	}
	report.Summary["pipeline_latency_ms"] = snap.LatencyAvgMs
	report.Summary["pipeline_processed"] = float64(snap.Counters[metrics.PipelineProcessed])
	report.Summary["pipeline_errors"] = float64(snap.Counters[metrics.PipelineErrors])
	report.Sections["bins_by_status"] = byStatus
	report.Sections["metrics"] = snap
	return report, nil
}

func (g *Generator) predictions(ctx context.Context, opts models.ReportOptions) (*models.Report, error) {
	report := g.base(models.ReportPredictions)
	snap := g.agg.Snapshot()

	cols, err := g.repo.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	byVerification := make(map[string]int)
	rejected := make([]models.Collection, 0)
	for _, col := range cols {
		byVerification[col.Verification]++
		if col.Verification == models.VerificationSensorRejected && len(rejected) < opts.Limit {
			rejected = append(rejected, col)
		}
	}

	report.Summary["total"] = float64(snap.Counters[metrics.PredictionsTotal])
	report.Summary["accurate"] = float64(snap.Counters[metrics.PredictionsAccurate])
	report.Summary["accuracy"] = snap.Accuracy
	report.Sections["by_verification"] = byVerification
	report.Sections["rejected"] = rejected
	return report, nil
}

func (g *Generator) optimizations(ctx context.Context, opts models.ReportOptions) (*models.Report, error) {
	report := g.base(models.ReportOptimizations)
	snap := g.agg.Snapshot()

	alerts, err := g.repo.ActiveAlerts(ctx)
	if err != nil {
		return nil, err
	}
	overflow := make([]models.Alert, 0)
	for _, alert := range alerts {
		if alert.Type == models.AlertOverflowRisk && len(overflow) < opts.Limit {
			overflow = append(overflow, alert)
		}
	}

	report.Summary["total"] = float64(snap.Counters[metrics.OptimizationsTotal])
	report.Summary["successful"] = float64(snap.Counters[metrics.OptimizationsSuccessful])
	report.Summary["efficiency"] = snap.Efficiency
	report.Sections["overflow_alerts"] = overflow
	return report, nil
}
