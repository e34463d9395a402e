package models

// Report types accepted by the report generator.
const (
	ReportPerformance   = "performance"
	ReportPredictions   = "predictions"
	ReportOptimizations = "optimizations"
)

// Report is the structured output of GenerateReport. Sections vary by type;
// rendering to CSV/PDF happens outside this repository.
type Report struct {
	Type        string                 `json:"type"`
	GeneratedAt string                 `json:"generated_at"` // ISO-8601
	Summary     map[string]float64     `json:"summary"`
	Sections    map[string]interface{} `json:"sections"`
}

// ReportOptions narrows what a report covers.
type ReportOptions struct {
	Limit int `json:"limit"`
}
