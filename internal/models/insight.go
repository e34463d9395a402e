package models

// Insight categories tracked by the broadcaster.
const (
	CategoryBins        = "bins"
	CategoryRoutes      = "routes"
	CategorySensors     = "sensors"
	CategoryCollections = "collections"
	CategoryPerformance = "performance"
)

// InsightSnapshot is the latest computed summary for one category.
// Last write wins; no history is kept here.
type InsightSnapshot struct {
	Category  string      `json:"category"`
	Data      interface{} `json:"data"`
	UpdatedAt string      `json:"updated_at"` // ISO-8601
}

// Recommendation is a single actionable suggestion for dispatch.
type Recommendation struct {
	BinID    string  `json:"bin_id,omitempty"`
	Action   string  `json:"action"`
	Reason   string  `json:"reason"`
	Priority string  `json:"priority"`
	Score    float64 `json:"score"`
}

// EnrichedResult is the final output of one pipeline tick: a category
// snapshot plus the recommendation list derived from it. Destinations share
// the same value and must not mutate it.
type EnrichedResult struct {
	Category        string           `json:"category"`
	Insights        interface{}      `json:"insights"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
}

// BinRisk is the per-bin output of the overflow risk stage.
type BinRisk struct {
	BinID     string  `json:"bin_id"`
	FillLevel float64 `json:"fill_level"`
	Status    string  `json:"status"`
	RiskScore float64 `json:"risk_score"`
}
