package models

// Alert statuses. Alerts never auto-expire; they stay active until someone
// dismisses them.
const (
	AlertActive    = "active"
	AlertDismissed = "dismissed"
)

// Alert priorities.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Alert types raised by the repository's threshold checks.
const (
	AlertBinCritical        = "bin_critical"
	AlertBinFireRisk        = "bin_fire_risk"
	AlertBatteryLow         = "battery_low"
	AlertCollectionRejected = "collection_rejected"
	AlertSensorSilent       = "sensor_silent"
	AlertOverflowRisk       = "overflow_risk"
)

type Alert struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	RelatedID string `json:"related_id"`
	Priority  string `json:"priority"`
	Message   string `json:"message"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"` // ISO-8601, refreshed on dedup updates
}
