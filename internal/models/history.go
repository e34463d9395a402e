package models

// History entry kinds.
const (
	HistoryCollection    = "collection"
	HistorySensorReading = "sensor_reading"
	HistoryStatusChange  = "status_change"
	HistoryRegistered    = "registered"
)

// HistoryEntry is an append-only log line for one bin. Entries are cascaded
// when the bin is deleted.
type HistoryEntry struct {
	ID        string  `json:"id"`
	BinID     string  `json:"bin_id"`
	Kind      string  `json:"kind"`
	Detail    string  `json:"detail"`
	FillLevel float64 `json:"fill_level"`
	Timestamp string  `json:"timestamp"` // ISO-8601
}
