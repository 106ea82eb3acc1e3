// Package samples implements the append-only time-series store.
// Every producer in the system (pollers, webhook ingestion, the hedge
// calculator) writes the same Sample shape; readers query it by source.
package samples

import "time"

// Sample is one time-stamped measurement row. Immutable once persisted.
type Sample struct {
	ID            int64     `json:"id"`
	SourceID      string    `json:"source_id"`
	DisplayName   string    `json:"display_name"`
	Value         *float64  `json:"value"`
	Text          string    `json:"text"`
	Unit          string    `json:"unit"`
	DecimalPlaces int       `json:"decimal_places"`
	Timestamp     time.Time `json:"timestamp"`
	ReceivedAt    time.Time `json:"received_at"`
	IsChange      bool      `json:"is_change"`
	PreviousValue *float64  `json:"previous_value"`
}

// SourceSummary aggregates one source's history for the summary endpoint.
type SourceSummary struct {
	SourceID    string   `json:"source_id"`
	DisplayName string   `json:"display_name"`
	Count       int64    `json:"count"`
	Min         *float64 `json:"min"`
	Max         *float64 `json:"max"`
	Mean        *float64 `json:"mean"`
	ChangeCount int64    `json:"change_count"`
	Latest      *Sample  `json:"latest"`
}

// RangeQuery describes a paged, time-bounded sample listing.
type RangeQuery struct {
	SourceID string
	Start    *time.Time
	End      *time.Time
	Limit    int
	Offset   int
	OrderBy  string // "timestamp" or "received_at"
	OrderDir string // "asc" or "desc"
}

// MaxRangeLimit is the listing ceiling; requests above it are rejected.
const MaxRangeLimit = 1000
