package domain

import "time"

// Status classifies a Reading for display and downstream consumers.
type Status string

const (
	// StatusOK marks a successfully measured value.
	StatusOK Status = "ok"
	// StatusError marks a failed read; the reading carries no value.
	StatusError Status = "error"
	// StatusStale marks a value whose last update is older than the
	// source's staleness window. Assigned on read-out, never persisted.
	StatusStale Status = "stale"
)

// Reading is one timestamped measurement from a single source. Immutable
// once created.
type Reading struct {
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"ts"`
	Status    Status    `json:"status"`
	Formatted string    `json:"formatted"`
}

// OK reports whether the reading carries a valid value.
func (r Reading) OK() bool {
	return r.Status == StatusOK
}

// Stale returns a copy of the reading marked stale. Only ok readings are
// downgraded; error readings keep their status.
func (r Reading) Stale() Reading {
	if r.Status == StatusOK {
		r.Status = StatusStale
	}
	return r
}
