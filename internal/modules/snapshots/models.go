// Package snapshots persists computed target weights in results.db so past
// recommendations stay inspectable after settings or views change.
package snapshots

import "errors"

// ErrNoSnapshots indicates that no snapshot has been stored yet.
var ErrNoSnapshots = errors.New("no snapshots stored")

// Snapshot is one persisted engine run: the posterior weights and calibrated
// view variances, together with the window they were computed over.
type Snapshot struct {
	ID            int64              `json:"id"`
	CreatedAt     int64              `json:"created_at"`
	StartDate     string             `json:"start_date"`
	EndDate       string             `json:"end_date"`
	ViewCount     int                `json:"view_count"`
	Weights       map[string]float64 `json:"weights"`
	ViewVariances map[string]float64 `json:"view_variances"`
}

// payload is the msgpack-encoded portion of a snapshot row.
type payload struct {
	Weights       map[string]float64 `msgpack:"weights"`
	ViewVariances map[string]float64 `msgpack:"view_variances"`
}
