package domain

import "time"

// Record is one labeled training example. Records are never mutated once stored.
type Record struct {
	Features []float64 `json:"features"`
	Label    float64   `json:"label"`
	AddedAt  time.Time `json:"added_at"`
}

// Width returns the number of features carried by the record.
func (r Record) Width() int {
	return len(r.Features)
}

// DatasetStatus is a snapshot of the accumulation counter.
type DatasetStatus struct {
	Pending     int        `json:"count"`
	Total       int        `json:"total"`
	LastTrained *time.Time `json:"last_trained,omitempty"`
	// Width is the feature count every stored record shares.
	Width int `json:"width,omitempty"`
}
