package dataset

import (
	"math/rand"

	"ModelRetrainer/internal/domain"
)

// Simulate generates n single-feature study records where the score is
// roughly ten points per hour studied plus gaussian noise (sd 5).
func Simulate(n int, rng *rand.Rand) []domain.Record {
	records := make([]domain.Record, 0, n)
	for i := 0; i < n; i++ {
		hours := 1 + rng.Float64()*9
		score := 10*hours + rng.NormFloat64()*5
		records = append(records, domain.Record{Features: []float64{hours}, Label: score})
	}
	return records
}
