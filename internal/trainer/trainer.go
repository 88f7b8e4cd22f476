// Package trainer fits the production regression model.
//
// Training is ordinary least squares on a deterministic train/eval split:
// the same records, split ratio and seed always produce bit-identical
// metrics.
package trainer

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"ModelRetrainer/internal/domain"
	"ModelRetrainer/internal/ports"
)

const (
	DefaultSplitRatio = 0.2
	DefaultSeed       = 42
)

// LinearTrainer implements ports.Trainer with an OLS linear model.
type LinearTrainer struct {
	splitRatio float64
	seed       int64
}

var _ ports.Trainer = (*LinearTrainer)(nil)

// New builds a trainer holding out splitRatio of the records for evaluation.
// Ratios outside (0, 1) fall back to DefaultSplitRatio.
func New(splitRatio float64, seed int64) *LinearTrainer {
	if splitRatio <= 0 || splitRatio >= 1 || math.IsNaN(splitRatio) {
		splitRatio = DefaultSplitRatio
	}
	return &LinearTrainer{splitRatio: splitRatio, seed: seed}
}

// Train fits a candidate on the training split and scores it on the eval split.
func (t *LinearTrainer) Train(ctx context.Context, records []domain.Record) (domain.ModelArtifact, domain.EvaluationMetrics, error) {
	if err := checkInput(records); err != nil {
		return domain.ModelArtifact{}, domain.EvaluationMetrics{}, err
	}

	train, eval, err := t.split(records)
	if err != nil {
		return domain.ModelArtifact{}, domain.EvaluationMetrics{}, err
	}

	if err := ctx.Err(); err != nil {
		return domain.ModelArtifact{}, domain.EvaluationMetrics{}, err
	}

	artifact, err := fit(train)
	if err != nil {
		return domain.ModelArtifact{}, domain.EvaluationMetrics{}, err
	}

	metrics, err := Evaluate(artifact, eval)
	if err != nil {
		return domain.ModelArtifact{}, domain.EvaluationMetrics{}, err
	}
	return artifact, metrics, nil
}

func checkInput(records []domain.Record) error {
	if len(records) == 0 {
		return &domain.InsufficientDataError{Reason: "no records"}
	}

	width := records[0].Width()
	if width == 0 {
		return &domain.InsufficientDataError{Reason: "records carry no features"}
	}

	distinct := false
	first := records[0].Label
	for i, r := range records {
		if r.Width() != width {
			return &domain.TrainingError{Reason: fmt.Sprintf("record %d has %d features, expected %d", i, r.Width(), width)}
		}
		if r.Label != first {
			distinct = true
		}
	}
	if !distinct {
		return &domain.InsufficientDataError{Reason: "labels need at least two distinct values"}
	}
	return nil
}

// split shuffles a copy of records with the configured seed and cuts the
// evaluation share off the front.
func (t *LinearTrainer) split(records []domain.Record) (train, eval []domain.Record, err error) {
	n := len(records)
	evalN := int(math.Ceil(float64(n)*t.splitRatio - 1e-9))
	trainN := n - evalN
	params := records[0].Width() + 1

	if evalN < 1 || trainN < params {
		return nil, nil, &domain.InsufficientDataError{
			Reason: fmt.Sprintf("%d records cannot fill a %d-row training split and a non-empty evaluation split", n, params),
		}
	}

	perm := rand.New(rand.NewSource(t.seed)).Perm(n)
	eval = make([]domain.Record, 0, evalN)
	train = make([]domain.Record, 0, trainN)
	for i, idx := range perm {
		if i < evalN {
			eval = append(eval, records[idx])
		} else {
			train = append(train, records[idx])
		}
	}
	return train, eval, nil
}
