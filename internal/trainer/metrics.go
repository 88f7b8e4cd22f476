package trainer

import (
	"ModelRetrainer/internal/domain"
)

// Evaluate scores artifact on records: r2, mean squared error and the
// derived accuracy percentage.
func Evaluate(artifact domain.ModelArtifact, records []domain.Record) (domain.EvaluationMetrics, error) {
	if len(records) == 0 {
		return domain.EvaluationMetrics{}, &domain.InsufficientDataError{Reason: "empty evaluation split"}
	}

	var mean float64
	for _, r := range records {
		mean += r.Label
	}
	mean /= float64(len(records))

	var ssRes, ssTot float64
	for _, r := range records {
		pred, err := artifact.Predict(r.Features)
		if err != nil {
			return domain.EvaluationMetrics{}, &domain.TrainingError{Reason: "evaluate", Err: err}
		}
		res := r.Label - pred
		ssRes += res * res
		dev := r.Label - mean
		ssTot += dev * dev
	}

	if ssTot == 0 {
		return domain.EvaluationMetrics{}, &domain.InsufficientDataError{Reason: "evaluation split has constant labels, r2 is undefined"}
	}

	r2 := 1 - ssRes/ssTot
	mse := ssRes / float64(len(records))
	if !finite(r2, mse) {
		return domain.EvaluationMetrics{}, &domain.TrainingError{Reason: "metrics are not finite"}
	}
	return domain.NewEvaluationMetrics(r2, mse, len(records)), nil
}
