package domain

import (
	"fmt"
	"time"
)

// ModelArtifact is a trained linear model. Version stays zero until the
// registry assigns one on promotion.
type ModelArtifact struct {
	Version      int       `json:"version"`
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
	TrainedOn    int       `json:"trained_on"`
}

// Predict evaluates the model for a single feature vector.
func (m ModelArtifact) Predict(features []float64) (float64, error) {
	if len(features) != len(m.Coefficients) {
		return 0, fmt.Errorf("model expects %d features, got %d", len(m.Coefficients), len(features))
	}
	y := m.Intercept
	for i, c := range m.Coefficients {
		y += c * features[i]
	}
	return y, nil
}

// FileName mirrors the artifact naming used by deployment automation.
func (m ModelArtifact) FileName() string {
	return fmt.Sprintf("v%d.json", m.Version)
}

// EvaluationMetrics are computed once per artifact on the held-out split.
type EvaluationMetrics struct {
	R2          float64 `json:"r2_score"`
	MSE         float64 `json:"mse"`
	AccuracyPct float64 `json:"accuracy_score"`
	EvalSize    int     `json:"eval_size"`
}

// NewEvaluationMetrics derives the accuracy percentage from r2.
func NewEvaluationMetrics(r2, mse float64, evalSize int) EvaluationMetrics {
	return EvaluationMetrics{
		R2:          r2,
		MSE:         mse,
		AccuracyPct: r2 * 100,
		EvalSize:    evalSize,
	}
}

// RegistryEntry is one promoted model version.
type RegistryEntry struct {
	Version   int               `json:"version"`
	Artifact  ModelArtifact     `json:"artifact"`
	Metrics   EvaluationMetrics `json:"metrics"`
	CreatedAt time.Time         `json:"created_at"`
}
