package promotion

import (
	"ModelRetrainer/internal/domain"
	"ModelRetrainer/internal/ports"
)

// StrictImprovement promotes a candidate only when its r2 beats the
// incumbent's. Ties are rejected. MSE and accuracy are derived from the same
// evaluation and are reported, not compared.
type StrictImprovement struct{}

var _ ports.PromotionPolicy = StrictImprovement{}

// ShouldPromote reports whether candidate strictly improves on incumbent.
func (StrictImprovement) ShouldPromote(candidate, incumbent domain.EvaluationMetrics) bool {
	return candidate.R2 > incumbent.R2
}
