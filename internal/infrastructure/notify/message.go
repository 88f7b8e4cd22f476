// Package notify turns pipeline outcomes into publications for deployment
// automation.
package notify

import (
	"fmt"
	"strings"

	"ModelRetrainer/internal/domain"
)

// Describe renders the change description deployment automation attaches to
// a promotion, or the short rejection note.
func Describe(outcome domain.PipelineOutcome) string {
	var b strings.Builder
	switch outcome.Kind {
	case domain.OutcomePromoted:
		fmt.Fprintf(&b, "Model v%d promoted\n\n", outcome.Version)
		fmt.Fprintf(&b, "| metric | v%d (production) | v%d (new) |\n", outcome.IncumbentVersion, outcome.Version)
		b.WriteString("|---|---|---|\n")
		fmt.Fprintf(&b, "| r2 | %.4f | %.4f |\n", outcome.Incumbent.R2, outcome.Candidate.R2)
		fmt.Fprintf(&b, "| accuracy | %.2f%% | %.2f%% |\n", outcome.Incumbent.AccuracyPct, outcome.Candidate.AccuracyPct)
		fmt.Fprintf(&b, "| mse | %.4f | %.4f |\n", outcome.Incumbent.MSE, outcome.Candidate.MSE)
		fmt.Fprintf(&b, "\nAccuracy change: %+.2f%%\n", outcome.Candidate.AccuracyPct-outcome.Incumbent.AccuracyPct)
		fmt.Fprintf(&b, "Trained after %d new records (run %s).\n", outcome.Pending, outcome.RunID)
	case domain.OutcomeRejected:
		fmt.Fprintf(&b, "Candidate rejected: r2 %.4f does not improve on v%d (r2 %.4f). No changes made.\n",
			outcome.Candidate.R2, outcome.IncumbentVersion, outcome.Incumbent.R2)
	default:
		b.WriteString(outcome.Summary())
		b.WriteString("\n")
	}
	return b.String()
}
