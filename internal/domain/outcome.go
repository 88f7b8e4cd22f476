package domain

import "fmt"

// PipelineState enumerates orchestrator milestones within one run.
type PipelineState string

const (
	StateIdle      PipelineState = "idle"
	StateTraining  PipelineState = "training"
	StateTrained   PipelineState = "trained"
	StatePromoting PipelineState = "promoting"
	StatePromoted  PipelineState = "promoted"
	StateRejected  PipelineState = "rejected"
	StateFailed    PipelineState = "failed"
)

// OutcomeKind classifies the result of a pipeline run.
type OutcomeKind string

const (
	OutcomeNotEnoughData OutcomeKind = "not_enough_data"
	OutcomeRejected      OutcomeKind = "rejected"
	OutcomePromoted      OutcomeKind = "promoted"
	OutcomeFailed        OutcomeKind = "failed"
)

// PipelineOutcome is what a single run reports to the scheduler and to
// deployment automation.
type PipelineOutcome struct {
	Kind    OutcomeKind
	RunID   string
	Pending int

	// Version is the newly promoted version; set only for promoted outcomes.
	Version   int
	Candidate EvaluationMetrics
	// Promoted is the registry entry written by a promoted run.
	Promoted *RegistryEntry

	Incumbent        EvaluationMetrics
	IncumbentVersion int

	Reason string
	// Err is set for failed outcomes and for not_enough_data outcomes caused
	// by degenerate training input.
	Err error
	// NotifyErr records a failed publication after the decision was committed.
	NotifyErr error
}

// Improved reports whether the run produced a new production version.
func (o PipelineOutcome) Improved() bool {
	return o.Kind == OutcomePromoted
}

// Summary renders a human readable line describing the outcome.
func (o PipelineOutcome) Summary() string {
	switch o.Kind {
	case OutcomePromoted:
		return fmt.Sprintf("promoted v%d: r2 %.4f (was %.4f on v%d), accuracy %.2f%%, mse %.4f",
			o.Version, o.Candidate.R2, o.Incumbent.R2, o.IncumbentVersion, o.Candidate.AccuracyPct, o.Candidate.MSE)
	case OutcomeRejected:
		return fmt.Sprintf("rejected candidate: r2 %.4f did not beat v%d r2 %.4f",
			o.Candidate.R2, o.IncumbentVersion, o.Incumbent.R2)
	case OutcomeNotEnoughData:
		if o.Reason != "" {
			return "not enough data: " + o.Reason
		}
		return fmt.Sprintf("not enough data: %d pending", o.Pending)
	case OutcomeFailed:
		return fmt.Sprintf("run failed: %v", o.Err)
	default:
		return string(o.Kind)
	}
}
