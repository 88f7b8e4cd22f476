package ports

import (
	"context"
	"time"

	"ModelRetrainer/internal/domain"
)

// DatasetStore accumulates labeled records and counts those still pending.
type DatasetStore interface {
	Add(ctx context.Context, record domain.Record) error
	PendingCount(ctx context.Context) (int, error)
	AllRecords(ctx context.Context) ([]domain.Record, error)
	// ResetCounter marks the first consumed records as trained on; records
	// stored after them stay pending.
	ResetCounter(ctx context.Context, consumed int) error
}

// Trainer fits a candidate model and evaluates it on a held-out split.
type Trainer interface {
	Train(ctx context.Context, records []domain.Record) (domain.ModelArtifact, domain.EvaluationMetrics, error)
}

// ModelRegistry owns the production model and its version history.
type ModelRegistry interface {
	Current(ctx context.Context) (domain.RegistryEntry, error)
	// Promote installs artifact as the next version only while expectedVersion
	// is still current, otherwise it fails with domain.ErrStaleIncumbent.
	Promote(ctx context.Context, expectedVersion int, artifact domain.ModelArtifact, metrics domain.EvaluationMetrics) (domain.RegistryEntry, error)
	History(ctx context.Context) ([]domain.RegistryEntry, error)
}

// PromotionPolicy decides whether a candidate replaces the incumbent.
type PromotionPolicy interface {
	ShouldPromote(candidate, incumbent domain.EvaluationMetrics) bool
}

// Transactor commits every store mutation made inside fn atomically.
type Transactor interface {
	Atomically(ctx context.Context, fn func(ctx context.Context) error) error
}

// RunLocker excludes pipeline runs in other processes sharing the same
// storage. The returned release func must be called exactly once.
type RunLocker interface {
	LockRun(ctx context.Context) (release func(), err error)
}

// Notifier publishes run outcomes to deployment automation. It is one-way:
// the core never reads anything back.
type Notifier interface {
	PublishOutcome(ctx context.Context, outcome domain.PipelineOutcome) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
