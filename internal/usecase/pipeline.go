package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"ModelRetrainer/internal/domain"
	"ModelRetrainer/internal/metrics"
	"ModelRetrainer/internal/ports"
)

// DefaultThreshold is the pending record count that triggers training.
const DefaultThreshold = 200

// errSuperseded aborts the promotion transaction when the production model
// changed during training and the candidate no longer beats it.
var errSuperseded = errors.New("candidate superseded by a newer production model")

var tracer = otel.Tracer("modelretrainer.pipeline")

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Dataset    ports.DatasetStore
	Trainer    ports.Trainer
	Registry   ports.ModelRegistry
	Policy     ports.PromotionPolicy
	Transactor ports.Transactor
	// RunLock is optional and excludes runs in other processes that share
	// the same storage.
	RunLock ports.RunLocker
	// Notifier is optional; outcomes are only logged when it is nil.
	Notifier  ports.Notifier
	Threshold int
	Logger    *slog.Logger
}

// Pipeline implements the retraining decision: threshold gate, training,
// comparison and promotion. It keeps no state between runs beyond what the
// dataset store and the registry persist.
type Pipeline struct {
	dataset    ports.DatasetStore
	trainer    ports.Trainer
	registry   ports.ModelRegistry
	policy     ports.PromotionPolicy
	transactor ports.Transactor
	locker     ports.RunLocker
	notifier   ports.Notifier
	threshold  int
	logger     *slog.Logger

	// runLock admits one run at a time for the whole read-train-promote sequence.
	runLock *semaphore.Weighted
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) (*Pipeline, error) {
	switch {
	case deps.Dataset == nil:
		return nil, errors.New("pipeline: dataset store is required")
	case deps.Trainer == nil:
		return nil, errors.New("pipeline: trainer is required")
	case deps.Registry == nil:
		return nil, errors.New("pipeline: model registry is required")
	case deps.Policy == nil:
		return nil, errors.New("pipeline: promotion policy is required")
	case deps.Transactor == nil:
		return nil, errors.New("pipeline: transactor is required")
	}

	threshold := deps.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Pipeline{
		dataset:    deps.Dataset,
		trainer:    deps.Trainer,
		registry:   deps.Registry,
		policy:     deps.Policy,
		transactor: deps.Transactor,
		locker:     deps.RunLock,
		notifier:   deps.Notifier,
		threshold:  threshold,
		logger:     logger,
		runLock:    semaphore.NewWeighted(1),
	}, nil
}

// Threshold returns the configured pending record threshold.
func (p *Pipeline) Threshold() int {
	return p.threshold
}

// Run executes one pipeline invocation. Failed runs return an outcome of
// kind failed together with the error; persisted state is untouched.
func (p *Pipeline) Run(ctx context.Context) (domain.PipelineOutcome, error) {
	runID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.Int("pipeline.threshold", p.threshold),
	))
	defer span.End()

	logger := p.logger.With("run_id", runID)

	if err := p.runLock.Acquire(ctx, 1); err != nil {
		return p.fail(span, logger, domain.PipelineOutcome{RunID: runID}, fmt.Errorf("wait for run lock: %w", err))
	}
	defer p.runLock.Release(1)

	if p.locker != nil {
		release, err := p.locker.LockRun(ctx)
		if err != nil {
			return p.fail(span, logger, domain.PipelineOutcome{RunID: runID}, fmt.Errorf("acquire shared run lock: %w", err))
		}
		defer release()
	}

	outcome, err := p.decide(ctx, runID, logger)
	if err != nil {
		return p.fail(span, logger, outcome, err)
	}

	span.SetAttributes(attribute.String("run.outcome", string(outcome.Kind)))
	metrics.ObserveOutcome(outcome)
	logger.Info("pipeline finished", "outcome", outcome.Kind, "summary", outcome.Summary())

	p.publish(ctx, logger, &outcome)
	return outcome, nil
}

func (p *Pipeline) decide(ctx context.Context, runID string, logger *slog.Logger) (domain.PipelineOutcome, error) {
	outcome := domain.PipelineOutcome{RunID: runID}

	pending, err := p.dataset.PendingCount(ctx)
	if err != nil {
		return outcome, fmt.Errorf("read pending count: %w", err)
	}
	outcome.Pending = pending

	if pending < p.threshold {
		logger.Info("not enough data for training", "pending", pending, "threshold", p.threshold)
		outcome.Kind = domain.OutcomeNotEnoughData
		return outcome, nil
	}

	incumbent, err := p.registry.Current(ctx)
	if err != nil {
		return outcome, fmt.Errorf("load production model: %w", err)
	}
	outcome.Incumbent = incumbent.Metrics
	outcome.IncumbentVersion = incumbent.Version

	records, err := p.dataset.AllRecords(ctx)
	if err != nil {
		return outcome, fmt.Errorf("load records: %w", err)
	}

	transition(logger, domain.StateIdle, domain.StateTraining, "pending", pending, "records", len(records))
	artifact, candidate, err := p.train(ctx, records)
	if err != nil {
		var insufficient *domain.InsufficientDataError
		if errors.As(err, &insufficient) {
			logger.Warn("training input is degenerate", "reason", insufficient.Reason)
			outcome.Kind = domain.OutcomeNotEnoughData
			outcome.Reason = insufficient.Reason
			outcome.Err = err
			return outcome, nil
		}
		return outcome, fmt.Errorf("train candidate: %w", err)
	}
	outcome.Candidate = candidate
	transition(logger, domain.StateTraining, domain.StateTrained,
		"candidate_r2", candidate.R2, "incumbent_r2", incumbent.Metrics.R2, "incumbent_version", incumbent.Version)

	if !p.policy.ShouldPromote(candidate, incumbent.Metrics) {
		transition(logger, domain.StateTrained, domain.StateRejected)
		if pending >= 2*p.threshold {
			// Rejections keep the counter, so the same data is retried every tick.
			logger.Warn("pending data keeps failing to improve the model", "pending", pending, "threshold", p.threshold)
		}
		outcome.Kind = domain.OutcomeRejected
		return outcome, nil
	}

	transition(logger, domain.StateTrained, domain.StatePromoting)
	var entry domain.RegistryEntry
	err = p.transactor.Atomically(ctx, func(ctx context.Context) error {
		// Another process may have promoted while this one was training.
		latest, err := p.registry.Current(ctx)
		if err != nil {
			return fmt.Errorf("reload production model: %w", err)
		}
		if latest.Version != incumbent.Version {
			incumbent = latest
			if !p.policy.ShouldPromote(candidate, latest.Metrics) {
				return errSuperseded
			}
		}
		entry, err = p.registry.Promote(ctx, latest.Version, artifact, candidate)
		if err != nil {
			return fmt.Errorf("promote candidate: %w", err)
		}
		if err := p.dataset.ResetCounter(ctx, len(records)); err != nil {
			return fmt.Errorf("reset counter: %w", err)
		}
		return nil
	})
	outcome.Incumbent = incumbent.Metrics
	outcome.IncumbentVersion = incumbent.Version
	if errors.Is(err, errSuperseded) {
		transition(logger, domain.StatePromoting, domain.StateRejected, "incumbent_version", incumbent.Version)
		outcome.Kind = domain.OutcomeRejected
		outcome.Reason = fmt.Sprintf("v%d was promoted during training", incumbent.Version)
		return outcome, nil
	}
	if err != nil {
		return outcome, err
	}
	transition(logger, domain.StatePromoting, domain.StatePromoted, "version", entry.Version)

	outcome.Kind = domain.OutcomePromoted
	outcome.Version = entry.Version
	outcome.Promoted = &entry
	return outcome, nil
}

// train runs the CPU-bound fit on its own goroutine while the caller keeps
// holding the run lock.
func (p *Pipeline) train(ctx context.Context, records []domain.Record) (domain.ModelArtifact, domain.EvaluationMetrics, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Train", trace.WithAttributes(attribute.Int("records", len(records))))
	defer span.End()

	var (
		artifact domain.ModelArtifact
		result   domain.EvaluationMetrics
	)
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		artifact, result, err = p.trainer.Train(gctx, records)
		return err
	})
	err := g.Wait()
	metrics.ObserveTraining(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return domain.ModelArtifact{}, domain.EvaluationMetrics{}, err
	}
	span.SetAttributes(attribute.Float64("candidate.r2", result.R2))
	return artifact, result, nil
}

func (p *Pipeline) fail(span trace.Span, logger *slog.Logger, outcome domain.PipelineOutcome, err error) (domain.PipelineOutcome, error) {
	outcome.Kind = domain.OutcomeFailed
	outcome.Err = err

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	metrics.ObserveOutcome(outcome)
	logger.Error("pipeline failed", "state", domain.StateFailed, "error", err)
	return outcome, err
}

// publish hands decided outcomes to deployment automation. A failed
// publication never undoes the decision; it is reported on the outcome.
func (p *Pipeline) publish(ctx context.Context, logger *slog.Logger, outcome *domain.PipelineOutcome) {
	if p.notifier == nil {
		return
	}
	if outcome.Kind != domain.OutcomePromoted && outcome.Kind != domain.OutcomeRejected {
		return
	}
	if err := p.notifier.PublishOutcome(ctx, *outcome); err != nil {
		outcome.NotifyErr = err
		metrics.NotifyFailed()
		logger.Error("publish outcome", "outcome", outcome.Kind, "error", err)
	}
}

func transition(logger *slog.Logger, from, to domain.PipelineState, args ...any) {
	logger.Debug("state transition", append([]any{"from", from, "to", to}, args...)...)
}
