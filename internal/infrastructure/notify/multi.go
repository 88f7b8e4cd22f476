package notify

import (
	"context"
	"errors"

	"ModelRetrainer/internal/domain"
	"ModelRetrainer/internal/ports"
)

// Multi fans an outcome out to several notifiers. Every notifier is tried;
// failures are joined.
type Multi []ports.Notifier

var _ ports.Notifier = Multi(nil)

// PublishOutcome delivers outcome to each notifier in order.
func (m Multi) PublishOutcome(ctx context.Context, outcome domain.PipelineOutcome) error {
	var errs []error
	for _, n := range m {
		if err := n.PublishOutcome(ctx, outcome); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
