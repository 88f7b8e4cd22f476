package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"ModelRetrainer/internal/domain"
)

func TestObserveOutcome(t *testing.T) {
	before := testutil.ToFloat64(runsTotal.WithLabelValues(string(domain.OutcomePromoted)))

	ObserveOutcome(domain.PipelineOutcome{
		Kind:      domain.OutcomePromoted,
		Version:   3,
		Candidate: domain.NewEvaluationMetrics(0.9, 1, 10),
	})

	assert.Equal(t, before+1, testutil.ToFloat64(runsTotal.WithLabelValues(string(domain.OutcomePromoted))))
	assert.Equal(t, 3.0, testutil.ToFloat64(productionVersion))
	assert.Equal(t, 0.0, testutil.ToFloat64(pendingRecords))
	assert.Equal(t, 0.9, testutil.ToFloat64(r2Score.WithLabelValues("production")))

	ObserveOutcome(domain.PipelineOutcome{Kind: domain.OutcomeNotEnoughData, Pending: 150})
	assert.Equal(t, 150.0, testutil.ToFloat64(pendingRecords))
}
