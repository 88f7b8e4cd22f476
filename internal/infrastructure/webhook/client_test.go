package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ModelRetrainer/internal/domain"
)

func promoted() domain.PipelineOutcome {
	return domain.PipelineOutcome{
		Kind:             domain.OutcomePromoted,
		RunID:            "run-1",
		Pending:          200,
		Version:          2,
		Candidate:        domain.NewEvaluationMetrics(0.85, 12, 40),
		Incumbent:        domain.NewEvaluationMetrics(0.7, 20, 40),
		IncumbentVersion: 1,
	}
}

func TestPublishOutcome(t *testing.T) {
	t.Parallel()

	var got Payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/outcomes", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	require.NoError(t, client.PublishOutcome(context.Background(), promoted()))

	assert.True(t, got.Improved)
	assert.Equal(t, domain.OutcomePromoted, got.Outcome)
	assert.Equal(t, 2, got.NewVersion)
	assert.Equal(t, 1, got.OldVersion)
	assert.Equal(t, "v2.json", got.ModelFile)
	assert.Equal(t, 0.85, got.Candidate.R2)
	assert.Contains(t, got.ChangeDescription, "Model v2 promoted")
}

func TestPublishOutcomeRejectedPayload(t *testing.T) {
	t.Parallel()

	outcome := promoted()
	outcome.Kind = domain.OutcomeRejected
	outcome.Version = 0

	p := NewPayload(outcome)
	assert.False(t, p.Improved)
	assert.Zero(t, p.NewVersion)
	assert.Empty(t, p.ModelFile)
}

func TestPublishOutcomeErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := NewClient(server.URL, "").PublishOutcome(context.Background(), promoted())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestPublishOutcomeMisconfigured(t *testing.T) {
	t.Parallel()

	assert.Error(t, NewClient("", "").PublishOutcome(context.Background(), promoted()))
}
