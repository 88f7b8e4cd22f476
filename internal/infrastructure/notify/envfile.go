package notify

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"ModelRetrainer/internal/domain"
	"ModelRetrainer/internal/ports"
)

// EnvFile appends KEY=VALUE lines to a CI environment file (GITHUB_ENV style)
// so later workflow steps can open and merge the promotion pull request.
type EnvFile struct {
	path string
	mu   sync.Mutex
}

var _ ports.Notifier = (*EnvFile)(nil)

// NewEnvFile targets path. The file is created when missing.
func NewEnvFile(path string) *EnvFile {
	return &EnvFile{path: path}
}

// PublishOutcome appends the outcome variables.
func (e *EnvFile) PublishOutcome(_ context.Context, outcome domain.PipelineOutcome) error {
	if e.path == "" {
		return fmt.Errorf("env file notifier misconfigured")
	}

	lines := EnvLines(outcome)
	if len(lines) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	f, err := os.OpenFile(e.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open env file: %w", err)
	}
	if _, err := f.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("write env file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close env file: %w", err)
	}
	return nil
}

// EnvLines returns the variables published for outcome.
func EnvLines(outcome domain.PipelineOutcome) []string {
	switch outcome.Kind {
	case domain.OutcomePromoted:
		artifact := domain.ModelArtifact{Version: outcome.Version}
		return []string{
			"MODEL_IMPROVED=true",
			fmt.Sprintf("NEW_VERSION=%d", outcome.Version),
			fmt.Sprintf("NEW_ACCURACY=%.2f", outcome.Candidate.AccuracyPct),
			fmt.Sprintf("OLD_ACCURACY=%.2f", outcome.Incumbent.AccuracyPct),
			fmt.Sprintf("OLD_VERSION=%d", outcome.IncumbentVersion),
			"MODEL_FILE=" + artifact.FileName(),
		}
	case domain.OutcomeRejected:
		return []string{"MODEL_IMPROVED=false"}
	default:
		return nil
	}
}
