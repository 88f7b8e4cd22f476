package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"ModelRetrainer/internal/domain"
	"ModelRetrainer/internal/ports"
)

// ArtifactDir exports promoted registry entries as <dir>/v<N>.json, the file
// that MODEL_FILE names for deployment automation.
type ArtifactDir struct {
	dir string
}

var _ ports.Notifier = (*ArtifactDir)(nil)

// NewArtifactDir targets dir, creating it on first export.
func NewArtifactDir(dir string) *ArtifactDir {
	return &ArtifactDir{dir: dir}
}

// Path returns where the entry of version is exported.
func (a *ArtifactDir) Path(version int) string {
	return filepath.Join(a.dir, domain.ModelArtifact{Version: version}.FileName())
}

// PublishOutcome writes the promoted entry. Other outcomes are ignored.
func (a *ArtifactDir) PublishOutcome(_ context.Context, outcome domain.PipelineOutcome) error {
	if outcome.Kind != domain.OutcomePromoted {
		return nil
	}
	if a.dir == "" {
		return errors.New("artifact exporter misconfigured")
	}
	if outcome.Promoted == nil {
		return fmt.Errorf("export v%d: outcome carries no registry entry", outcome.Version)
	}
	return a.Export(*outcome.Promoted)
}

// Export writes entry atomically; readers see the old file or the new one.
func (a *ArtifactDir) Export(entry domain.RegistryEntry) error {
	if err := os.MkdirAll(a.dir, 0o750); err != nil {
		return fmt.Errorf("create models dir: %w", err)
	}

	payload, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("encode v%d: %w", entry.Version, err)
	}

	tmp, err := os.CreateTemp(a.dir, ".export-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(payload, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write v%d: %w", entry.Version, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), a.Path(entry.Version)); err != nil {
		return fmt.Errorf("install v%d: %w", entry.Version, err)
	}
	return nil
}

// Prerequisite publishes to Then only after Required succeeded, so nothing
// downstream announces an outcome whose prerequisite step failed.
type Prerequisite struct {
	Required ports.Notifier
	Then     ports.Notifier
}

var _ ports.Notifier = Prerequisite{}

// PublishOutcome runs Required, then Then.
func (p Prerequisite) PublishOutcome(ctx context.Context, outcome domain.PipelineOutcome) error {
	if err := p.Required.PublishOutcome(ctx, outcome); err != nil {
		return err
	}
	if p.Then == nil {
		return nil
	}
	return p.Then.PublishOutcome(ctx, outcome)
}
