// Package registry keeps the production model and its append-only version
// history.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ModelRetrainer/internal/domain"
	"ModelRetrainer/internal/infrastructure/kv"
	"ModelRetrainer/internal/ports"
)

const (
	currentKey  = "registry/current"
	historyList = "registry/history"
)

// Registry implements ports.ModelRegistry on a kv.Store. The current pointer
// and the history append always land in one transaction, so readers observe
// either the old or the new production entry.
type Registry struct {
	kv  kv.Store
	now func() time.Time
}

var _ ports.ModelRegistry = (*Registry)(nil)

// New wires the registry onto a key-value backend.
func New(backend kv.Store) *Registry {
	return &Registry{kv: backend, now: time.Now}
}

// Current returns the production entry or domain.ErrEmptyRegistry.
func (r *Registry) Current(ctx context.Context) (domain.RegistryEntry, error) {
	var entry domain.RegistryEntry
	err := kv.Read(ctx, r.kv, func(tx kv.Tx) error {
		var err error
		entry, err = current(tx)
		return err
	})
	if err != nil {
		return domain.RegistryEntry{}, wrap("read current", err)
	}
	return entry, nil
}

// Promote assigns the next version to artifact and makes it current. It is a
// compare-and-swap on the production version: when expectedVersion is no
// longer current nothing is written and domain.ErrStaleIncumbent is returned.
func (r *Registry) Promote(ctx context.Context, expectedVersion int, artifact domain.ModelArtifact, metrics domain.EvaluationMetrics) (domain.RegistryEntry, error) {
	var entry domain.RegistryEntry
	err := kv.Write(ctx, r.kv, func(tx kv.Tx) error {
		incumbent, err := current(tx)
		if err != nil {
			return err
		}
		if incumbent.Version != expectedVersion {
			return fmt.Errorf("%w: expected v%d, found v%d", domain.ErrStaleIncumbent, expectedVersion, incumbent.Version)
		}
		entry, err = r.install(tx, incumbent.Version+1, artifact, metrics)
		return err
	})
	if err != nil {
		return domain.RegistryEntry{}, wrap("promote", err)
	}
	return entry, nil
}

// Seed installs the bootstrap model as version 1. It refuses to overwrite an
// existing registry.
func (r *Registry) Seed(ctx context.Context, artifact domain.ModelArtifact, metrics domain.EvaluationMetrics) (domain.RegistryEntry, error) {
	var entry domain.RegistryEntry
	err := kv.Write(ctx, r.kv, func(tx kv.Tx) error {
		_, err := current(tx)
		switch {
		case err == nil:
			return domain.ErrAlreadySeeded
		case !errors.Is(err, domain.ErrEmptyRegistry):
			return err
		}
		entry, err = r.install(tx, 1, artifact, metrics)
		return err
	})
	if err != nil {
		return domain.RegistryEntry{}, wrap("seed", err)
	}
	return entry, nil
}

// History returns every promoted entry in promotion order.
func (r *Registry) History(ctx context.Context) ([]domain.RegistryEntry, error) {
	var entries []domain.RegistryEntry
	err := kv.Read(ctx, r.kv, func(tx kv.Tx) error {
		raw, err := tx.List(historyList)
		if err != nil {
			return err
		}
		entries = make([]domain.RegistryEntry, 0, len(raw))
		for _, item := range raw {
			entry, err := decodeEntry(item)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, wrap("read history", err)
	}
	return entries, nil
}

func (r *Registry) install(tx kv.Tx, version int, artifact domain.ModelArtifact, metrics domain.EvaluationMetrics) (domain.RegistryEntry, error) {
	artifact.Version = version
	artifact.Coefficients = append([]float64(nil), artifact.Coefficients...)
	entry := domain.RegistryEntry{
		Version:   version,
		Artifact:  artifact,
		Metrics:   metrics,
		CreatedAt: r.now().UTC(),
	}

	if _, err := kv.AppendJSON(tx, historyList, entry); err != nil {
		return domain.RegistryEntry{}, err
	}
	if err := kv.SetJSON(tx, currentKey, entry); err != nil {
		return domain.RegistryEntry{}, err
	}
	return entry, nil
}

func current(tx kv.Tx) (domain.RegistryEntry, error) {
	var entry domain.RegistryEntry
	found, err := kv.GetJSON(tx, currentKey, &entry)
	if err != nil {
		return domain.RegistryEntry{}, err
	}
	if !found {
		return domain.RegistryEntry{}, domain.ErrEmptyRegistry
	}
	return entry, nil
}

// wrap keeps registry state errors as they are and reports the rest as
// storage failures.
func wrap(op string, err error) error {
	if errors.Is(err, domain.ErrEmptyRegistry) || errors.Is(err, domain.ErrAlreadySeeded) || errors.Is(err, domain.ErrStaleIncumbent) {
		return err
	}
	var storageErr *domain.StorageError
	if errors.As(err, &storageErr) {
		return err
	}
	return &domain.StorageError{Op: "registry " + op, Err: err}
}

func decodeEntry(raw []byte) (domain.RegistryEntry, error) {
	var entry domain.RegistryEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return domain.RegistryEntry{}, fmt.Errorf("decode registry entry: %w", err)
	}
	return entry, nil
}
