// Package dataset accumulates labeled records and tracks how many of them
// arrived since the last successful promotion.
package dataset

import (
	"context"
	"fmt"
	"math"
	"time"

	"ModelRetrainer/internal/domain"
	"ModelRetrainer/internal/infrastructure/kv"
	"ModelRetrainer/internal/ports"
)

const (
	counterKey  = "dataset/counter"
	recordsList = "dataset/records"
)

// Store implements ports.DatasetStore on a kv.Store. Records and the counter
// always change in the same transaction.
type Store struct {
	kv  kv.Store
	now func() time.Time
}

var _ ports.DatasetStore = (*Store)(nil)

// NewStore wires the dataset onto a key-value backend.
func NewStore(backend kv.Store) *Store {
	return &Store{kv: backend, now: time.Now}
}

// Add stores one record and bumps the pending counter.
func (s *Store) Add(ctx context.Context, record domain.Record) error {
	return s.AddBatch(ctx, []domain.Record{record})
}

// AddBatch stores all records and bumps the counter by len(records) in one commit.
func (s *Store) AddBatch(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}

	records = append([]domain.Record(nil), records...)
	now := s.now().UTC()
	for i := range records {
		if err := validate(records[i]); err != nil {
			return err
		}
		if records[i].AddedAt.IsZero() {
			records[i].AddedAt = now
		}
	}

	err := kv.Write(ctx, s.kv, func(tx kv.Tx) error {
		status, err := readStatus(tx)
		if err != nil {
			return err
		}

		for _, rec := range records {
			if status.Width == 0 {
				status.Width = rec.Width()
			}
			if rec.Width() != status.Width {
				return &domain.InvalidRecordError{
					Reason: fmt.Sprintf("expected %d features, got %d", status.Width, rec.Width()),
				}
			}
			if _, err := kv.AppendJSON(tx, recordsList, rec); err != nil {
				return err
			}
		}

		status.Pending += len(records)
		status.Total += len(records)
		return kv.SetJSON(tx, counterKey, status)
	})
	return wrapStorage("add records", err)
}

// PendingCount returns the number of records added since the last promotion.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	status, err := s.Status(ctx)
	if err != nil {
		return 0, err
	}
	return status.Pending, nil
}

// Status returns the full counter snapshot.
func (s *Store) Status(ctx context.Context) (domain.DatasetStatus, error) {
	var status domain.DatasetStatus
	err := kv.Read(ctx, s.kv, func(tx kv.Tx) error {
		var err error
		status, err = readStatus(tx)
		return err
	})
	return status, wrapStorage("read counter", err)
}

// AllRecords returns every record ever stored, oldest first.
func (s *Store) AllRecords(ctx context.Context) ([]domain.Record, error) {
	var records []domain.Record
	err := kv.Read(ctx, s.kv, func(tx kv.Tx) error {
		raw, err := tx.List(recordsList)
		if err != nil {
			return err
		}
		records = make([]domain.Record, 0, len(raw))
		for _, item := range raw {
			rec, err := decodeRecord(item)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, wrapStorage("load records", err)
	}
	return records, nil
}

// ResetCounter stamps the training time and recomputes the pending count as
// the records stored after the first consumed ones. Records that arrived
// while a run was training therefore stay pending.
func (s *Store) ResetCounter(ctx context.Context, consumed int) error {
	if consumed < 0 {
		return &domain.InvalidRecordError{Reason: fmt.Sprintf("consumed count %d is negative", consumed)}
	}
	err := kv.Write(ctx, s.kv, func(tx kv.Tx) error {
		status, err := readStatus(tx)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		status.Pending = max(0, min(status.Pending, status.Total-consumed))
		status.LastTrained = &now
		return kv.SetJSON(tx, counterKey, status)
	})
	return wrapStorage("reset counter", err)
}

func readStatus(tx kv.Tx) (domain.DatasetStatus, error) {
	var status domain.DatasetStatus
	if _, err := kv.GetJSON(tx, counterKey, &status); err != nil {
		return domain.DatasetStatus{}, err
	}
	return status, nil
}

func validate(rec domain.Record) error {
	if rec.Width() == 0 {
		return &domain.InvalidRecordError{Reason: "record has no features"}
	}
	for i, f := range rec.Features {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return &domain.InvalidRecordError{Reason: fmt.Sprintf("feature %d is not finite", i)}
		}
	}
	if math.IsNaN(rec.Label) || math.IsInf(rec.Label, 0) {
		return &domain.InvalidRecordError{Reason: "label is not finite"}
	}
	return nil
}
