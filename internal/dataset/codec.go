package dataset

import (
	"encoding/json"
	"errors"
	"fmt"

	"ModelRetrainer/internal/domain"
)

func decodeRecord(raw []byte) (domain.Record, error) {
	var rec domain.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// wrapStorage turns backend failures into StorageError while letting
// validation errors through untouched.
func wrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	var invalid *domain.InvalidRecordError
	if errors.As(err, &invalid) {
		return err
	}
	var storageErr *domain.StorageError
	if errors.As(err, &storageErr) {
		return err
	}
	return &domain.StorageError{Op: op, Err: err}
}
