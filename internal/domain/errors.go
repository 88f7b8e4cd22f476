package domain

import (
	"errors"
	"fmt"
)

// ErrEmptyRegistry is returned while no model has been promoted or seeded.
var ErrEmptyRegistry = errors.New("model registry is empty: seed an initial model first")

// ErrAlreadySeeded is returned when seeding a registry that has history.
var ErrAlreadySeeded = errors.New("model registry already holds a production model")

// ErrStaleIncumbent is returned when the production model changed between
// reading it and promoting over it.
var ErrStaleIncumbent = errors.New("production model changed since it was read")

// StorageError reports a durability failure. The whole operation should be retried.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// InsufficientDataError reports degenerate training input.
type InsufficientDataError struct {
	Reason string
}

func (e *InsufficientDataError) Error() string {
	return "insufficient data: " + e.Reason
}

// TrainingError reports a numerical failure inside the trainer.
type TrainingError struct {
	Reason string
	Err    error
}

func (e *TrainingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("training failed: %s: %v", e.Reason, e.Err)
	}
	return "training failed: " + e.Reason
}

func (e *TrainingError) Unwrap() error {
	return e.Err
}

// InvalidRecordError rejects a record at ingestion.
type InvalidRecordError struct {
	Reason string
}

func (e *InvalidRecordError) Error() string {
	return "invalid record: " + e.Reason
}
