// Package kv is the persistent key-value layer behind the dataset store and
// the model registry.
//
// A Store exposes read-only and read-write transactions. Writes inside one
// Update call are committed together or not at all. Components that must
// mutate state in a single commit join an ambient transaction carried by the
// context (see Atomically).
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Tx.Get for absent keys.
	ErrNotFound = errors.New("kv: key not found")
	// ErrReadOnly is returned when writing through a View transaction.
	ErrReadOnly = errors.New("kv: transaction is read-only")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("kv: store is closed")
)

// Tx is a transactional view over the store.
type Tx interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	// Append adds value at the end of list and returns its 1-based position.
	Append(list string, value []byte) (int64, error)
	// List returns the values of list in append order.
	List(list string) ([][]byte, error)
}

// Store is a durable key-value store with atomic transactions.
type Store interface {
	View(ctx context.Context, fn func(tx Tx) error) error
	Update(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// commitAttempts bounds how often an Update that lost a write conflict is
// replayed by backends with optimistic concurrency.
const commitAttempts = 5

// retryConflicts runs op again while it fails with an error conflict reports
// as retryable.
func retryConflicts(ctx context.Context, conflict func(error) bool, op func() error) error {
	var err error
	for attempt := 0; attempt < commitAttempts; attempt++ {
		if err = op(); err == nil || !conflict(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Join(err, ctxErr)
		}
	}
	return fmt.Errorf("gave up after %d conflicting commits: %w", commitAttempts, err)
}

type txKey struct{}

type ambientTx struct {
	store    Store
	tx       Tx
	writable bool
}

func ambient(ctx context.Context, store Store) (*ambientTx, bool) {
	a, ok := ctx.Value(txKey{}).(*ambientTx)
	if !ok || a.store != store {
		return nil, false
	}
	return a, true
}

// Atomically runs fn inside one write transaction of store. Read and Write
// calls made with the derived context join that transaction instead of
// opening their own.
func Atomically(ctx context.Context, store Store, fn func(ctx context.Context) error) error {
	if a, ok := ambient(ctx, store); ok && a.writable {
		return fn(ctx)
	}
	return store.Update(ctx, func(tx Tx) error {
		return fn(context.WithValue(ctx, txKey{}, &ambientTx{store: store, tx: tx, writable: true}))
	})
}

// Read runs fn in the ambient transaction if any, otherwise in a new View.
func Read(ctx context.Context, store Store, fn func(tx Tx) error) error {
	if a, ok := ambient(ctx, store); ok {
		return fn(a.tx)
	}
	return store.View(ctx, fn)
}

// Write runs fn in the ambient write transaction if any, otherwise in a new Update.
func Write(ctx context.Context, store Store, fn func(tx Tx) error) error {
	if a, ok := ambient(ctx, store); ok {
		if !a.writable {
			return ErrReadOnly
		}
		return fn(a.tx)
	}
	return store.Update(ctx, fn)
}

// Transactor adapts a Store to ports.Transactor.
type Transactor struct {
	store Store
}

// NewTransactor wraps store.
func NewTransactor(store Store) *Transactor {
	return &Transactor{store: store}
}

// Atomically commits everything fn writes through store in one transaction.
func (t *Transactor) Atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	return Atomically(ctx, t.store, fn)
}

// GetJSON decodes the value at key into v. It reports false when the key is absent.
func GetJSON(tx Tx, key string, v any) (bool, error) {
	raw, err := tx.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it at key.
func SetJSON(tx Tx, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return tx.Set(key, raw)
}

// AppendJSON encodes v and appends it to list.
func AppendJSON(tx Tx, list string, v any) (int64, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("encode %s item: %w", list, err)
	}
	return tx.Append(list, raw)
}
