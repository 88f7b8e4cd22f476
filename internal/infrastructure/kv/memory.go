package kv

import (
	"context"
	"sync"
)

// MemoryStore keeps everything in process memory. Update transactions
// stage their writes and apply them only when fn succeeds.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
	lists  map[string][][]byte
	closed bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: map[string][]byte{},
		lists:  map[string][][]byte{},
	}
}

// View runs fn against a read-only snapshot.
func (s *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return fn(&memoryTx{store: s})
}

// Update runs fn and applies its staged writes on success.
func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx := &memoryTx{
		store:    s,
		writable: true,
		values:   map[string][]byte{},
		appends:  map[string][][]byte{},
	}
	if err := fn(tx); err != nil {
		return err
	}

	for k, v := range tx.values {
		s.values[k] = v
	}
	for list, items := range tx.appends {
		s.lists[list] = append(s.lists[list], items...)
	}
	return nil
}

// Close marks the store unusable.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type memoryTx struct {
	store    *MemoryStore
	writable bool
	values   map[string][]byte
	appends  map[string][][]byte
}

func (t *memoryTx) Get(key string) ([]byte, error) {
	if v, ok := t.values[key]; ok {
		return clone(v), nil
	}
	if v, ok := t.store.values[key]; ok {
		return clone(v), nil
	}
	return nil, ErrNotFound
}

func (t *memoryTx) Set(key string, value []byte) error {
	if !t.writable {
		return ErrReadOnly
	}
	t.values[key] = clone(value)
	return nil
}

func (t *memoryTx) Append(list string, value []byte) (int64, error) {
	if !t.writable {
		return 0, ErrReadOnly
	}
	t.appends[list] = append(t.appends[list], clone(value))
	return int64(len(t.store.lists[list]) + len(t.appends[list])), nil
}

func (t *memoryTx) List(list string) ([][]byte, error) {
	committed := t.store.lists[list]
	staged := t.appends[list]
	out := make([][]byte, 0, len(committed)+len(staged))
	for _, v := range committed {
		out = append(out, clone(v))
	}
	for _, v := range staged {
		out = append(out, clone(v))
	}
	return out, nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
