package storage

import (
	"context"
	"sync"
)

// Memory is an in-process Blob. FailSave, when set, is returned by Save
// without storing anything.
type Memory struct {
	mu       sync.Mutex
	data     []byte
	saves    int
	closed   bool
	FailSave error
}

func NewMemory() *Memory { return &Memory{} }

// NewMemoryWith returns a Memory preloaded with data.
func NewMemoryWith(data []byte) *Memory {
	m := &Memory{}
	m.data = append([]byte(nil), data...)
	return m
}

func (m *Memory) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if m.data == nil {
		return nil, ErrNotFound
	}
	return append([]byte(nil), m.data...), nil
}

func (m *Memory) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.FailSave != nil {
		return m.FailSave
	}
	m.data = append([]byte(nil), data...)
	m.saves++
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SetFailSave toggles save failures.
func (m *Memory) SetFailSave(err error) {
	m.mu.Lock()
	m.FailSave = err
	m.mu.Unlock()
}

// Saves reports how many successful saves happened.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Bytes returns a copy of the last saved blob.
func (m *Memory) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}
