package cache

import (
	"context"
	"sync/atomic"

	"github.com/okian/upready/internal/domain/model"
)

// Memory keeps the snapshot in process. It is lost on restart.
type Memory struct {
	snap atomic.Pointer[model.RefreshSnapshot]
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{}
}

// Get returns the cached snapshot, or nil.
func (m *Memory) Get(ctx context.Context) (*model.RefreshSnapshot, error) {
	return m.snap.Load(), ctx.Err()
}

// Set replaces the cached snapshot.
func (m *Memory) Set(_ context.Context, snap *model.RefreshSnapshot) error {
	m.snap.Store(snap)
	return nil
}

// Clear drops the cached snapshot.
func (m *Memory) Clear(context.Context) error {
	m.snap.Store(nil)
	return nil
}
