package projection

import (
	"context"
	"sync"
)

// NewMemoryCheckpoints keeps cursors in process memory. A projection backed
// by it replays the whole ledger on restart, which is safe because handlers
// are idempotent.
func NewMemoryCheckpoints() *MemoryCheckpoints {
	return &MemoryCheckpoints{positions: map[string]uint64{}}
}

type MemoryCheckpoints struct {
	mu        sync.Mutex
	positions map[string]uint64
}

func (c *MemoryCheckpoints) Load(ctx context.Context, projection string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positions[projection], nil
}

func (c *MemoryCheckpoints) Save(ctx context.Context, projection string, position uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.positions[projection] = position
	return nil
}
