package service

import (
	"context"
	"sync"
	"time"

	dErrors "mppchs/pkg/domain-errors"
)

// defaultTxTimeout is the maximum duration of one transition.
const defaultTxTimeout = 5 * time.Second

// Checkpointer is implemented by in-memory stores that can snapshot their
// state and restore it.
type Checkpointer interface {
	Checkpoint() func()
}

// InMemoryTx serializes transitions behind one lock and restores every
// checkpointed store when fn fails, so a failed transition leaves no trace.
type InMemoryTx struct {
	mu          sync.Mutex
	stores      Stores
	checkpoints []Checkpointer
	timeout     time.Duration
}

// NewInMemoryTx binds stores to a lock. checkpoints are the stores rolled
// back on failure; pass every store that fn may write to.
func NewInMemoryTx(stores Stores, checkpoints ...Checkpointer) *InMemoryTx {
	return &InMemoryTx{stores: stores, checkpoints: checkpoints}
}

// WithTimeout overrides the default transaction timeout.
func (t *InMemoryTx) WithTimeout(timeout time.Duration) *InMemoryTx {
	t.timeout = timeout
	return t
}

func (t *InMemoryTx) RunInTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	restores := make([]func(), 0, len(t.checkpoints))
	for _, c := range t.checkpoints {
		restores = append(restores, c.Checkpoint())
	}
	if err := fn(ctx, t.stores); err != nil {
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
		return err
	}
	return nil
}
