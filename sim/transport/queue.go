package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// OverflowPolicy selects what a full queue does with a new item.
type OverflowPolicy string

const (
	// DropOldest evicts the head of the queue to make room.
	DropOldest OverflowPolicy = "drop_oldest"
	// Block waits up to the block timeout for room, then drops the new item.
	Block OverflowPolicy = "block"
)

// ErrQueueClosed is returned by Pop once a closed queue is drained.
var ErrQueueClosed = errors.New("queue closed")

// QueueConfig sizes a queue and sets its overflow behaviour.
type QueueConfig struct {
	Size         int            `yaml:"size"`
	Overflow     OverflowPolicy `yaml:"overflow"`
	BlockTimeout time.Duration  `yaml:"block_timeout"`
}

// DefaultQueueConfig returns a 1024-item drop-oldest queue.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{Size: 1024, Overflow: DropOldest, BlockTimeout: time.Second}
}

// Validate checks the queue section.
func (c QueueConfig) Validate(prefix string) error {
	if c.Size <= 0 {
		return fmt.Errorf("%s.size must be positive, got %d", prefix, c.Size)
	}
	switch c.Overflow {
	case DropOldest:
	case Block:
		if c.BlockTimeout <= 0 {
			return fmt.Errorf("%s.block_timeout must be positive with overflow block, got %s", prefix, c.BlockTimeout)
		}
	default:
		return fmt.Errorf("%s.overflow: unknown policy %q; valid: drop_oldest, block", prefix, c.Overflow)
	}
	return nil
}

// Queue is a bounded FIFO. Producers never grow it past its size.
type Queue[T any] struct {
	cfg    QueueConfig
	mu     sync.Mutex // serializes producers and Close
	closed bool
	items  chan T
}

// NewQueue creates an empty queue.
func NewQueue[T any](cfg QueueConfig) *Queue[T] {
	return &Queue[T]{cfg: cfg, items: make(chan T, cfg.Size)}
}

// Push enqueues item and returns how many items were dropped to honour the bound
// (0 or 1). Pushing to a closed queue drops the item.
func (q *Queue[T]) Push(item T) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 1
	}
	select {
	case q.items <- item:
		return 0
	default:
	}

	if q.cfg.Overflow == Block {
		timer := time.NewTimer(q.cfg.BlockTimeout)
		defer timer.Stop()
		select {
		case q.items <- item:
			return 0
		case <-timer.C:
			return 1
		}
	}

	dropped := 0
	for {
		select {
		case <-q.items:
			dropped++
		default:
		}
		select {
		case q.items <- item:
			return dropped
		default:
		}
	}
}

// Pop removes the head item, waiting until one is available, ctx ends, or
// the queue is closed and drained.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	select {
	case item, ok := <-q.items:
		if !ok {
			return zero, ErrQueueClosed
		}
		return item, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Close stops accepting items. Queued items remain poppable.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.items)
	}
}
