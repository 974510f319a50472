// Package txqueue serializes transaction signing per (wallet, chain) key.
//
// A single wallet's nonce sequence is shared by every provider that acts on
// its behalf; two concurrently submitted transactions from the same wallet on
// the same chain can race and one will be rejected or silently dropped by the
// node. The queue guarantees exactly one signing or broadcast operation is in
// flight per key, FIFO by submission order, while operations on different
// keys proceed independently.
package txqueue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/solverhq/rebalancer/pkg/metrics"
)

// SigningQueue hands out per-key slots. Keys are created lazily and never
// removed; the key space is bounded by wallets × chains.
type SigningQueue struct {
	mu    sync.Mutex
	slots map[queueKey]chan struct{}
}

type queueKey struct {
	wallet  common.Address
	chainID int
}

// NewSigningQueue creates an empty signing queue.
func NewSigningQueue() *SigningQueue {
	return &SigningQueue{slots: make(map[queueKey]chan struct{})}
}

func (q *SigningQueue) slot(wallet common.Address, chainID int) chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := queueKey{wallet: wallet, chainID: chainID}
	slot, ok := q.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		q.slots[key] = slot
	}
	return slot
}

// Enqueue runs task while holding the signing slot for (wallet, chainID).
// Waiters acquire the slot in submission order; ctx cancellation abandons the
// wait without running the task.
func (q *SigningQueue) Enqueue(ctx context.Context, wallet common.Address, chainID int, task func() error) error {
	slot := q.slot(wallet, chainID)

	start := time.Now()
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	metrics.SigningQueueWait.WithLabelValues(strconv.Itoa(chainID)).Observe(time.Since(start).Seconds())

	defer func() { <-slot }()
	return task()
}
