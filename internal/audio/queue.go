package audio

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// blockQueue is the bounded hand-off between a producer and Capture.
// Producers never block: when the queue is full the incoming block is
// dropped and counted as an overrun.
type blockQueue struct {
	blocks    chan []int16
	closeOnce sync.Once
	overruns  atomic.Uint64

	// Consumer side, only touched by fill
	pending []int16
	ended   bool
}

func newBlockQueue(depth int) *blockQueue {
	if depth <= 0 {
		depth = 1
	}
	return &blockQueue{blocks: make(chan []int16, depth)}
}

// push offers a block without blocking. The block must not be reused by the caller.
func (q *blockQueue) push(block []int16) bool {
	select {
	case q.blocks <- block:
		return true
	default:
		q.overruns.Add(1)
		return false
	}
}

// close marks the end of the stream. Safe to call more than once.
func (q *blockQueue) close() {
	q.closeOnce.Do(func() { close(q.blocks) })
}

// fill copies samples into dst until it is full, maxWait elapses, or ctx is
// done. It returns the number of samples written.
func (q *blockQueue) fill(ctx context.Context, dst []int16, maxWait time.Duration) int {
	n := copy(dst, q.pending)
	q.pending = q.pending[n:]
	if n == len(dst) {
		return n
	}

	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	blocks := q.blocks
	if q.ended {
		blocks = nil
	}
	for n < len(dst) {
		select {
		case <-ctx.Done():
			return n
		case <-timer.C:
			return n
		case block, ok := <-blocks:
			if !ok {
				// Producer finished; wait out maxWait like a silent device.
				q.ended = true
				blocks = nil
				continue
			}
			c := copy(dst[n:], block)
			n += c
			q.pending = block[c:]
		}
	}
	return n
}

// Overruns returns how many producer blocks were dropped because the queue was full
func (q *blockQueue) Overruns() uint64 {
	return q.overruns.Load()
}
