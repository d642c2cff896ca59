// Package queue implements the bounded lock-free ring queue used to hand
// typed messages from producer stage(s) to the aggregator's single consumer
// without blocking. Two variants are provided: SPSC for the common
// single-producer pipeline and MPSC for the case where several transport
// subscriptions (internal/ingress) feed one aggregator.
//
// Both variants reserve one slot to distinguish full from empty so neither
// side needs a separately synchronized count, and keep producer/consumer
// cursors on distinct cache lines to avoid false sharing under contention.
package queue

import "sync/atomic"

// cacheLineSize is the padding unit used to keep hot atomics on separate
// cache lines. 64 bytes covers every mainstream x86_64/arm64 target.
const cacheLineSize = 64

// paddedUint64 is an atomic counter padded out to a full cache line.
type paddedUint64 struct {
	v atomic.Uint64
	_ [cacheLineSize - 8]byte
}

// paddedUint32 is an atomic counter (the drop counter) padded to a cache
// line, kept separate from the hot cursors above.
type paddedUint32 struct {
	v atomic.Uint32
	_ [cacheLineSize - 4]byte
}

func roundToPow2(n int) int {
	if n < 2 {
		return 2
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Queue is the common read side shared by SPSC and MPSC queues.
type Queue[T any] interface {
	TryPush(item T) bool
	TryPop() (T, bool)
	PopBatch(max int) []T
	Len() int
	Capacity() int
	Utilisation() float64
	DroppedCount() uint32
}
