package queue

// SPSC is a single-producer single-consumer bounded ring queue, based on
// Lamport's ring buffer with cached-cursor optimization: each side caches
// its last observed view of the other side's cursor so the common case
// (queue neither full nor empty) touches no cross-core atomic beyond the
// cursor it already owns.
//
// Capacity rounds up to the next power of two; one slot is reserved so
// size() == capacity-1 unambiguously means full.
type SPSC[T any] struct {
	head       paddedUint64 // consumer-owned read cursor
	cachedTail uint64       // consumer's cached view of tail
	_          [cacheLineSize]byte

	tail       paddedUint64 // producer-owned write cursor
	cachedHead uint64       // producer's cached view of head
	_          [cacheLineSize]byte

	dropped paddedUint32

	buffer []T
	mask   uint64
}

// NewSPSC creates an SPSC queue. capacity rounds up to a power of two.
func NewSPSC[T any](capacity int) *SPSC[T] {
	n := uint64(roundToPow2(capacity))
	return &SPSC[T]{
		buffer: make([]T, n),
		mask:   n - 1,
	}
}

// TryPush adds an item (producer side only). Returns false, and increments
// the drop counter, if the queue is full.
func (q *SPSC[T]) TryPush(item T) bool {
	tail := q.tail.v.Load()
	if tail-q.cachedHead >= q.mask {
		q.cachedHead = q.head.v.Load()
		if tail-q.cachedHead >= q.mask {
			q.dropped.v.Add(1)
			return false
		}
	}
	q.buffer[tail&q.mask] = item
	q.tail.v.Store(tail + 1) // release: publishes the slot write above
	return true
}

// TryPop removes the oldest item (consumer side only).
func (q *SPSC[T]) TryPop() (T, bool) {
	var zero T
	head := q.head.v.Load()
	if head >= q.cachedTail {
		q.cachedTail = q.tail.v.Load() // acquire: pairs with TryPush's release
		if head >= q.cachedTail {
			return zero, false
		}
	}
	item := q.buffer[head&q.mask]
	q.buffer[head&q.mask] = zero
	q.head.v.Store(head + 1)
	return item, true
}

// PopBatch drains up to max contiguous items, preserving FIFO order.
func (q *SPSC[T]) PopBatch(max int) []T {
	if max <= 0 {
		return nil
	}
	out := make([]T, 0, max)
	for i := 0; i < max; i++ {
		item, ok := q.TryPop()
		if !ok {
			break
		}
		out = append(out, item)
	}
	return out
}

// Len returns an eventually-consistent instantaneous size.
func (q *SPSC[T]) Len() int {
	tail := q.tail.v.Load()
	head := q.head.v.Load()
	return int(tail - head)
}

// Capacity returns the ring's power-of-two slot count; one slot of it is
// reserved, so usable capacity is Capacity()-1.
func (q *SPSC[T]) Capacity() int {
	return int(q.mask + 1)
}

// Utilisation returns instantaneous size divided by (capacity-1).
func (q *SPSC[T]) Utilisation() float64 {
	usable := float64(q.mask)
	if usable == 0 {
		return 0
	}
	return float64(q.Len()) / usable
}

// DroppedCount returns the number of TryPush calls rejected due to a full queue.
func (q *SPSC[T]) DroppedCount() uint32 {
	return q.dropped.v.Load()
}
