package queue

import "sync/atomic"

// mpscSlot carries a per-slot sequence number alongside the item so
// producers can tell, without a shared count, whether a slot is free to
// claim and the consumer can tell whether a claimed slot has finished being
// published. This is the classic bounded MPMC ring algorithm, specialized
// here to a single consumer.
type mpscSlot[T any] struct {
	seq  atomic.Uint64
	item T
}

// MPSC is a multi-producer single-consumer bounded ring queue. Producers
// reserve a slot index with a fetch-add on the shared tail and then publish
// into that slot independently, so producers never serialize on a single
// counter beyond the fetch-add itself; the consumer polls each slot's
// sequence number rather than trusting a shared size.
//
// FIFO is guaranteed per slot position but NOT across producers in
// real time: two producers racing for adjacent slots may interleave in
// either order.
type MPSC[T any] struct {
	head paddedUint64 // consumer-owned
	_    [cacheLineSize]byte
	tail paddedUint64 // shared producer fetch-add cursor
	_    [cacheLineSize]byte

	dropped paddedUint32

	buffer []mpscSlot[T]
	mask   uint64
}

// NewMPSC creates an MPSC queue. capacity rounds up to a power of two.
func NewMPSC[T any](capacity int) *MPSC[T] {
	n := uint64(roundToPow2(capacity))
	q := &MPSC[T]{
		buffer: make([]mpscSlot[T], n),
		mask:   n - 1,
	}
	for i := range q.buffer {
		q.buffer[i].seq.Store(uint64(i))
	}
	return q
}

// TryPush reserves and publishes a slot. Safe for concurrent producers.
func (q *MPSC[T]) TryPush(item T) bool {
	pos := q.tail.v.Load()
	for {
		slot := &q.buffer[pos&q.mask]
		seq := slot.seq.Load()
		diff := int64(seq) - int64(pos)

		switch {
		case diff == 0:
			// One slot stays reserved, as in SPSC: full at capacity-1 items.
			if int64(pos-q.head.v.Load()) >= int64(q.mask) {
				q.dropped.v.Add(1)
				return false
			}
			if q.tail.v.CompareAndSwap(pos, pos+1) {
				slot.item = item
				slot.seq.Store(pos + 1) // release: publishes item to the consumer
				return true
			}
			pos = q.tail.v.Load()
		case diff < 0:
			// Slot still holds an unconsumed item from a full lap ago: full.
			q.dropped.v.Add(1)
			return false
		default:
			pos = q.tail.v.Load()
		}
	}
}

// TryPop removes the oldest published item (single consumer only).
func (q *MPSC[T]) TryPop() (T, bool) {
	var zero T
	pos := q.head.v.Load()
	slot := &q.buffer[pos&q.mask]
	seq := slot.seq.Load() // acquire: pairs with TryPush's release
	diff := int64(seq) - int64(pos+1)

	if diff == 0 {
		item := slot.item
		slot.item = zero
		slot.seq.Store(pos + q.mask + 1)
		q.head.v.Store(pos + 1)
		return item, true
	}
	return zero, false
}

// PopBatch drains up to max contiguous items, preserving per-slot FIFO order.
func (q *MPSC[T]) PopBatch(max int) []T {
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
func (q *MPSC[T]) Len() int {
	tail := q.tail.v.Load()
	head := q.head.v.Load()
	return int(tail - head)
}

// Capacity returns the ring's power-of-two slot count.
func (q *MPSC[T]) Capacity() int {
	return int(q.mask + 1)
}

// Utilisation returns instantaneous size divided by (capacity-1).
func (q *MPSC[T]) Utilisation() float64 {
	usable := float64(q.mask)
	if usable == 0 {
		return 0
	}
	return float64(q.Len()) / usable
}

// DroppedCount returns the number of TryPush calls rejected due to a full queue.
func (q *MPSC[T]) DroppedCount() uint32 {
	return q.dropped.v.Load()
}
