package queue

// UnlimitedCapacity disables the length bound of a queue.
const UnlimitedCapacity = -1

// MutateFunc is invoked after queue length or capacity changes.
type MutateFunc func(length int, capacity int)

// QueueHooks observe items entering and leaving a queue.
type QueueHooks[T any] struct {
	OnEnqueue func(item T, tick int64)
	OnDequeue func(item T, tick int64)
}

// TrackedQueue is a bounded FIFO that reports its occupancy.
type TrackedQueue[T any] struct {
	name     string
	capacity int
	items    []T
	head     int
	hooks    QueueHooks[T]
	mutate   MutateFunc
}

// NewTrackedQueue constructs a tracked queue with optional hooks and mutate callback.
func NewTrackedQueue[T any](name string, capacity int, mutate MutateFunc, hooks QueueHooks[T]) *TrackedQueue[T] {
	q := &TrackedQueue[T]{
		name:     name,
		capacity: capacity,
		hooks:    hooks,
		mutate:   mutate,
	}
	q.notify()
	return q
}

// Name returns the queue name.
func (q *TrackedQueue[T]) Name() string {
	if q == nil {
		return ""
	}
	return q.name
}

// Capacity returns the length bound (-1 for unlimited).
func (q *TrackedQueue[T]) Capacity() int {
	if q == nil {
		return 0
	}
	return q.capacity
}

// SetCapacity changes the bound. Items already queued are kept.
func (q *TrackedQueue[T]) SetCapacity(capacity int) {
	if q == nil {
		return
	}
	q.capacity = capacity
	q.notify()
}

// Len returns the number of queued items.
func (q *TrackedQueue[T]) Len() int {
	if q == nil {
		return 0
	}
	return len(q.items) - q.head
}

// CanAccept checks whether n more items fit.
func (q *TrackedQueue[T]) CanAccept(n int) bool {
	if q == nil {
		return false
	}
	return q.capacity < 0 || q.Len()+n <= q.capacity
}

// Enqueue appends an item. Returns false when the queue is full.
func (q *TrackedQueue[T]) Enqueue(item T, tick int64) bool {
	if !q.CanAccept(1) {
		return false
	}
	if q.head > 0 && q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	q.items = append(q.items, item)
	if q.hooks.OnEnqueue != nil {
		q.hooks.OnEnqueue(item, tick)
	}
	q.notify()
	return true
}

// Peek returns the front item without removing it.
func (q *TrackedQueue[T]) Peek() (T, bool) {
	var zero T
	if q.Len() == 0 {
		return zero, false
	}
	return q.items[q.head], true
}

// PopFront removes and returns the front item.
func (q *TrackedQueue[T]) PopFront(tick int64) (T, bool) {
	var zero T
	if q.Len() == 0 {
		return zero, false
	}
	item := q.items[q.head]
	q.items[q.head] = zero
	q.head++
	if q.head > len(q.items)/2 && q.head > 16 {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	if q.hooks.OnDequeue != nil {
		q.hooks.OnDequeue(item, tick)
	}
	q.notify()
	return item, true
}

// Clear drops every queued item without running dequeue hooks and
// returns how many were dropped.
func (q *TrackedQueue[T]) Clear() int {
	if q == nil {
		return 0
	}
	n := q.Len()
	clear(q.items)
	q.items = q.items[:0]
	q.head = 0
	q.notify()
	return n
}

// Items returns a copy of the queued items, front first.
func (q *TrackedQueue[T]) Items() []T {
	if q.Len() == 0 {
		return nil
	}
	out := make([]T, q.Len())
	copy(out, q.items[q.head:])
	return out
}

func (q *TrackedQueue[T]) notify() {
	if q == nil || q.mutate == nil {
		return
	}
	q.mutate(q.Len(), q.capacity)
}
