package queue

import "container/heap"

// TimeQueue is a single-threaded virtual clock. Callbacks run in order of
// their due tick; callbacks due on the same tick run in scheduling order.
type TimeQueue struct {
	now   int64
	seq   uint64
	items timerHeap
}

type timer struct {
	due int64
	seq uint64
	fn  func()
}

type timerHeap []timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) { *h = append(*h, x.(timer)) }

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = timer{}
	*h = old[:n-1]
	return item
}

// NewTimeQueue returns an empty queue at tick zero.
func NewTimeQueue() *TimeQueue {
	return &TimeQueue{}
}

// Now returns the current virtual tick.
func (q *TimeQueue) Now() int64 {
	if q == nil {
		return 0
	}
	return q.now
}

// Len returns the number of pending callbacks.
func (q *TimeQueue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.items)
}

// At schedules fn for the given tick. Past ticks run at the current tick.
func (q *TimeQueue) At(due int64, fn func()) {
	if q == nil || fn == nil {
		return
	}
	if due < q.now {
		due = q.now
	}
	heap.Push(&q.items, timer{due: due, seq: q.seq, fn: fn})
	q.seq++
}

// After schedules fn delay ticks from now.
func (q *TimeQueue) After(delay int64, fn func()) {
	if q == nil {
		return
	}
	q.At(q.now+delay, fn)
}

// NextDue reports the tick of the earliest pending callback.
func (q *TimeQueue) NextDue() (int64, bool) {
	if q == nil || len(q.items) == 0 {
		return 0, false
	}
	return q.items[0].due, true
}

// RunOne advances the clock to the earliest callback and runs it.
func (q *TimeQueue) RunOne() bool {
	if q == nil || len(q.items) == 0 {
		return false
	}
	t := heap.Pop(&q.items).(timer)
	q.now = t.due
	t.fn()
	return true
}

// RunUntil runs every callback due at or before the given tick, including
// ones scheduled while running, then leaves the clock at that tick. It
// returns how many callbacks ran.
func (q *TimeQueue) RunUntil(until int64) int {
	if q == nil {
		return 0
	}
	ran := 0
	for len(q.items) > 0 && q.items[0].due <= until {
		q.RunOne()
		ran++
	}
	if q.now < until {
		q.now = until
	}
	return ran
}
