package queue

import "fmt"

// EntryID uniquely identifies an entry in a StageQueue.
type EntryID uint64

// StageQueueHooks observe entries and their block bits.
type StageQueueHooks[T any] struct {
	OnEnqueue     func(id EntryID, item T, tick int64)
	OnDequeue     func(id EntryID, item T, tick int64)
	OnBlockChange func(id EntryID, reason BlockIndex, blocked bool, tick int64)
}

type stageEntry[T any] struct {
	id      EntryID
	item    T
	blocks  blockBitmap
	pending bool
}

func (e *stageEntry[T]) ready() bool {
	return e.blocks.isZero() && !e.pending
}

// StageQueue holds work items that wait on a set of named conditions.
// An entry becomes ready once every block bit is cleared; ready entries
// are handed out round-robin.
type StageQueue[T any] struct {
	name     string
	capacity int
	mutate   MutateFunc
	hooks    StageQueueHooks[T]
	entries  []*stageEntry[T]
	index    map[EntryID]*stageEntry[T]
	nextPick int
	nextID   EntryID
}

// NewStageQueue creates an empty StageQueue (use UnlimitedCapacity for no bound).
func NewStageQueue[T any](name string, capacity int, mutate MutateFunc, hooks StageQueueHooks[T]) *StageQueue[T] {
	q := &StageQueue[T]{
		name:     name,
		capacity: capacity,
		mutate:   mutate,
		hooks:    hooks,
		index:    make(map[EntryID]*stageEntry[T]),
		nextID:   1,
	}
	q.notify()
	return q
}

// Name returns the queue name.
func (q *StageQueue[T]) Name() string {
	if q == nil {
		return ""
	}
	return q.name
}

// Len returns current entry count.
func (q *StageQueue[T]) Len() int {
	if q == nil {
		return 0
	}
	return len(q.entries)
}

// Enqueue inserts an item already blocked on reasons. The zero EntryID is
// never issued.
func (q *StageQueue[T]) Enqueue(item T, tick int64, reasons ...BlockIndex) (EntryID, bool) {
	if q == nil {
		return 0, false
	}
	if q.capacity >= 0 && len(q.entries) >= q.capacity {
		return 0, false
	}
	entry := &stageEntry[T]{id: q.nextID, item: item}
	for _, r := range reasons {
		entry.blocks.set(r)
	}
	q.nextID++
	q.entries = append(q.entries, entry)
	q.index[entry.id] = entry
	q.notify()
	if q.hooks.OnEnqueue != nil {
		q.hooks.OnEnqueue(entry.id, item, tick)
	}
	return entry.id, true
}

// Get returns the item stored under id.
func (q *StageQueue[T]) Get(id EntryID) (T, bool) {
	var zero T
	if q == nil {
		return zero, false
	}
	entry, ok := q.index[id]
	if !ok {
		return zero, false
	}
	return entry.item, true
}

// Blocked reports whether id still waits on reason.
func (q *StageQueue[T]) Blocked(id EntryID, reason BlockIndex) bool {
	if q == nil {
		return false
	}
	entry, ok := q.index[id]
	return ok && entry.blocks.test(reason)
}

// Remove deletes the entry whether or not it is ready.
func (q *StageQueue[T]) Remove(id EntryID, tick int64) (T, bool) {
	var zero T
	if q == nil {
		return zero, false
	}
	entry, ok := q.index[id]
	if !ok {
		return zero, false
	}
	q.drop(entry)
	if q.hooks.OnDequeue != nil {
		q.hooks.OnDequeue(entry.id, entry.item, tick)
	}
	q.notify()
	return entry.item, true
}

// PeekNext hands out the next ready entry and marks it pending until it
// is completed or released with ResetPending.
func (q *StageQueue[T]) PeekNext() (EntryID, T, bool) {
	var zero T
	if q == nil || len(q.entries) == 0 {
		return 0, zero, false
	}
	count := len(q.entries)
	for i := 0; i < count; i++ {
		idx := (q.nextPick + i) % count
		entry := q.entries[idx]
		if !entry.ready() {
			continue
		}
		entry.pending = true
		q.nextPick = (idx + 1) % count
		return entry.id, entry.item, true
	}
	return 0, zero, false
}

// Complete removes a processed entry.
func (q *StageQueue[T]) Complete(id EntryID, tick int64) (T, bool) {
	return q.Remove(id, tick)
}

// SetBlocked toggles one block bit for an entry.
func (q *StageQueue[T]) SetBlocked(id EntryID, reason BlockIndex, blocked bool, tick int64) error {
	if q == nil {
		return fmt.Errorf("stage queue is nil")
	}
	entry, ok := q.index[id]
	if !ok {
		return fmt.Errorf("entry %d not found in %s", id, q.name)
	}
	var changed bool
	if blocked {
		changed = entry.blocks.set(reason)
		entry.pending = false
	} else {
		changed = entry.blocks.clear(reason)
	}
	if changed && q.hooks.OnBlockChange != nil {
		q.hooks.OnBlockChange(id, reason, blocked, tick)
	}
	return nil
}

// ResetPending makes a handed-out entry eligible again.
func (q *StageQueue[T]) ResetPending(id EntryID) {
	if q == nil {
		return
	}
	if entry, ok := q.index[id]; ok {
		entry.pending = false
	}
}

// ForEach iterates over entries in enqueue order.
func (q *StageQueue[T]) ForEach(fn func(id EntryID, item T, ready bool)) {
	if q == nil || fn == nil {
		return
	}
	for _, entry := range q.entries {
		fn(entry.id, entry.item, entry.ready())
	}
}

func (q *StageQueue[T]) drop(entry *stageEntry[T]) {
	delete(q.index, entry.id)
	for idx, e := range q.entries {
		if e != entry {
			continue
		}
		copy(q.entries[idx:], q.entries[idx+1:])
		q.entries[len(q.entries)-1] = nil
		q.entries = q.entries[:len(q.entries)-1]
		if idx < q.nextPick {
			q.nextPick--
		}
		break
	}
	if len(q.entries) == 0 || q.nextPick >= len(q.entries) {
		q.nextPick = 0
	}
}

func (q *StageQueue[T]) notify() {
	if q == nil || q.mutate == nil {
		return
	}
	q.mutate(len(q.entries), q.capacity)
}
