package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeQueueOrdersByDueThenInsertion(t *testing.T) {
	q := NewTimeQueue()
	var order []string
	q.After(5, func() { order = append(order, "b") })
	q.After(1, func() { order = append(order, "a") })
	q.After(5, func() { order = append(order, "c") })
	q.After(9, func() { order = append(order, "late") })

	ran := q.RunUntil(5)
	assert.Equal(t, 3, ran)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, int64(5), q.Now())
	assert.Equal(t, 1, q.Len())

	due, ok := q.NextDue()
	require.True(t, ok)
	assert.Equal(t, int64(9), due)
}

func TestTimeQueueRunsCallbacksScheduledDuringRun(t *testing.T) {
	q := NewTimeQueue()
	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 4 {
			q.After(0, tick)
		}
	}
	q.After(2, tick)
	q.RunUntil(2)
	assert.Equal(t, 4, count)
	assert.Equal(t, int64(2), q.Now())
}

func TestTimeQueuePastDueRunsNow(t *testing.T) {
	q := NewTimeQueue()
	q.RunUntil(10)
	var at int64 = -1
	q.At(3, func() { at = q.Now() })
	require.True(t, q.RunOne())
	assert.Equal(t, int64(10), at)
	assert.False(t, q.RunOne())
}

func TestTimeQueueNilSafe(t *testing.T) {
	var q *TimeQueue
	q.After(1, func() {})
	assert.Equal(t, 0, q.Len())
	assert.False(t, q.RunOne())
	assert.Equal(t, int64(0), q.Now())
}
