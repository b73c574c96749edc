package simulator

import (
	"testing"

	"github.com/example/tile_itc/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFault(t *testing.T) {
	f, err := ParseFault(" 200:sever:3:ne ")
	require.NoError(t, err)
	assert.Equal(t, Fault{Tick: 200, Kind: FaultSever, Tile: 3, Dir: core.DirNE}, f)
	assert.Equal(t, "200:sever:3:NE", f.String())

	for _, bad := range []string{
		"", "1:reset:0", "x:reset:0:E", "-1:reset:0:E", "1:melt:0:E", "1:reset:-2:E", "1:reset:0:Q", "1:reset:0:N",
	} {
		_, err := ParseFault(bad)
		assert.Error(t, err, bad)
	}
}

func TestPlanDrainsInTickOrder(t *testing.T) {
	p, err := ParsePlan([]string{"30:restore:0:E", "10:sever:0:E", "10:reset:1:W"})
	require.NoError(t, err)
	assert.Equal(t, 3, p.Remaining())
	due, ok := p.NextDue()
	require.True(t, ok)
	assert.Equal(t, int64(10), due)

	var seen []FaultKind
	h := FaultHandlerFunc(func(f Fault) bool {
		seen = append(seen, f.Kind)
		return true
	})
	assert.True(t, p.DrainDue(5, h))
	assert.Empty(t, seen)
	assert.True(t, p.DrainDue(20, h))
	assert.Equal(t, []FaultKind{FaultSever, FaultReset}, seen)
	assert.True(t, p.DrainDue(30, h))
	assert.Equal(t, 0, p.Remaining())
	_, ok = p.NextDue()
	assert.False(t, ok)
}

func TestPlanStopsWhenHandlerDeclines(t *testing.T) {
	p := NewPlan([]Fault{{Tick: 1, Kind: FaultReset}, {Tick: 1, Kind: FaultSever}})
	calls := 0
	assert.False(t, p.DrainDue(1, FaultHandlerFunc(func(Fault) bool {
		calls++
		return false
	})))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, p.Remaining())

	var nilPlan *Plan
	assert.True(t, nilPlan.DrainDue(1, FaultHandlerFunc(nil)))
	assert.Zero(t, nilPlan.Remaining())
}
