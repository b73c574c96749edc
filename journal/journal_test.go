package journal

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/example/tile_itc/core"
	"github.com/example/tile_itc/hooks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalRecordsEvents(t *testing.T) {
	j, err := Open(":memory:", 2)
	require.NoError(t, err)
	defer j.Close()

	broker := hooks.NewPluginBroker()
	broker.RegisterBundle(hooks.PluginDescriptor{Name: PluginName, Category: hooks.PluginCategoryInstrumentation}, j.Bundle())

	require.NoError(t, broker.EmitLinkState(&hooks.LinkStateContext{Tile: 1, Dir: core.DirE, From: core.LinkShut, To: core.LinkDrain, Tick: 3}))
	require.NoError(t, broker.EmitLinkReset(&hooks.LinkResetContext{Tile: 1, Dir: core.DirE, State: core.LinkOpen, Cause: errors.New("boom"), Tick: 9}))
	require.NoError(t, broker.EmitCircuit(&hooks.CircuitContext{Tile: 2, Dir: core.DirW, Number: 4, Sent: true, Op: core.SubRing, State: core.CircuitRung, Tick: 10}))
	require.NoError(t, broker.EmitWindow(&hooks.WindowContext{Tile: 2, Slot: 0, Center: core.Pt(3, 4), Radius: 2, Circuits: 1, Outcome: hooks.WindowExecuted, Tick: 12}))
	require.NoError(t, j.Flush())

	assert.Equal(t, int64(4), j.Rows())
	for table, want := range map[string]int{"link_events": 2, "circuit_events": 1, "window_events": 1} {
		n, err := j.Count(table)
		require.NoError(t, err)
		assert.Equal(t, want, n, table)
	}

	var cause string
	require.NoError(t, j.tx.QueryRow(`SELECT cause FROM link_events WHERE kind = 'reset'`).Scan(&cause))
	assert.Equal(t, "boom", cause)

	_, err = j.Count("sqlite_master")
	assert.Error(t, err)
}

func TestJournalPluginLoadsAndCloses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.db")
	reg := hooks.NewRegistry(nil)
	require.NoError(t, Register(reg, path))
	assert.Equal(t, []string{PluginName}, reg.Names())
	require.NoError(t, reg.Load([]string{PluginName}))

	require.NoError(t, reg.Broker().EmitLinkState(&hooks.LinkStateContext{Tile: 0, Dir: core.DirNE, From: core.LinkCacheXG, To: core.LinkOpen}))
	require.NoError(t, reg.Close())

	j, err := Open(path, 1)
	require.NoError(t, err)
	defer j.Close()
	n, err := j.Count("link_events")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestJournalClosedRejectsWrites(t *testing.T) {
	j, err := Open(":memory:", 0)
	require.NoError(t, err)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())
	err = j.Bundle().LinkState[0](&hooks.LinkStateContext{})
	assert.ErrorIs(t, err, ErrClosed)
}
