package tile

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/example/tile_itc/core"
	"github.com/example/tile_itc/queue"
	catrate "github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetWarningsAreThrottled(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig()
	cfg.Logger = stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(&buf), stumpy.WithTimeField("")),
		stumpy.L.WithLevel(logiface.LevelDebug),
	).Logger()
	cfg.ResetLimiter = catrate.NewLimiter(map[time.Duration]int{time.Hour: 1})
	tl, err := New(7, cfg, queue.NewTimeQueue(), nil)
	require.NoError(t, err)

	tl.ITC(core.DirE).Reset(nil)
	tl.ITC(core.DirE).Reset(ErrDrainStalled)
	tl.ITC(core.DirW).Reset(nil)

	var resets []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if strings.Contains(line, `"msg":"link reset"`) {
			resets = append(resets, line)
		}
	}
	require.Len(t, resets, 3)
	assert.Contains(t, resets[0], `"lvl":"warning"`)
	assert.Contains(t, resets[0], `"dir":"E"`)
	assert.Contains(t, resets[0], ErrForced.Error())
	assert.Contains(t, resets[1], `"lvl":"debug"`)
	assert.Contains(t, resets[1], ErrDrainStalled.Error())
	assert.Contains(t, resets[2], `"lvl":"warning"`, "categories are per direction")
	assert.Equal(t, uint64(2), tl.ITC(core.DirE).Stats().Resets)
}
