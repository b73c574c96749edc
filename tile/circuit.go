package tile

import (
	"fmt"

	"github.com/example/tile_itc/core"
)

// Circuit is one numbered lock slot on a link. Active circuits carry the
// handle of the local window that owns them; passive circuits are paired
// with the passive window at the same number on their link.
type Circuit struct {
	number  int
	passive bool
	state   core.CircuitState
	window  EWHandle
	yoink   int8
	shipped int
}

func (c Circuit) Number() int              { return c.number }
func (c Circuit) Passive() bool            { return c.passive }
func (c Circuit) State() core.CircuitState { return c.state }
func (c Circuit) Window() EWHandle         { return c.window }
func (c Circuit) Held() bool               { return c.state.Held() }
func (c Circuit) Shipped() int             { return c.shipped }

// Yoink returns the tie-break value, or -1 when unset.
func (c Circuit) Yoink() int8 { return c.yoink }

func (c Circuit) String() string {
	side := "active"
	if c.passive {
		side = "passive"
	}
	return fmt.Sprintf("%s#%d[%v]", side, c.number, c.state)
}

func (c *Circuit) reinit() {
	c.state = core.CircuitUnused
	c.window = EWHandle{}
	c.yoink = -1
	c.shipped = 0
}

// yoinkWins decides a race between our RUNG circuit and a conflicting
// RING from the neighbor in direction myDir. Higher yoink wins; on a tie
// the tile whose link faces east keeps its lock.
func yoinkWins(mine, theirs int8, myDir core.Dir) bool {
	if mine != theirs {
		return mine > theirs
	}
	return myDir.IsEastward()
}
