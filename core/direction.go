package core

import "fmt"

// Dir is one of the eight compass directions around a tile. Only six of
// them (all but N and S) name a neighbor on the hex lattice.
type Dir uint8

const (
	DirN Dir = iota
	DirNE
	DirE
	DirSE
	DirS
	DirSW
	DirW
	DirNW
)

// DirCount is the number of compass directions.
const DirCount = 8

// ITCDirs lists the directions that carry an inter-tile link, in the
// order tiles create their endpoints.
var ITCDirs = [...]Dir{DirNE, DirE, DirSE, DirSW, DirW, DirNW}

var dirNames = [DirCount]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// String returns the short compass name.
func (d Dir) String() string {
	if d >= DirCount {
		return fmt.Sprintf("Dir(%d)", uint8(d))
	}
	return dirNames[d]
}

// Opposite returns the direction pointing back at this tile from the neighbor.
func (d Dir) Opposite() Dir {
	return (d + DirCount/2) % DirCount
}

// IsITC reports whether d names a hex neighbor.
func (d Dir) IsITC() bool {
	return d < DirCount && d != DirN && d != DirS
}

// IsEastward reports whether d points into the eastern half plane.
func (d Dir) IsEastward() bool {
	return d == DirNE || d == DirE || d == DirSE
}

// ParseDir resolves a compass name such as "NE".
func ParseDir(name string) (Dir, error) {
	for i, n := range dirNames {
		if n == name {
			return Dir(i), nil
		}
	}
	return 0, fmt.Errorf("unknown direction %q", name)
}
