// Package grid provides the static zone partition of the search area.
// Zones are square cells addressed by (row, col) with row-major storage.
package grid

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Coord addresses a zone by row and column.
type Coord struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.Row, c.Col)
}

// ZoneType classifies whether targets can occupy a zone.
type ZoneType uint8

const (
	ZoneOpen    ZoneType = iota // Walkable, searchable
	ZoneBlocked                 // Derived once from a mask, never changes
)

// MooreOffsets are the eight neighbor offsets around a zone, row-major order.
var MooreOffsets = [8]Coord{
	{Row: -1, Col: -1},
	{Row: -1, Col: 0},
	{Row: -1, Col: 1},
	{Row: 0, Col: -1},
	{Row: 0, Col: 1},
	{Row: 1, Col: -1},
	{Row: 1, Col: 0},
	{Row: 1, Col: 1},
}

// Zone is a single square cell of the search area.
type Zone struct {
	Coord  Coord     `json:"coord"`
	Center orb.Point `json:"center"`
	Size   float64   `json:"size"`
	Type   ZoneType  `json:"type"`
}

// Blocked reports whether the zone is BLOCKED.
func (z Zone) Blocked() bool {
	return z.Type == ZoneBlocked
}

// Bound returns the square extent of the zone.
func (z Zone) Bound() orb.Bound {
	h := z.Size / 2
	return orb.Bound{
		Min: orb.Point{z.Center[0] - h, z.Center[1] - h},
		Max: orb.Point{z.Center[0] + h, z.Center[1] + h},
	}
}

func (z Zone) String() string {
	return fmt.Sprintf("Zone%s", z.Coord)
}

// TypeName returns a human-readable name for a zone type.
func TypeName(t ZoneType) string {
	switch t {
	case ZoneOpen:
		return "Open"
	case ZoneBlocked:
		return "Blocked"
	default:
		return "Unknown"
	}
}
