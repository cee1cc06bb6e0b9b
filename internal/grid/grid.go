package grid

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ErrMaskApplied is returned when a BLOCKED mask is applied twice.
var ErrMaskApplied = errors.New("grid: mask already applied")

// Grid holds the full zone array, the zone size and the mission base.
type Grid struct {
	rows     int
	cols     int
	zoneSize float64
	home     orb.Point
	zones    []Zone // row-major
	masked   bool
}

// New creates an all-OPEN grid of rows×cols zones of the given edge length.
func New(rows, cols int, zoneSize float64, home orb.Point) *Grid {
	g := &Grid{
		rows:     rows,
		cols:     cols,
		zoneSize: zoneSize,
		home:     home,
		zones:    make([]Zone, rows*cols),
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			g.zones[r*cols+c] = Zone{
				Coord:  Coord{Row: r, Col: c},
				Center: orb.Point{zoneSize * (float64(c) + 0.5), zoneSize * (float64(r) + 0.5)},
				Size:   zoneSize,
				Type:   ZoneOpen,
			}
		}
	}
	return g
}

// Rows returns the number of zone rows.
func (g *Grid) Rows() int { return g.rows }

// Cols returns the number of zone columns.
func (g *Grid) Cols() int { return g.cols }

// ZoneSize returns the zone edge length.
func (g *Grid) ZoneSize() float64 { return g.zoneSize }

// Home returns the mission base point.
func (g *Grid) Home() orb.Point { return g.home }

// Len returns the number of zones.
func (g *Grid) Len() int { return len(g.zones) }

// Width returns the world width of the area.
func (g *Grid) Width() float64 { return float64(g.cols) * g.zoneSize }

// Height returns the world height of the area.
func (g *Grid) Height() float64 { return float64(g.rows) * g.zoneSize }

// Index returns the row-major index of a coordinate.
func (g *Grid) Index(c Coord) int {
	return c.Row*g.cols + c.Col
}

// InBounds returns true if the coordinate addresses a zone.
func (g *Grid) InBounds(c Coord) bool {
	return c.Row >= 0 && c.Row < g.rows && c.Col >= 0 && c.Col < g.cols
}

// Zone returns the zone at (row, col).
func (g *Grid) Zone(c Coord) (Zone, bool) {
	if !g.InBounds(c) {
		return Zone{}, false
	}
	return g.zones[g.Index(c)], true
}

// Zones returns all zones in row-major order. The slice must not be modified.
func (g *Grid) Zones() []Zone {
	return g.zones
}

// ZoneAt returns the zone containing a world point. Points on the far edge
// of the area belong to the last row or column.
func (g *Grid) ZoneAt(p orb.Point) (Zone, bool) {
	x, y := p[0], p[1]
	if math.IsNaN(x) || math.IsNaN(y) || x < 0 || y < 0 || x > g.Width() || y > g.Height() {
		return Zone{}, false
	}
	c := Coord{Row: int(y / g.zoneSize), Col: int(x / g.zoneSize)}
	if c.Row == g.rows {
		c.Row--
	}
	if c.Col == g.cols {
		c.Col--
	}
	return g.Zone(c)
}

// Neighbors returns the Moore neighborhood of a zone, clipped at the grid
// edges: 3 zones at a corner, 5 on an edge, 8 in the interior.
func (g *Grid) Neighbors(c Coord) []Zone {
	out := make([]Zone, 0, len(MooreOffsets))
	for _, off := range MooreOffsets {
		n := Coord{Row: c.Row + off.Row, Col: c.Col + off.Col}
		if g.InBounds(n) {
			out = append(out, g.zones[g.Index(n)])
		}
	}
	return out
}

// Neighborhood returns the zone itself followed by its Moore neighbors.
func (g *Grid) Neighborhood(c Coord) []Zone {
	if !g.InBounds(c) {
		return nil
	}
	out := make([]Zone, 0, len(MooreOffsets)+1)
	out = append(out, g.zones[g.Index(c)])
	return append(out, g.Neighbors(c)...)
}

// NeighborCount returns how many in-bounds Moore neighbors a zone has.
func (g *Grid) NeighborCount(c Coord) int {
	n := 0
	for _, off := range MooreOffsets {
		if g.InBounds(Coord{Row: c.Row + off.Row, Col: c.Col + off.Col}) {
			n++
		}
	}
	return n
}

// IsBaseCovered reports whether a zone touches the home point, i.e. is
// permanently visible to the base sensor.
func (g *Grid) IsBaseCovered(z Zone) bool {
	return planar.Distance(z.Center, g.home) <= g.zoneSize*math.Sqrt2/2+1e-9
}

// NearHome reports whether a zone center lies within one zone size of home.
func (g *Grid) NearHome(z Zone) bool {
	return planar.Distance(z.Center, g.home) <= g.zoneSize
}

// OpenZones returns all OPEN zones in row-major order.
func (g *Grid) OpenZones() []Zone {
	out := make([]Zone, 0, len(g.zones))
	for _, z := range g.zones {
		if !z.Blocked() {
			out = append(out, z)
		}
	}
	return out
}

// ApplyMask marks zones BLOCKED where mask is true. mask is row-major and
// must have one entry per zone. It may only be applied once.
func (g *Grid) ApplyMask(mask []bool) error {
	if g.masked {
		return ErrMaskApplied
	}
	if len(mask) != len(g.zones) {
		return fmt.Errorf("%w: mask has %d cells, grid has %d zones", ErrMalformedMask, len(mask), len(g.zones))
	}
	for i, blocked := range mask {
		if blocked {
			g.zones[i].Type = ZoneBlocked
		}
	}
	g.masked = true
	return nil
}

// TypeCounts returns a summary of zone type distribution.
func (g *Grid) TypeCounts() map[ZoneType]int {
	counts := make(map[ZoneType]int)
	for _, z := range g.zones {
		counts[z.Type]++
	}
	return counts
}

// String returns a summary of the grid.
func (g *Grid) String() string {
	return fmt.Sprintf("Grid(%dx%d, zone=%.1f, home=%v)", g.rows, g.cols, g.zoneSize, g.home)
}
