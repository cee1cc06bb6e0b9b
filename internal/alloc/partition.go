package alloc

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/talgya/rescue-sweep/internal/belief"
	"github.com/talgya/rescue-sweep/internal/grid"
)

// partition splits the area into one contiguous block per drone. A drone
// claims a block on its first request and walks it as a nearest-neighbor
// tour starting from home. Work abandoned by drones that go home lands in a
// shared overflow pool that drones with an exhausted tour draw from.
type partition struct {
	g      *grid.Grid
	field  *belief.Field
	blocks [][]grid.Zone // unclaimed blocks, in claim order
	claim  int
	tours  map[string][]grid.Zone // head is the current assignment
	pool   []grid.Zone
}

func newPartition(g *grid.Grid, f *belief.Field, agents int) *partition {
	return &partition{
		g:      g,
		field:  f,
		blocks: Blocks(g, agents),
		tours:  make(map[string][]grid.Zone),
	}
}

// BlockShape picks the block layout for n drones: the factor pair of n
// closest to square, with at least as many block rows as block columns.
func BlockShape(n int) (rows, cols int) {
	if n < 1 {
		return 1, 1
	}
	cols = 1
	for c := 1; c*c <= n; c++ {
		if n%c == 0 {
			cols = c
		}
	}
	return n / cols, cols
}

// Blocks splits the searchable zones of g into n contiguous rectangles,
// row-major in block order. Block edges split rows and columns as evenly as
// integer division allows. Blocks may be empty when n exceeds the grid.
func Blocks(g *grid.Grid, n int) [][]grid.Zone {
	br, bc := BlockShape(n)
	out := make([][]grid.Zone, 0, br*bc)
	for i := 0; i < br; i++ {
		r0, r1 := i*g.Rows()/br, (i+1)*g.Rows()/br
		for j := 0; j < bc; j++ {
			c0, c1 := j*g.Cols()/bc, (j+1)*g.Cols()/bc
			var block []grid.Zone
			for r := r0; r < r1; r++ {
				for c := c0; c < c1; c++ {
					z, _ := g.Zone(grid.Coord{Row: r, Col: c})
					if searchable(g, z) {
						block = append(block, z)
					}
				}
			}
			out = append(out, block)
		}
	}
	return out
}

// Tour orders zones by repeatedly taking the remaining zone nearest to the
// last one taken, starting from start. Ties go to the earliest zone in the
// input order.
func Tour(start orb.Point, zones []grid.Zone) []grid.Zone {
	remaining := append([]grid.Zone(nil), zones...)
	out := make([]grid.Zone, 0, len(zones))
	at := start
	for len(remaining) > 0 {
		best, bestD := 0, math.Inf(1)
		for i, z := range remaining {
			if d := planar.DistanceSquared(at, z.Center); d < bestD {
				best, bestD = i, d
			}
		}
		z := remaining[best]
		out = append(out, z)
		at = z.Center
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return out
}

func (p *partition) Policy() Policy { return PartitionTour }

func (p *partition) Assignment(id string) (grid.Zone, bool) {
	tour := p.tours[id]
	if len(tour) == 0 {
		return grid.Zone{}, false
	}
	return tour[0], true
}

func (p *partition) Next(id string, _ orb.Point) (grid.Zone, bool) {
	tour, claimed := p.tours[id]
	if !claimed {
		if p.claim < len(p.blocks) {
			tour = Tour(p.g.Home(), p.blocks[p.claim])
			p.blocks[p.claim] = nil
			p.claim++
		}
		p.tours[id] = tour
	}
	if len(tour) > 0 {
		return tour[0], true
	}
	if len(p.pool) == 0 {
		return grid.Zone{}, false
	}
	z := p.pool[0]
	p.pool = p.pool[1:]
	p.tours[id] = []grid.Zone{z}
	return z, true
}

// Release moves the drone's whole remaining tour into the overflow pool.
func (p *partition) Release(id string) {
	p.pool = append(p.pool, p.tours[id]...)
	p.tours[id] = nil
}

// Complete advances the drone to the next zone of its tour.
func (p *partition) Complete(id string) {
	if tour := p.tours[id]; len(tour) > 0 {
		p.tours[id] = tour[1:]
	}
}

func (p *partition) Arrived(id string) {
	if tour := p.tours[id]; len(tour) > 0 {
		p.field.Visit(tour[0].Coord)
	}
	p.Complete(id)
}

func (p *partition) Refresh() {}

// Pending counts zones not currently at the head of any tour.
func (p *partition) Pending() int {
	n := len(p.pool)
	for _, b := range p.blocks[p.claim:] {
		n += len(b)
	}
	for _, tour := range p.tours {
		if len(tour) > 1 {
			n += len(tour) - 1
		}
	}
	return n
}
