package alloc

import (
	"sort"

	"github.com/paulmach/orb"

	"github.com/talgya/rescue-sweep/internal/belief"
	"github.com/talgya/rescue-sweep/internal/grid"
)

// global keeps every searchable zone in one pool ranked by neighborhood
// weight, best first.
type global struct {
	field *belief.Field
	pool  []grid.Zone
	held  held
}

func newGlobal(g *grid.Grid, f *belief.Field) *global {
	p := &global{field: f, held: make(held)}
	for _, z := range g.Zones() {
		if searchable(g, z) {
			p.pool = append(p.pool, z)
		}
	}
	p.sort()
	return p
}

func (p *global) sort() {
	weights := make(map[grid.Coord]float64, len(p.pool))
	for _, z := range p.pool {
		weights[z.Coord] = p.field.NeighborhoodWeight(z.Coord)
	}
	sort.SliceStable(p.pool, func(i, j int) bool {
		return weights[p.pool[i].Coord] > weights[p.pool[j].Coord]
	})
}

func (p *global) Policy() Policy { return GlobalPriority }

func (p *global) Assignment(id string) (grid.Zone, bool) { return p.held.get(id) }

func (p *global) Next(id string, _ orb.Point) (grid.Zone, bool) {
	if z, ok := p.held[id]; ok {
		return z, true
	}
	if len(p.pool) == 0 {
		return grid.Zone{}, false
	}
	z := p.pool[0]
	p.pool = p.pool[1:]
	p.held[id] = z
	return z, true
}

func (p *global) Release(id string) {
	if z, ok := p.held.take(id); ok {
		p.pool = append(p.pool, z)
	}
}

func (p *global) Complete(id string) { p.held.take(id) }

func (p *global) Arrived(id string) {
	if z, ok := p.held[id]; ok {
		p.field.Visit(z.Coord)
	}
	p.Release(id)
}

// Refresh re-ranks the pool against the freshly diffused field.
func (p *global) Refresh() { p.sort() }

func (p *global) Pending() int { return len(p.pool) }
