// Package belief maintains the per-zone priority map of where victims are
// likely to be. The field spreads by one-step diffusion every tick and is
// reduced multiplicatively when a zone is scanned.
package belief

import (
	"fmt"

	"github.com/talgya/rescue-sweep/internal/grid"
	"github.com/talgya/rescue-sweep/internal/trial"
)

// Field is a dense array of non-negative weights, one per zone.
type Field struct {
	g      *grid.Grid
	alpha  float64 // Memory weight of a zone's own belief
	miss   float64 // Chance a scan misses a present victim
	w      []float64
	next   []float64
	pinned []bool
	free   int // Number of unpinned zones
}

// New creates a field over g with weight 1 on every searchable zone.
// BLOCKED zones and zones covered by the base sensor are pinned to zero.
func New(g *grid.Grid, st *trial.State) *Field {
	p := st.Params()
	f := &Field{
		g:      g,
		alpha:  p.Alpha,
		miss:   p.MissProbability(),
		w:      make([]float64, g.Len()),
		next:   make([]float64, g.Len()),
		pinned: make([]bool, g.Len()),
	}
	for i, z := range g.Zones() {
		if z.Blocked() || g.IsBaseCovered(z) {
			f.pinned[i] = true
			continue
		}
		f.w[i] = 1
		f.free++
	}
	return f
}

// Diffuse advances the field one step. Each zone keeps alpha of its own
// weight and receives (1-alpha) of the mean of its Moore neighbors, all read
// from the field as it was before the step.
func (f *Field) Diffuse() {
	for i, z := range f.g.Zones() {
		if f.pinned[i] {
			f.next[i] = 0
			continue
		}
		neighbors := f.g.Neighbors(z.Coord)
		if len(neighbors) == 0 {
			f.next[i] = f.w[i]
			continue
		}
		sum := 0.0
		for _, n := range neighbors {
			sum += f.w[f.g.Index(n.Coord)]
		}
		f.next[i] = f.w[i]*f.alpha + sum*(1-f.alpha)/float64(len(neighbors))
	}
	f.w, f.next = f.next, f.w
}

// Scan multiplies the weight of the zone at c by miss.
func (f *Field) Scan(c grid.Coord, miss float64) {
	if !f.g.InBounds(c) {
		return
	}
	i := f.g.Index(c)
	if f.pinned[i] {
		return
	}
	if miss < 0 {
		miss = 0
	}
	f.w[i] *= miss
}

// Visit scans the zone at c with the trial's joint sensor miss probability.
func (f *Field) Visit(c grid.Coord) {
	f.Scan(c, f.miss)
}

// Weight returns the weight of the zone at c.
func (f *Field) Weight(c grid.Coord) float64 {
	if !f.g.InBounds(c) {
		return 0
	}
	return f.w[f.g.Index(c)]
}

// NeighborhoodWeight sums the weights of the zone at c and its Moore
// neighbors. It ranks zones for priority allocation.
func (f *Field) NeighborhoodWeight(c grid.Coord) float64 {
	sum := 0.0
	for _, z := range f.g.Neighborhood(c) {
		sum += f.w[f.g.Index(z.Coord)]
	}
	return sum
}

// Pinned reports whether the zone at c is held at zero.
func (f *Field) Pinned(c grid.Coord) bool {
	return f.g.InBounds(c) && f.pinned[f.g.Index(c)]
}

// Total returns the sum of all weights.
func (f *Field) Total() float64 {
	sum := 0.0
	for _, v := range f.w {
		sum += v
	}
	return sum
}

// Heat is the share of the initial belief that has been searched away,
// (n - total)/n over the n unpinned zones.
func (f *Field) Heat() float64 {
	if f.free == 0 {
		return 0
	}
	n := float64(f.free)
	return (n - f.Total()) / n
}

// Snapshot returns a row-major copy of the weights.
func (f *Field) Snapshot() []float64 {
	return append([]float64(nil), f.w...)
}

func (f *Field) String() string {
	return fmt.Sprintf("Field(zones=%d, total=%.3f, heat=%.3f)", len(f.w), f.Total(), f.Heat())
}
