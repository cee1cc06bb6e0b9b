package alloc

import (
	"github.com/paulmach/orb"

	"github.com/talgya/rescue-sweep/internal/belief"
	"github.com/talgya/rescue-sweep/internal/grid"
	"github.com/talgya/rescue-sweep/internal/trial"
)

// local has no pool. Each request looks at the Moore neighbors of the
// drone's current zone and takes the one with the highest neighborhood
// weight. The zone is scanned as soon as it is handed out, so nearby drones
// rank it lower from then on; arrival does not scan it again.
type local struct {
	g     *grid.Grid
	field *belief.Field
	rng   *trial.Rand
	held  held
}

func newLocal(g *grid.Grid, f *belief.Field, st *trial.State) *local {
	return &local{
		g:     g,
		field: f,
		rng:   st.Rand(),
		held:  make(held),
	}
}

func (l *local) Policy() Policy { return LocalPriority }

func (l *local) Assignment(id string) (grid.Zone, bool) { return l.held.get(id) }

func (l *local) Next(id string, loc orb.Point) (grid.Zone, bool) {
	if z, ok := l.held[id]; ok {
		return z, true
	}
	here, ok := l.g.ZoneAt(loc)
	if !ok {
		return grid.Zone{}, false
	}

	var best []grid.Zone
	bestW := -1.0
	for _, n := range l.g.Neighbors(here.Coord) {
		if n.Blocked() {
			continue
		}
		w := l.field.NeighborhoodWeight(n.Coord)
		switch {
		case w > bestW:
			bestW = w
			best = append(best[:0], n)
		case w == bestW:
			best = append(best, n)
		}
	}
	if len(best) == 0 {
		return grid.Zone{}, false
	}

	z := best[0]
	if len(best) > 1 {
		z = best[l.rng.IntN(len(best))]
	}
	l.field.Visit(z.Coord)
	l.held[id] = z
	return z, true
}

func (l *local) Release(id string) { l.held.take(id) }

func (l *local) Complete(id string) { l.held.take(id) }

func (l *local) Arrived(id string) { l.held.take(id) }

func (l *local) Refresh() {}

func (l *local) Pending() int { return 0 }
