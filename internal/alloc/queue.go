package alloc

import (
	"github.com/paulmach/orb"

	"github.com/talgya/rescue-sweep/internal/belief"
	"github.com/talgya/rescue-sweep/internal/grid"
	"github.com/talgya/rescue-sweep/internal/trial"
)

// queue hands out zones from a pool shuffled once at trial start.
type queue struct {
	field *belief.Field
	pool  []grid.Zone
	held  held
}

func newQueue(g *grid.Grid, f *belief.Field, st *trial.State) *queue {
	q := &queue{field: f, held: make(held)}
	for _, z := range g.Zones() {
		if z.Blocked() || g.NearHome(z) {
			continue
		}
		q.pool = append(q.pool, z)
	}
	st.Rand().Shuffle(len(q.pool), func(i, j int) {
		q.pool[i], q.pool[j] = q.pool[j], q.pool[i]
	})
	return q
}

func (q *queue) Policy() Policy { return Queue }

func (q *queue) Assignment(id string) (grid.Zone, bool) { return q.held.get(id) }

func (q *queue) Next(id string, _ orb.Point) (grid.Zone, bool) {
	if z, ok := q.held[id]; ok {
		return z, true
	}
	if len(q.pool) == 0 {
		return grid.Zone{}, false
	}
	z := q.pool[0]
	q.pool = q.pool[1:]
	q.held[id] = z
	return z, true
}

func (q *queue) Release(id string) {
	if z, ok := q.held.take(id); ok {
		q.pool = append(q.pool, z)
	}
}

func (q *queue) Complete(id string) { q.held.take(id) }

func (q *queue) Arrived(id string) {
	if z, ok := q.held[id]; ok {
		q.field.Visit(z.Coord)
	}
	q.Release(id)
}

func (q *queue) Refresh() {}

func (q *queue) Pending() int { return len(q.pool) }
