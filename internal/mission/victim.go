package mission

import (
	"github.com/paulmach/orb"

	"github.com/talgya/rescue-sweep/internal/grid"
)

type victim struct {
	rescued bool
}

func (m *Mission) victimDone(id string) bool {
	v, ok := m.victims[id]
	return ok && v.rescued
}

// stepVictim runs one tick of the victim machine: Done once when perceived,
// otherwise stop with probability alpha or walk to a random open neighbor.
func (m *Mission) stepVictim(snap Snapshot, e Entity, found map[string]bool, out CommandSet) {
	v, ok := m.victims[e.ID]
	if !ok {
		v = &victim{}
		m.victims[e.ID] = v
	}
	if v.rescued || !e.Active {
		return
	}

	if found[e.ID] {
		v.rescued = true
		out.addKinds(e.ID, Done)
		m.record(snap, e.ID, EventRescue, "rescued at (%.1f,%.1f)", e.Location[0], e.Location[1])
		return
	}

	if m.rng.Chance(m.alpha) {
		out.addKinds(e.ID, Stop)
		return
	}

	here, ok := m.grid.ZoneAt(e.Location)
	if !ok {
		out.addKinds(e.ID, Stop)
		return
	}
	var open []grid.Zone
	for _, n := range m.grid.Neighbors(here.Coord) {
		if !n.Blocked() {
			open = append(open, n)
		}
	}
	if len(open) == 0 {
		out.addKinds(e.ID, Stop)
		return
	}
	z := open[m.rng.IntN(len(open))]
	b := z.Bound()
	target := orb.Point{
		m.rng.Uniform(b.Min[0], b.Max[0]),
		m.rng.Uniform(b.Min[1], b.Max[1]),
	}
	out.add(e.ID, GoToCmd(target, m.params.Victim))
}
