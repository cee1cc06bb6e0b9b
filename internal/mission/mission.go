package mission

import (
	"fmt"
	"log/slog"

	"github.com/talgya/rescue-sweep/internal/alloc"
	"github.com/talgya/rescue-sweep/internal/belief"
	"github.com/talgya/rescue-sweep/internal/grid"
	"github.com/talgya/rescue-sweep/internal/kinematics"
	"github.com/talgya/rescue-sweep/internal/trial"
)

// Params is the policy-constant bundle of a scenario.
type Params struct {
	Deadline     float64           // Absolute mission end time
	TickLength   float64           // Simulated time per tick
	Cruise       kinematics.Limits // Drone limits used for feasibility
	Scan         kinematics.Limits // Drone limits while searching
	Victim       kinematics.Limits // Victim walking limits
	ServiceTicks int               // Ticks spent servicing a detection; 0 disables
	Proximity    float64           // Arrival radius around zone centers and home
}

// Summary describes the outcome of a mission.
type Summary struct {
	Ticks      int     `json:"ticks"`
	Rescued    int     `json:"rescued"`
	Victims    int     `json:"victims"`
	DronesDone int     `json:"drones_done"`
	Drones     int     `json:"drones"`
	Heat       float64 `json:"heat"`
	Pending    int     `json:"pending"`
}

// Mission is the per-trial controller. It owns the drone and victim state
// machines and drives the allocator and belief field.
type Mission struct {
	params Params
	grid   *grid.Grid
	field  *belief.Field
	alloc  alloc.Allocator
	rng    *trial.Rand
	budget kinematics.Budget
	alpha  float64

	drones  map[string]*drone
	victims map[string]*victim
	events  []Event
	ticks   int
}

// New creates a mission controller for one trial.
func New(p Params, g *grid.Grid, f *belief.Field, a alloc.Allocator, st *trial.State) *Mission {
	return &Mission{
		params: p,
		grid:   g,
		field:  f,
		alloc:  a,
		rng:    st.Rand(),
		alpha:  st.Params().Alpha,
		budget: kinematics.Budget{
			Home:       g.Home(),
			Deadline:   p.Deadline,
			TickLength: p.TickLength,
			Limits:     p.Cruise,
		},
		drones:  make(map[string]*drone),
		victims: make(map[string]*victim),
	}
}

// Step consumes one snapshot and returns this tick's commands. The belief
// field diffuses and the allocator refreshes once, before any drone is
// evaluated, so every drone sees the same field.
func (m *Mission) Step(snap Snapshot) CommandSet {
	m.ticks++
	m.field.Diffuse()
	m.alloc.Refresh()

	out := make(CommandSet)
	victims := snap.Tagged(TagVictim)
	drones := snap.Tagged(TagDrone)

	live := make(map[string]bool, len(victims))
	for _, v := range victims {
		if v.Active {
			live[v.ID] = true
		}
	}
	found := m.rescuers(snap, live)

	for _, e := range drones {
		m.stepDrone(snap, e, live, out)
	}
	for _, e := range victims {
		m.stepVictim(snap, e, found, out)
	}
	return out
}

// rescuers returns the live victims perceived this tick by the base or by a
// drone that is active and not servicing.
func (m *Mission) rescuers(snap Snapshot, live map[string]bool) map[string]bool {
	found := make(map[string]bool)
	for _, e := range snap.Entities {
		switch {
		case e.HasTag(TagBase):
		case e.HasTag(TagDrone):
			if !e.Active {
				continue
			}
			if d, ok := m.drones[e.ID]; ok && d.state == Servicing {
				continue
			}
		default:
			continue
		}
		for _, id := range e.Subjects() {
			if live[id] {
				found[id] = true
			}
		}
	}
	return found
}

// Finished reports whether the mission is over: the deadline has passed,
// or every drone and every victim has reached a terminal state.
func (m *Mission) Finished(snap Snapshot) bool {
	if snap.Time >= m.params.Deadline {
		return true
	}
	for _, e := range snap.Entities {
		switch {
		case e.HasTag(TagDrone):
			if d, ok := m.drones[e.ID]; e.Active && (!ok || d.state != Terminal) {
				return false
			}
		case e.HasTag(TagVictim):
			if e.Active && !m.victimDone(e.ID) {
				return false
			}
		}
	}
	return true
}

// DroneState returns the lifecycle state of a drone.
func (m *Mission) DroneState(id string) State {
	if d, ok := m.drones[id]; ok {
		return d.state
	}
	return Searching
}

// TakeEvents returns and clears the events recorded since the last call.
func (m *Mission) TakeEvents() []Event {
	out := m.events
	m.events = nil
	return out
}

// Summary reports the mission outcome so far.
func (m *Mission) Summary() Summary {
	s := Summary{
		Ticks:   m.ticks,
		Victims: len(m.victims),
		Drones:  len(m.drones),
		Heat:    m.field.Heat(),
		Pending: m.alloc.Pending(),
	}
	for _, v := range m.victims {
		if v.rescued {
			s.Rescued++
		}
	}
	for _, d := range m.drones {
		if d.state == Terminal {
			s.DronesDone++
		}
	}
	return s
}

func (m *Mission) record(snap Snapshot, id, category, format string, args ...any) {
	ev := Event{
		Tick:        snap.Tick,
		Time:        snap.Time,
		Entity:      id,
		Category:    category,
		Description: fmt.Sprintf(format, args...),
	}
	m.events = append(m.events, ev)
	slog.Debug("mission event", "tick", ev.Tick, "entity", id, "category", category, "description", ev.Description)
}
