package mission

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/talgya/rescue-sweep/internal/kinematics"
)

// State is a drone lifecycle state.
type State uint8

const (
	Searching State = iota // No assignment held
	EnRoute                // Flying to an assigned zone
	Servicing              // Holding position after a detection
	Returning              // Forced home, sensors off
	Terminal               // Landed at home
)

var stateNames = [...]string{
	Searching: "searching",
	EnRoute:   "en route",
	Servicing: "servicing",
	Returning: "returning",
	Terminal:  "done",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

type drone struct {
	state State
	wait  int // Service ticks left
}

func (m *Mission) track(id string) *drone {
	d, ok := m.drones[id]
	if !ok {
		d = &drone{}
		m.drones[id] = d
	}
	return d
}

func (m *Mission) nearHome(p orb.Point) bool {
	return planar.Distance(p, m.grid.Home()) <= m.params.Proximity
}

// stepDrone runs one tick of the drone lifecycle.
func (m *Mission) stepDrone(snap Snapshot, e Entity, live map[string]bool, out CommandSet) {
	d := m.track(e.ID)
	if !e.Active {
		// Shut down by the runtime: no commands, held work returns to the pool.
		m.alloc.Release(e.ID)
		return
	}

	switch d.state {
	case Terminal:
		return
	case Returning:
		if m.nearHome(e.Location) {
			out.addKinds(e.ID, Done)
			d.state = Terminal
			m.record(snap, e.ID, EventDone, "landed with fuel %.3f", e.Fuel)
			return
		}
		out.addKinds(e.ID, GoHome)
		return
	}

	target := e.Location
	if z, ok := m.grid.ZoneAt(e.Location); ok {
		target = z.Center
	}
	probe := kinematics.Probe{Location: e.Location, Speed: e.Speed, Fuel: e.Fuel}
	if v := m.budget.Check(probe, snap.Time, target); v != kinematics.Feasible {
		out.addKinds(e.ID, DeactivateAllSensors, GoHome)
		d.state = Returning
		d.wait = 0
		m.alloc.Release(e.ID)
		m.record(snap, e.ID, EventReturn, "returning home: %s, fuel %.3f", v, e.Fuel)
		return
	}

	if d.state == Servicing {
		if d.wait > 0 {
			out.addKinds(e.ID, Stop)
			d.wait--
			return
		}
		out.addKinds(e.ID, ActivateAllSensors)
		d.state = Searching
		if _, ok := m.alloc.Assignment(e.ID); ok {
			d.state = EnRoute
		}
	}

	if n := detections(e, live); n > 0 && m.params.ServiceTicks > 0 {
		out.addKinds(e.ID, DeactivateAllSensors, Stop)
		d.state = Servicing
		d.wait = m.params.ServiceTicks
		m.record(snap, e.ID, EventService, "servicing %d detection(s)", n)
		return
	}

	z, ok := m.alloc.Assignment(e.ID)
	if !ok {
		z, ok = m.alloc.Next(e.ID, e.Location)
		if !ok {
			out.addKinds(e.ID, Stop)
			d.state = Searching
			return
		}
	}

	if planar.Distance(e.Location, z.Center) <= m.params.Proximity {
		out.addKinds(e.ID, Stop)
		m.alloc.Arrived(e.ID)
		d.state = Searching
		return
	}

	out.add(e.ID, GoToCmd(z.Center, m.params.Scan))
	d.state = EnRoute
}

// detections counts live victims among a drone's sensor subjects.
func detections(e Entity, live map[string]bool) int {
	n := 0
	for _, id := range e.Subjects() {
		if live[id] {
			n++
		}
	}
	return n
}
