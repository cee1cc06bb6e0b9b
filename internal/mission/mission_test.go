package mission

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/rescue-sweep/internal/alloc"
	"github.com/talgya/rescue-sweep/internal/belief"
	"github.com/talgya/rescue-sweep/internal/grid"
	"github.com/talgya/rescue-sweep/internal/kinematics"
	"github.com/talgya/rescue-sweep/internal/trial"
)

func newState(alpha float64) *trial.State {
	return trial.NewState(trial.Sweep{
		Alpha:   trial.Fixed(alpha),
		Beta:    trial.Fixed(0.6),
		Gamma:   trial.Fixed(0.6),
		Repeats: 1,
	}, nil, 31)
}

func testParams() Params {
	return Params{
		Deadline:     1000,
		TickLength:   1,
		Cruise:       kinematics.Limits{MaxSpeed: 1, MaxAccel: 1},
		Scan:         kinematics.Limits{MaxSpeed: 0.5, MaxAccel: 0.5},
		Victim:       kinematics.Limits{MaxSpeed: 0.2, MaxAccel: 0.2},
		ServiceTicks: 2,
		Proximity:    0.01,
	}
}

type fixture struct {
	m     *Mission
	g     *grid.Grid
	field *belief.Field
	alloc alloc.Allocator
}

func newFixture(t *testing.T, p Params, policy alloc.Policy, g *grid.Grid, alpha float64) fixture {
	t.Helper()
	st := newState(alpha)
	f := belief.New(g, st)
	a, err := alloc.New(policy, g, f, st, 1)
	require.NoError(t, err)
	return fixture{m: New(p, g, f, a, st), g: g, field: f, alloc: a}
}

func droneAt(id string, p orb.Point, fuel float64) Entity {
	return Entity{ID: id, Tags: []string{TagDrone}, Location: p, Fuel: fuel, Active: true}
}

func victimAt(id string, p orb.Point) Entity {
	return Entity{ID: id, Tags: []string{TagVictim}, Location: p, Active: true}
}

func TestLowFuelForcesReturn(t *testing.T) {
	// One row of unit zones: the drone is 499 from home, so the return leg
	// takes 500 ticks at unit speed and acceleration.
	g := grid.New(1, 1000, 1, orb.Point{0.5, 0.5})
	p := testParams()
	p.Deadline = 100 + 520
	fx := newFixture(t, p, alloc.Queue, g, 0.5)

	snap := Snapshot{Tick: 5, Time: 100, Entities: []Entity{droneAt("d", orb.Point{499.5, 0.5}, 0.01)}}
	out := fx.m.Step(snap)

	assert.Equal(t, []CommandKind{DeactivateAllSensors, GoHome}, out.Kinds("d"))
	assert.Equal(t, Returning, fx.m.DroneState("d"))

	events := fx.m.TakeEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventReturn, events[0].Category)
	assert.Contains(t, events[0].Description, "out of fuel")
	assert.Empty(t, fx.m.TakeEvents())

	snap.Time++
	assert.Equal(t, []CommandKind{GoHome}, fx.m.Step(snap).Kinds("d"))

	snap.Entities[0].Location = g.Home()
	assert.Equal(t, []CommandKind{Done}, fx.m.Step(snap).Kinds("d"))
	assert.Equal(t, Terminal, fx.m.DroneState("d"))
	assert.Empty(t, fx.m.Step(snap).Kinds("d"))
	assert.True(t, fx.m.Finished(snap))
	assert.Equal(t, 1, fx.m.Summary().DronesDone)
}

func TestReturnReleasesAssignment(t *testing.T) {
	g := grid.New(4, 4, 10, orb.Point{-5, -5})
	p := testParams()
	fx := newFixture(t, p, alloc.Queue, g, 0.5)
	pending := fx.alloc.Pending()

	d := droneAt("d", orb.Point{12, 12}, 1)
	out := fx.m.Step(Snapshot{Time: 0, Entities: []Entity{d}})
	require.Equal(t, []CommandKind{GoTo}, out.Kinds("d"))
	assert.Equal(t, pending-1, fx.alloc.Pending())

	fx.m.Step(Snapshot{Time: 999.5, Entities: []Entity{d}})
	assert.Equal(t, Returning, fx.m.DroneState("d"))
	assert.Equal(t, pending, fx.alloc.Pending(), "abandoned zone goes back to the pool")
}

func TestInactiveDroneIsIgnored(t *testing.T) {
	g := grid.New(4, 4, 10, orb.Point{-5, -5})
	fx := newFixture(t, testParams(), alloc.Queue, g, 0.5)
	pending := fx.alloc.Pending()

	d := droneAt("d", orb.Point{12, 12}, 1)
	out := fx.m.Step(Snapshot{Time: 0, Entities: []Entity{d}})
	require.Equal(t, []CommandKind{GoTo}, out.Kinds("d"))
	fx.m.TakeEvents()

	// Out of fuel past the deadline margin: an active drone would be sent home.
	d.Active = false
	d.Fuel = 0
	out = fx.m.Step(Snapshot{Tick: 1, Time: 999.5, Entities: []Entity{d}})
	assert.Empty(t, out.Kinds("d"))
	assert.Empty(t, fx.m.TakeEvents())
	assert.Equal(t, pending, fx.alloc.Pending(), "held zone goes back to the pool")
	assert.Equal(t, 1, fx.m.Summary().Drones)
}

func TestSearchCycle(t *testing.T) {
	g := grid.New(3, 3, 10, orb.Point{-100, -100})
	fx := newFixture(t, testParams(), alloc.GlobalPriority, g, 0.5)

	d := droneAt("d", orb.Point{1, 1}, 1)
	out := fx.m.Step(Snapshot{Entities: []Entity{d}})
	require.Equal(t, []CommandKind{GoTo}, out.Kinds("d"))
	target := out["d"][0].Target
	assert.Equal(t, orb.Point{15, 15}, target, "best neighborhood is the center")
	assert.Equal(t, testParams().Scan, out["d"][0].Limits)
	assert.Equal(t, EnRoute, fx.m.DroneState("d"))

	before := fx.field.Weight(grid.Coord{Row: 1, Col: 1})
	d.Location = target
	out = fx.m.Step(Snapshot{Tick: 1, Time: 1, Entities: []Entity{d}})
	assert.Equal(t, []CommandKind{Stop}, out.Kinds("d"))
	assert.Equal(t, Searching, fx.m.DroneState("d"))
	assert.Less(t, fx.field.Weight(grid.Coord{Row: 1, Col: 1}), before*0.5, "arrival scans the zone")
	_, held := fx.alloc.Assignment("d")
	assert.False(t, held)
}

func TestDetectionServicing(t *testing.T) {
	g := grid.New(3, 3, 10, orb.Point{-100, -100})
	fx := newFixture(t, testParams(), alloc.Queue, g, 0)

	v := victimAt("v", orb.Point{12, 12})
	d := droneAt("d", orb.Point{11, 11}, 1)
	d.Sensors = map[string][]string{SensorBLE: {"v"}}

	out := fx.m.Step(Snapshot{Entities: []Entity{d, v}})
	assert.Equal(t, []CommandKind{DeactivateAllSensors, Stop}, out.Kinds("d"))
	assert.Equal(t, []CommandKind{Done}, out.Kinds("v"))
	assert.Equal(t, Servicing, fx.m.DroneState("d"))

	// The runtime has not caught up yet: the victim is still active and
	// still listed, but Done is not repeated.
	out = fx.m.Step(Snapshot{Tick: 1, Time: 1, Entities: []Entity{d, v}})
	assert.Equal(t, []CommandKind{Stop}, out.Kinds("d"))
	assert.Empty(t, out.Kinds("v"))

	d.Sensors = nil
	v.Active = false
	out = fx.m.Step(Snapshot{Tick: 2, Time: 2, Entities: []Entity{d, v}})
	assert.Equal(t, []CommandKind{Stop}, out.Kinds("d"))

	out = fx.m.Step(Snapshot{Tick: 3, Time: 3, Entities: []Entity{d, v}})
	kinds := out.Kinds("d")
	require.NotEmpty(t, kinds)
	assert.Equal(t, ActivateAllSensors, kinds[0])
	assert.NotEqual(t, Servicing, fx.m.DroneState("d"))

	s := fx.m.Summary()
	assert.Equal(t, 1, s.Rescued)
	assert.Equal(t, 1, s.Victims)

	var categories []string
	for _, ev := range fx.m.TakeEvents() {
		categories = append(categories, ev.Category)
	}
	assert.Equal(t, []string{EventService, EventRescue}, categories)
}

func TestServicingDisabled(t *testing.T) {
	g := grid.New(3, 3, 10, orb.Point{-100, -100})
	p := testParams()
	p.ServiceTicks = 0
	fx := newFixture(t, p, alloc.Queue, g, 0)

	d := droneAt("d", orb.Point{11, 11}, 1)
	d.Sensors = map[string][]string{SensorCamera: {"v"}}
	out := fx.m.Step(Snapshot{Entities: []Entity{d, victimAt("v", orb.Point{12, 12})}})
	assert.Equal(t, []CommandKind{GoTo}, out.Kinds("d"))
}

func TestServicingDroneDoesNotRescue(t *testing.T) {
	g := grid.New(3, 3, 10, orb.Point{-100, -100})
	fx := newFixture(t, testParams(), alloc.Queue, g, 1)

	d := droneAt("d", orb.Point{11, 11}, 1)
	d.Sensors = map[string][]string{SensorBLE: {"v1"}}
	fx.m.Step(Snapshot{Entities: []Entity{d, victimAt("v1", orb.Point{12, 12})}})
	require.Equal(t, Servicing, fx.m.DroneState("d"))

	d.Sensors = map[string][]string{SensorBLE: {"v2"}}
	out := fx.m.Step(Snapshot{Tick: 1, Time: 1, Entities: []Entity{d, victimAt("v2", orb.Point{12, 12})}})
	assert.Equal(t, []CommandKind{Stop}, out.Kinds("v2"), "alpha 1 always stops")

	base := Entity{ID: "base", Tags: []string{TagBase}, Active: true,
		Sensors: map[string][]string{SensorVision: {"v2"}}}
	out = fx.m.Step(Snapshot{Tick: 2, Time: 2, Entities: []Entity{d, victimAt("v2", orb.Point{12, 12}), base}})
	assert.Equal(t, []CommandKind{Done}, out.Kinds("v2"))
}

func TestVictimWalk(t *testing.T) {
	g := grid.New(3, 3, 10, orb.Point{-100, -100})
	mask := make([]bool, 9)
	mask[0], mask[1], mask[2] = true, true, true
	require.NoError(t, g.ApplyMask(mask))
	fx := newFixture(t, testParams(), alloc.Queue, g, 0)

	for i := 0; i < 50; i++ {
		out := fx.m.Step(Snapshot{Tick: i, Time: float64(i), Entities: []Entity{victimAt("v", orb.Point{15, 15})}})
		require.Len(t, out["v"], 1)
		c := out["v"][0]
		require.Equal(t, GoTo, c.Kind)
		z, ok := g.ZoneAt(c.Target)
		require.True(t, ok)
		assert.False(t, z.Blocked())
		assert.NotEqual(t, grid.Coord{Row: 1, Col: 1}, z.Coord)
		assert.Equal(t, testParams().Victim, c.Limits)
	}
}

func TestFinished(t *testing.T) {
	g := grid.New(3, 3, 10, orb.Point{-100, -100})
	fx := newFixture(t, testParams(), alloc.Queue, g, 1)

	snap := Snapshot{Entities: []Entity{droneAt("d", orb.Point{1, 1}, 1)}}
	assert.False(t, fx.m.Finished(snap))

	snap.Time = 1000
	assert.True(t, fx.m.Finished(snap))

	idle := Snapshot{Entities: []Entity{{ID: "d", Tags: []string{TagDrone}}, {ID: "v", Tags: []string{TagVictim}}}}
	assert.True(t, fx.m.Finished(idle), "inactive entities are terminal")
}

func TestSubjectsOrder(t *testing.T) {
	e := Entity{Sensors: map[string][]string{"vision": {"c"}, "ble": {"a"}, "camera": {"b"}}}
	assert.Equal(t, []string{"a", "b", "c"}, e.Subjects())
	assert.Equal(t, "GoTo(1.00,2.00)", GoToCmd(orb.Point{1, 2}, kinematics.Limits{}).String())
	assert.Equal(t, "DeactivateAllSensors", DeactivateAllSensors.String())
}
