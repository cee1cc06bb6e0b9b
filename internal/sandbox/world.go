// Package sandbox is a deterministic point-mass runtime that produces world
// snapshots and executes mission commands, so sweeps can run without an
// external simulator.
package sandbox

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/talgya/rescue-sweep/internal/grid"
	"github.com/talgya/rescue-sweep/internal/kinematics"
	"github.com/talgya/rescue-sweep/internal/mission"
	"github.com/talgya/rescue-sweep/internal/trial"
)

// Sensors holds sensor ranges and battery draw.
type Sensors struct {
	CameraRange float64 `toml:"camera_range"`
	BLERange    float64 `toml:"ble_range"`
	VisionRange float64 `toml:"vision_range"`
	CameraUsage float64 `toml:"camera_usage"`
	BLEUsage    float64 `toml:"ble_usage"`
}

// Config describes the fleet and its physics.
type Config struct {
	Drones     int
	Victims    int
	Drone      kinematics.Limits
	Victim     kinematics.Limits
	FuelUsage  float64 // Fuel fraction per unit time while active
	Sensors    Sensors
	TickLength float64
	SubStep    float64 // Integration step; defaults to 1
}

type body struct {
	id      string
	tags    []string
	pos     orb.Point
	vel     orb.Point
	limits  kinematics.Limits
	fuel    float64
	active  bool
	sensing bool
	order   mission.Command
	drone   bool
	victim  bool
	base    bool
	seen    map[string][]string
}

func (b *body) speed() float64 {
	return math.Hypot(b.vel[0], b.vel[1])
}

// World is the sandbox state of one trial.
type World struct {
	cfg   Config
	g     *grid.Grid
	rng   *trial.Rand
	beta  float64
	gamma float64

	tick   int
	time   float64
	bodies []*body // drones, then victims, then the base
}

// New places the fleet at home and scatters victims over random OPEN zones.
// The sandbox draws from its own stream derived from the trial seed.
func New(cfg Config, g *grid.Grid, st *trial.State) *World {
	if cfg.SubStep <= 0 {
		cfg.SubStep = 1
	}
	p := st.Params()
	w := &World{
		cfg:   cfg,
		g:     g,
		rng:   trial.NewRand(st.Seed() + 100),
		beta:  p.Beta,
		gamma: p.Gamma,
	}

	for i := 0; i < cfg.Drones; i++ {
		w.add(&body{
			id:      fmt.Sprintf("drone-%03d", i),
			tags:    []string{mission.TagDrone},
			pos:     g.Home(),
			limits:  cfg.Drone,
			fuel:    1,
			active:  true,
			sensing: true,
			drone:   true,
		})
	}

	open := g.OpenZones()
	for i := 0; i < cfg.Victims && len(open) > 0; i++ {
		z := open[w.rng.IntN(len(open))]
		b := z.Bound()
		w.add(&body{
			id:     fmt.Sprintf("victim-%04d", i),
			tags:   []string{mission.TagVictim},
			pos:    orb.Point{w.rng.Uniform(b.Min[0], b.Max[0]), w.rng.Uniform(b.Min[1], b.Max[1])},
			limits: cfg.Victim,
			fuel:   1,
			active: true,
			victim: true,
		})
	}

	w.add(&body{
		id:      "base-0",
		tags:    []string{mission.TagBase},
		pos:     g.Home(),
		fuel:    1,
		active:  true,
		sensing: true,
		base:    true,
	})

	w.sense()
	return w
}

func (w *World) add(b *body) {
	w.bodies = append(w.bodies, b)
}

// Tick returns the number of ticks simulated.
func (w *World) Tick() int { return w.tick }

// Time returns the simulated time.
func (w *World) Time() float64 { return w.time }

// Snapshot returns a copy of the current world state.
func (w *World) Snapshot() mission.Snapshot {
	snap := mission.Snapshot{
		Tick:     w.tick,
		Time:     w.time,
		Entities: make([]mission.Entity, 0, len(w.bodies)),
	}
	for _, b := range w.bodies {
		e := mission.Entity{
			ID:       b.id,
			Tags:     append([]string(nil), b.tags...),
			Location: b.pos,
			Speed:    b.speed(),
			Fuel:     b.fuel,
			Active:   b.active,
		}
		if len(b.seen) > 0 {
			e.Sensors = make(map[string][]string, len(b.seen))
			for name, ids := range b.seen {
				e.Sensors[name] = append([]string(nil), ids...)
			}
		}
		snap.Entities = append(snap.Entities, e)
	}
	return snap
}

// Apply executes one tick of commands and advances the physics by one tick
// length. Commands for unknown ids are ignored.
func (w *World) Apply(cmds mission.CommandSet) {
	for _, b := range w.bodies {
		for _, c := range cmds[b.id] {
			w.command(b, c)
		}
	}

	steps := int(math.Ceil(w.cfg.TickLength / w.cfg.SubStep))
	if steps < 1 {
		steps = 1
	}
	dt := w.cfg.TickLength / float64(steps)
	for i := 0; i < steps; i++ {
		for _, b := range w.bodies {
			w.integrate(b, dt)
		}
	}

	w.tick++
	w.time += w.cfg.TickLength
	w.sense()
}

func (w *World) command(b *body, c mission.Command) {
	if !b.active {
		return
	}
	switch c.Kind {
	case mission.None:
	case mission.ActivateAllSensors:
		b.sensing = true
	case mission.DeactivateAllSensors:
		b.sensing = false
	case mission.Done:
		b.active = false
		b.sensing = false
		b.vel = orb.Point{}
		b.order = mission.Command{}
	case mission.GoHome:
		b.order = mission.GoToCmd(w.g.Home(), b.limits)
	default:
		b.order = c
	}
}

func (w *World) integrate(b *body, dt float64) {
	if !b.active || b.base {
		return
	}

	lim := b.limits
	if b.order.Limits.MaxSpeed > 0 && b.order.Limits.MaxAccel > 0 {
		lim = b.order.Limits
	}

	switch b.order.Kind {
	case mission.GoTo:
		w.goTo(b, b.order.Target, lim, dt)
	case mission.Move:
		accelerate(b, clampSpeed(b.order.Vector, lim.MaxSpeed), lim.MaxAccel, dt)
		b.pos = w.clamp(orb.Point{b.pos[0] + b.vel[0]*dt, b.pos[1] + b.vel[1]*dt})
	case mission.Steer:
		s := b.speed()
		b.vel = orb.Point{s * math.Cos(b.order.Heading), s * math.Sin(b.order.Heading)}
		b.pos = w.clamp(orb.Point{b.pos[0] + b.vel[0]*dt, b.pos[1] + b.vel[1]*dt})
	default:
		accelerate(b, orb.Point{}, lim.MaxAccel, dt)
		b.pos = w.clamp(orb.Point{b.pos[0] + b.vel[0]*dt, b.pos[1] + b.vel[1]*dt})
	}

	if b.drone {
		use := w.cfg.FuelUsage
		if b.sensing {
			use += w.cfg.Sensors.CameraUsage + w.cfg.Sensors.BLEUsage
		}
		b.fuel -= use * dt
		if b.fuel <= 0 {
			b.fuel = 0
			b.active = false
			b.sensing = false
			b.vel = orb.Point{}
		}
	}
}

// goTo steers toward target, never faster than the speed from which the
// vehicle can still stop on the target.
func (w *World) goTo(b *body, target orb.Point, lim kinematics.Limits, dt float64) {
	dx, dy := target[0]-b.pos[0], target[1]-b.pos[1]
	dist := math.Hypot(dx, dy)
	if dist < 1e-9 {
		b.pos, b.vel = target, orb.Point{}
		return
	}
	speed := math.Min(lim.MaxSpeed, math.Sqrt(2*lim.MaxAccel*dist))
	accelerate(b, orb.Point{dx / dist * speed, dy / dist * speed}, lim.MaxAccel, dt)

	step := orb.Point{b.vel[0] * dt, b.vel[1] * dt}
	if math.Hypot(step[0], step[1]) >= dist {
		b.pos, b.vel = target, orb.Point{}
		return
	}
	b.pos = w.clamp(orb.Point{b.pos[0] + step[0], b.pos[1] + step[1]})
}

// accelerate moves the velocity toward want by at most accel·dt.
func accelerate(b *body, want orb.Point, accel, dt float64) {
	dvx, dvy := want[0]-b.vel[0], want[1]-b.vel[1]
	dv := math.Hypot(dvx, dvy)
	limit := accel * dt
	if dv > limit && dv > 0 {
		dvx, dvy = dvx/dv*limit, dvy/dv*limit
	}
	b.vel = orb.Point{b.vel[0] + dvx, b.vel[1] + dvy}
}

func clampSpeed(v orb.Point, limit float64) orb.Point {
	s := math.Hypot(v[0], v[1])
	if s <= limit || s == 0 {
		return v
	}
	return orb.Point{v[0] / s * limit, v[1] / s * limit}
}

func (w *World) clamp(p orb.Point) orb.Point {
	return orb.Point{
		math.Max(0, math.Min(w.g.Width(), p[0])),
		math.Max(0, math.Min(w.g.Height(), p[1])),
	}
}

// sense refreshes every sensor's subject list. Cameras detect victims in
// range with probability beta, BLE with probability gamma; base vision
// always detects.
func (w *World) sense() {
	var victims []*body
	for _, b := range w.bodies {
		if b.victim && b.active {
			victims = append(victims, b)
		}
	}

	for _, b := range w.bodies {
		b.seen = nil
		if !b.active || !b.sensing {
			continue
		}
		switch {
		case b.drone:
			b.seen = map[string][]string{
				mission.SensorCamera: w.detect(b, victims, w.cfg.Sensors.CameraRange, w.beta),
				mission.SensorBLE:    w.detect(b, victims, w.cfg.Sensors.BLERange, w.gamma),
			}
		case b.base:
			b.seen = map[string][]string{
				mission.SensorVision: w.detect(b, victims, w.cfg.Sensors.VisionRange, 1),
			}
		}
	}
}

func (w *World) detect(from *body, victims []*body, radius, p float64) []string {
	var out []string
	for _, v := range victims {
		if planar.Distance(from.pos, v.pos) > radius {
			continue
		}
		if p >= 1 || w.rng.Chance(p) {
			out = append(out, v.id)
		}
	}
	return out
}

// Remaining returns how many victims are still active.
func (w *World) Remaining() int {
	n := 0
	for _, b := range w.bodies {
		if b.victim && b.active {
			n++
		}
	}
	return n
}
