package kinematics

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Verdict is the outcome of a feasibility check.
type Verdict uint8

const (
	Feasible    Verdict = iota
	PastDeadline        // Less than one tick left in the mission
	OutOfTime           // Trip plus return would end after the deadline
	OutOfFuel           // Projected burn exceeds the remaining fuel
)

// String returns a short label for the verdict.
func (v Verdict) String() string {
	switch v {
	case Feasible:
		return "feasible"
	case PastDeadline:
		return "past deadline"
	case OutOfTime:
		return "out of time"
	case OutOfFuel:
		return "out of fuel"
	default:
		return "unknown"
	}
}

// Probe is the part of a drone's state the budget needs.
type Probe struct {
	Location orb.Point
	Speed    float64
	Fuel     float64 // Fraction remaining, 0–1
}

// Budget is the time and fuel envelope of a mission.
type Budget struct {
	Home       orb.Point
	Start      float64 // Mission start time
	Deadline   float64 // Absolute mission end time
	TickLength float64
	Limits     Limits
}

// Trip returns the outbound and return legs for visiting target from the
// probe's location, each floored at one tick.
func (b Budget) Trip(p Probe, target orb.Point) (travel, back float64) {
	travel = b.Limits.Time(planar.Distance(p.Location, target), p.Speed)
	back = b.Limits.Time(planar.Distance(target, b.Home), 0)
	return math.Max(travel, b.TickLength), math.Max(back, b.TickLength)
}

// BurnRate is the average fuel fraction used per unit time since the start
// of the mission. It is zero until any time has elapsed.
func (b Budget) BurnRate(fuel, now float64) float64 {
	elapsed := now - b.Start
	if elapsed <= 0 {
		return 0
	}
	used := 1 - fuel
	if used < 0 {
		used = 0
	}
	return used / elapsed
}

// Check evaluates a visit to target at time now.
func (b Budget) Check(p Probe, now float64, target orb.Point) Verdict {
	remaining := b.Deadline - now
	if remaining <= b.TickLength {
		return PastDeadline
	}
	travel, back := b.Trip(p, target)
	total := travel + back
	if total >= remaining {
		return OutOfTime
	}
	if b.BurnRate(p.Fuel, now)*total >= p.Fuel {
		return OutOfFuel
	}
	return Feasible
}

// Feasible reports whether a visit to target can be completed with a safe
// return home.
func (b Budget) Feasible(p Probe, now float64, target orb.Point) bool {
	return b.Check(p, now, target) == Feasible
}
