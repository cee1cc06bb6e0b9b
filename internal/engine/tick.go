// Package engine provides the tick loop that couples a mission controller
// to a runtime, and the sweep runner that drives one trial after another.
package engine

import (
	"log/slog"
	"time"

	"github.com/talgya/rescue-sweep/internal/mission"
)

// Controller decides the commands for each tick.
type Controller interface {
	Step(snap mission.Snapshot) mission.CommandSet
	Finished(snap mission.Snapshot) bool
}

// Runtime produces world snapshots and executes commands.
type Runtime interface {
	Snapshot() mission.Snapshot
	Apply(cmds mission.CommandSet)
}

// Engine drives a mission forward one tick at a time.
type Engine struct {
	Tick     uint64        // Ticks completed in the current run
	MaxTicks uint64        // Hard cap on ticks; 0 = until the controller finishes
	Speed    float64       // Multiplier for Interval pacing: 1.0 = real-time
	Interval time.Duration // Wall time per tick; 0 = as fast as possible
	Running  bool

	// Called after every tick with the snapshot the commands were computed from.
	OnTick func(tick uint64, snap mission.Snapshot, cmds mission.CommandSet)
}

// NewEngine creates an unpaced engine.
func NewEngine() *Engine {
	return &Engine{
		Tick:  0,
		Speed: 1.0,
	}
}

// Run loops snapshot → finished? → step → apply until the controller
// reports the mission finished, MaxTicks is reached or Stop is called.
// It returns the last snapshot observed.
func (e *Engine) Run(c Controller, rt Runtime) mission.Snapshot {
	e.Running = true
	slog.Debug("mission engine started", "tick", e.Tick)

	var snap mission.Snapshot
	for e.Running {
		snap = rt.Snapshot()
		if c.Finished(snap) || (e.MaxTicks > 0 && e.Tick >= e.MaxTicks) {
			break
		}

		start := time.Now()
		e.step(c, rt, snap)

		if e.Interval > 0 && e.Speed > 0 {
			elapsed := time.Since(start)
			target := time.Duration(float64(e.Interval) / e.Speed)
			if elapsed < target {
				time.Sleep(target - elapsed)
			}
		}
	}

	e.Running = false
	slog.Debug("mission engine stopped", "tick", e.Tick, "time", snap.Time)
	return snap
}

// Stop halts the loop after the current tick.
func (e *Engine) Stop() {
	e.Running = false
}

// step advances the mission by one tick.
func (e *Engine) step(c Controller, rt Runtime, snap mission.Snapshot) {
	cmds := c.Step(snap)
	rt.Apply(cmds)
	e.Tick++

	if e.OnTick != nil {
		e.OnTick(e.Tick, snap, cmds)
	}
}
