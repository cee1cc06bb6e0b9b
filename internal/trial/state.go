// Package trial owns the experiment state of a parameter sweep: the active
// (alpha, beta, gamma) point, the trial counter and the seeded random source
// that is rebuilt at every trial boundary.
package trial

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrShard is returned for an invalid shard request.
var ErrShard = errors.New("trial: invalid shard")

// Params is one point of the sweep.
type Params struct {
	Alpha float64 `json:"alpha"` // Victim stop probability per tick
	Beta  float64 `json:"beta"`  // Camera discovery probability
	Gamma float64 `json:"gamma"` // BLE discovery probability
}

// MissProbability is the chance neither onboard sensor detects a present
// victim during a scan.
func (p Params) MissProbability() float64 {
	return (1 - p.Beta) * (1 - p.Gamma)
}

// Sweep describes the parameter space and how often each point repeats.
type Sweep struct {
	Alpha   Range `toml:"alpha"`
	Beta    Range `toml:"beta"`
	Gamma   Range `toml:"gamma"`
	Repeats int   `toml:"repeats"`
}

// Total returns the number of trials in the full sweep.
func (s Sweep) Total() int {
	return s.Alpha.Points() * s.Beta.Points() * s.Gamma.Points() * s.Repeats
}

// State is the mutable experiment state. One State belongs to one shard.
type State struct {
	sweep Sweep
	idx   [3]int // alpha, beta, gamma
	trial int

	seeds []int64
	next  int
	seed  int64
	rng   *Rand
}

// NewState creates the state for the first trial. The first seed comes from
// seeds; when seeds is empty, base is used, and a zero base draws one from
// the system entropy pool.
func NewState(sweep Sweep, seeds []int64, base int64) *State {
	if sweep.Repeats < 1 {
		sweep.Repeats = 1
	}
	s := &State{sweep: sweep, seeds: seeds}
	switch {
	case len(seeds) > 0:
		s.seed = seeds[0]
		s.next = 1
	case base != 0:
		s.seed = base
	default:
		s.seed = freshSeed()
		slog.Warn("no seed configured, drew fresh seed", "seed", s.seed)
	}
	s.rng = NewRand(s.seed)
	return s
}

// Params returns the active parameter point.
func (s *State) Params() Params {
	return Params{
		Alpha: s.sweep.Alpha.At(s.idx[0]),
		Beta:  s.sweep.Beta.At(s.idx[1]),
		Gamma: s.sweep.Gamma.At(s.idx[2]),
	}
}

// Trial returns how many trial boundaries have been crossed.
func (s *State) Trial() int { return s.trial }

// Seed returns the seed of the active trial.
func (s *State) Seed() int64 { return s.seed }

// Rand returns the random source of the active trial.
func (s *State) Rand() *Rand { return s.rng }

// Sweep returns the parameter space.
func (s *State) Sweep() Sweep { return s.sweep }

// Reset crosses a trial boundary: every Repeats trials the innermost
// parameter (gamma) advances, carrying into beta and then alpha, wrapping
// to the start when alpha is exhausted. The random source is always
// re-seeded. Unless silent, the new trial is logged.
func (s *State) Reset(silent bool) {
	s.trial++
	if s.trial%s.sweep.Repeats == 0 {
		s.advance()
	}
	s.reseed()
	if !silent {
		s.Report()
	}
}

// Report logs the active trial.
func (s *State) Report() {
	p := s.Params()
	slog.Info("trial", "trial", s.trial, "seed", s.seed,
		"alpha", p.Alpha, "beta", p.Beta, "gamma", p.Gamma)
}

func (s *State) advance() {
	points := [3]int{s.sweep.Alpha.Points(), s.sweep.Beta.Points(), s.sweep.Gamma.Points()}
	for k := 2; k >= 0; k-- {
		s.idx[k]++
		if s.idx[k] < points[k] {
			return
		}
		s.idx[k] = 0
	}
}

func (s *State) reseed() {
	if s.next < len(s.seeds) {
		s.seed = s.seeds[s.next]
		s.next++
	} else {
		s.seed = s.rng.Int64()
		if len(s.seeds) > 0 {
			slog.Warn("seed sequence exhausted, drew seed", "seed", s.seed, "trial", s.trial)
		}
	}
	s.rng = NewRand(s.seed)
}

// TotalTrials returns the trial budget of shard shardIndex (0-based) out of
// shardCount and silently skips ahead to that shard's first trial. Trials
// left over by the integer division are not run by any shard.
func (s *State) TotalTrials(shardCount, shardIndex int) (int, error) {
	if shardCount < 1 || shardIndex < 0 || shardIndex >= shardCount {
		return 0, fmt.Errorf("%w: index %d of %d", ErrShard, shardIndex, shardCount)
	}
	budget := s.sweep.Total() / shardCount
	for i := 0; i < shardIndex*budget; i++ {
		s.Reset(true)
	}
	return budget, nil
}
