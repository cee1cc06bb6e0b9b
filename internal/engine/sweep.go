package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/talgya/rescue-sweep/internal/alloc"
	"github.com/talgya/rescue-sweep/internal/belief"
	"github.com/talgya/rescue-sweep/internal/grid"
	"github.com/talgya/rescue-sweep/internal/mission"
	"github.com/talgya/rescue-sweep/internal/sandbox"
	"github.com/talgya/rescue-sweep/internal/trial"
)

// Scenario is everything needed to build one trial.
type Scenario struct {
	ID        string
	Policy    alloc.Policy
	Rows      int
	Cols      int
	ZoneSize  float64
	Home      orb.Point
	MaskPath  string  // PNG/BMP mask; takes precedence over noise
	Blocked   float64 // Fraction of zones blocked by noise when no mask is given
	NoiseSeed int64   // 0 = trial seed
	Mission   mission.Params
	World     sandbox.Config
}

// Result is the outcome of one trial.
type Result struct {
	Shard   int             `json:"shard"`
	Trial   int             `json:"trial"`
	Seed    int64           `json:"seed"`
	Params  trial.Params    `json:"params"`
	Summary mission.Summary `json:"summary"`
	Time    float64         `json:"time"`    // Simulated mission time at the end
	Elapsed time.Duration   `json:"elapsed"` // Wall time
}

// Recorder stores trial results and events.
type Recorder interface {
	SaveTrial(r Result) error
	SaveEvents(r Result, events []mission.Event) error
}

// TickFunc observes a running trial once per tick.
type TickFunc func(shard, trialNo int, snap mission.Snapshot, sum mission.Summary)

// Sweep runs the trials of one parameter sweep.
type Sweep struct {
	Scenario Scenario
	Space    trial.Sweep
	Seeds    []int64
	BaseSeed int64
	Shards   int
	Recorder Recorder      // optional
	OnTick   TickFunc      // optional
	Interval time.Duration // optional per-tick pacing

	maskOnce sync.Once
	mask     []bool
	maskErr  error
}

// loadMask decodes the map mask once for all shards.
func (s *Sweep) loadMask() ([]bool, error) {
	s.maskOnce.Do(func() {
		if s.Scenario.MaskPath == "" {
			return
		}
		s.mask, s.maskErr = grid.LoadMask(s.Scenario.MaskPath, s.Scenario.Rows, s.Scenario.Cols)
	})
	return s.mask, s.maskErr
}

// RunShard runs every trial assigned to shard (0-based). A malformed map is
// fatal and returned before any trial starts. ctx is checked between trials.
func (s *Sweep) RunShard(ctx context.Context, shard int) ([]Result, error) {
	shards := s.Shards
	if shards < 1 {
		shards = 1
	}
	mask, err := s.loadMask()
	if err != nil {
		return nil, fmt.Errorf("shard %d: %w", shard, err)
	}

	st := trial.NewState(s.Space, s.Seeds, s.BaseSeed)
	budget, err := st.TotalTrials(shards, shard)
	if err != nil {
		return nil, err
	}
	slog.Info("shard starting", "shard", shard, "shards", shards, "trials", budget, "first", st.Trial())
	st.Report()

	results := make([]Result, 0, budget)
	for i := 0; i < budget; i++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, events, err := s.runTrial(st, shard, mask)
		if err != nil {
			return results, fmt.Errorf("shard %d trial %d: %w", shard, st.Trial(), err)
		}
		if s.Recorder != nil {
			if err := s.Recorder.SaveTrial(res); err != nil {
				return results, fmt.Errorf("save trial: %w", err)
			}
			if err := s.Recorder.SaveEvents(res, events); err != nil {
				return results, fmt.Errorf("save events: %w", err)
			}
		}
		results = append(results, res)
		slog.Info("trial finished", "shard", shard, "trial", res.Trial,
			"rescued", res.Summary.Rescued, "victims", res.Summary.Victims,
			"drones_done", res.Summary.DronesDone, "heat", res.Summary.Heat)

		if i+1 < budget {
			st.Reset(false)
		}
	}
	return results, nil
}

// BuildGrid creates the trial grid and applies the BLOCKED mask.
func (s *Sweep) BuildGrid(st *trial.State, mask []bool) (*grid.Grid, error) {
	sc := s.Scenario
	g := grid.New(sc.Rows, sc.Cols, sc.ZoneSize, sc.Home)
	switch {
	case mask != nil:
		if err := g.ApplyMask(mask); err != nil {
			return nil, err
		}
	case sc.Blocked > 0:
		seed := sc.NoiseSeed
		if seed == 0 {
			seed = st.Seed()
		}
		if err := g.ApplyMask(grid.NoiseMask(g, grid.NoiseConfig{Seed: seed, Fraction: sc.Blocked})); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Build assembles the controller and runtime of one trial on g. The belief
// field and allocator are created fresh from st.
func (sc Scenario) Build(g *grid.Grid, st *trial.State) (*mission.Mission, *sandbox.World, error) {
	field := belief.New(g, st)
	a, err := alloc.New(sc.Policy, g, field, st, sc.World.Drones)
	if err != nil {
		return nil, nil, err
	}
	return mission.New(sc.Mission, g, field, a, st), sandbox.New(sc.World, g, st), nil
}

func (s *Sweep) runTrial(st *trial.State, shard int, mask []bool) (Result, []mission.Event, error) {
	start := time.Now()
	sc := s.Scenario

	g, err := s.BuildGrid(st, mask)
	if err != nil {
		return Result{}, nil, err
	}
	m, world, err := sc.Build(g, st)
	if err != nil {
		return Result{}, nil, err
	}

	eng := NewEngine()
	eng.Interval = s.Interval
	if sc.Mission.TickLength > 0 {
		eng.MaxTicks = uint64(sc.Mission.Deadline/sc.Mission.TickLength) + 1
	}
	trialNo := st.Trial()
	if s.OnTick != nil {
		eng.OnTick = func(_ uint64, snap mission.Snapshot, _ mission.CommandSet) {
			s.OnTick(shard, trialNo, snap, m.Summary())
		}
	}
	last := eng.Run(m, world)

	res := Result{
		Shard:   shard,
		Trial:   trialNo,
		Seed:    st.Seed(),
		Params:  st.Params(),
		Summary: m.Summary(),
		Time:    last.Time,
		Elapsed: time.Since(start),
	}
	return res, m.TakeEvents(), nil
}
