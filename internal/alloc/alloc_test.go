package alloc

import (
	"fmt"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/rescue-sweep/internal/belief"
	"github.com/talgya/rescue-sweep/internal/grid"
	"github.com/talgya/rescue-sweep/internal/trial"
)

func newState() *trial.State {
	return trial.NewState(trial.Sweep{
		Alpha:   trial.Fixed(0.5),
		Beta:    trial.Fixed(0.6),
		Gamma:   trial.Fixed(0.6),
		Repeats: 1,
	}, nil, 17)
}

func setup(t *testing.T, policy Policy, g *grid.Grid, agents int) (Allocator, *belief.Field) {
	t.Helper()
	st := newState()
	f := belief.New(g, st)
	a, err := New(policy, g, f, st, agents)
	require.NoError(t, err)
	require.Equal(t, policy, a.Policy())
	return a, f
}

func TestParsePolicy(t *testing.T) {
	for _, p := range Policies {
		got, err := ParsePolicy(" " + string(p) + " ")
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := ParsePolicy("random")
	assert.ErrorIs(t, err, ErrUnknownPolicy)

	_, err = New("random", grid.New(1, 1, 1, orb.Point{}), nil, newState(), 1)
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}

func TestQueueDistinctAssignments(t *testing.T) {
	g := grid.New(6, 6, 10, orb.Point{30, 30})
	a, _ := setup(t, Queue, g, 0)
	require.Equal(t, 32, a.Pending(), "zones near home are excluded")

	seen := make(map[grid.Coord]string)
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("drone-%d", i)
		z, ok := a.Next(id, g.Home())
		require.True(t, ok)
		assert.False(t, g.NearHome(z))
		prev, dup := seen[z.Coord]
		assert.False(t, dup, "%s already held by %s", z.Coord, prev)
		seen[z.Coord] = id

		again, _ := a.Next(id, g.Home())
		assert.Equal(t, z, again, "a held assignment is returned as is")
	}
	assert.Len(t, seen, 10)
	assert.Equal(t, 22, a.Pending())

	a.Release("drone-0")
	assert.Equal(t, 23, a.Pending())
	_, held := a.Assignment("drone-0")
	assert.False(t, held)

	a.Complete("drone-1")
	assert.Equal(t, 23, a.Pending())

	a.Arrived("drone-2")
	assert.Equal(t, 24, a.Pending())
}

func TestQueueExhaustion(t *testing.T) {
	g := grid.New(1, 3, 10, orb.Point{-100, -100})
	a, _ := setup(t, Queue, g, 0)

	for i := 0; i < 3; i++ {
		_, ok := a.Next(fmt.Sprint(i), orb.Point{})
		require.True(t, ok)
	}
	_, ok := a.Next("late", orb.Point{})
	assert.False(t, ok)
}

func TestQueueShuffleIsSeeded(t *testing.T) {
	g := grid.New(8, 8, 10, orb.Point{-100, -100})
	order := func() []grid.Coord {
		a, _ := setup(t, Queue, g, 0)
		var out []grid.Coord
		for i := 0; i < 64; i++ {
			z, _ := a.Next(fmt.Sprint(i), orb.Point{})
			out = append(out, z.Coord)
		}
		return out
	}
	assert.Equal(t, order(), order())
}

func TestGlobalPriority(t *testing.T) {
	g := grid.New(3, 3, 10, orb.Point{-100, -100})
	a, f := setup(t, GlobalPriority, g, 0)
	center := grid.Coord{Row: 1, Col: 1}

	z, ok := a.Next("a", orb.Point{})
	require.True(t, ok)
	assert.Equal(t, center, z.Coord)

	b, _ := a.Next("b", orb.Point{})
	c, _ := a.Next("c", orb.Point{})
	assert.GreaterOrEqual(t, f.NeighborhoodWeight(b.Coord), f.NeighborhoodWeight(c.Coord))
	assert.InDelta(t, 6.0, f.NeighborhoodWeight(b.Coord), 1e-12)

	a.Release("a")
	d, _ := a.Next("d", orb.Point{})
	assert.NotEqual(t, center, d.Coord, "released zone waits at the back until the next refresh")

	a.Refresh()
	e, _ := a.Next("e", orb.Point{})
	assert.Equal(t, center, e.Coord)
}

func TestLocalPriority(t *testing.T) {
	g := grid.New(3, 3, 10, orb.Point{-100, -100})
	a, f := setup(t, LocalPriority, g, 0)
	here := orb.Point{15, 15}

	edges := map[grid.Coord]bool{
		{Row: 0, Col: 1}: true, {Row: 1, Col: 0}: true,
		{Row: 1, Col: 2}: true, {Row: 2, Col: 1}: true,
	}
	first, ok := a.Next("a", here)
	require.True(t, ok)
	assert.True(t, edges[first.Coord], "%s is not an edge zone", first.Coord)

	// The first zone lost weight, so its neighborhood and the two edges
	// touching it now rank below the opposite edge.
	second, ok := a.Next("b", here)
	require.True(t, ok)
	assert.Equal(t, grid.Coord{Row: 2 - first.Coord.Row, Col: 2 - first.Coord.Col}, second.Coord)

	again, _ := a.Next("a", here)
	assert.Equal(t, first.Coord, again.Coord, "held zone is returned as is")

	_, ok = a.Next("outside", orb.Point{-5, -5})
	assert.False(t, ok)
	assert.Zero(t, a.Pending())
	assert.InDelta(t, 0.16, f.Weight(first.Coord), 1e-12)
}

func TestLocalScansAtAllocation(t *testing.T) {
	g := grid.New(5, 5, 10, orb.Point{-100, -100})
	a, f := setup(t, LocalPriority, g, 0)

	z, ok := a.Next("a", orb.Point{25, 25})
	require.True(t, ok)
	assert.InDelta(t, 0.16, f.Weight(z.Coord), 1e-12, "weight drops when the zone is handed out")

	a.Next("a", orb.Point{25, 25})
	a.Arrived("a")
	assert.InDelta(t, 0.16, f.Weight(z.Coord), 1e-12, "arrival does not scan again")
	_, held := a.Assignment("a")
	assert.False(t, held)
}

func TestArrivalScans(t *testing.T) {
	for _, policy := range []Policy{Queue, GlobalPriority, PartitionTour} {
		t.Run(string(policy), func(t *testing.T) {
			g := grid.New(4, 4, 10, orb.Point{-100, -100})
			a, f := setup(t, policy, g, 2)

			z, ok := a.Next("a", orb.Point{})
			require.True(t, ok)
			assert.Equal(t, 1.0, f.Weight(z.Coord), "allocation leaves the weight alone")

			a.Arrived("a")
			assert.InDelta(t, 0.16, f.Weight(z.Coord), 1e-12)

			a.Arrived("nobody")
		})
	}
}

func TestLocalSkipsBlocked(t *testing.T) {
	g := grid.New(1, 3, 10, orb.Point{-100, -100})
	require.NoError(t, g.ApplyMask([]bool{true, false, true}))
	a, _ := setup(t, LocalPriority, g, 0)

	_, ok := a.Next("a", orb.Point{15, 5})
	assert.False(t, ok)
}

func TestBlockShape(t *testing.T) {
	tests := []struct{ n, rows, cols int }{
		{32, 8, 4},
		{16, 4, 4},
		{7, 7, 1},
		{12, 4, 3},
		{1, 1, 1},
		{0, 1, 1},
	}
	for _, tt := range tests {
		r, c := BlockShape(tt.n)
		assert.Equal(t, tt.rows, r, "n=%d", tt.n)
		assert.Equal(t, tt.cols, c, "n=%d", tt.n)
	}
}

func TestBlocksPartitionZones(t *testing.T) {
	g := grid.New(64, 64, 14, orb.Point{448, 448})
	blocks := Blocks(g, 32)
	require.Len(t, blocks, 32)

	seen := make(map[grid.Coord]int)
	total := 0
	for i, b := range blocks {
		for _, z := range b {
			_, dup := seen[z.Coord]
			assert.False(t, dup)
			seen[z.Coord] = i
		}
		total += len(b)
	}
	assert.Equal(t, 64*64-4, total, "every searchable zone is in exactly one block")

	// First block covers rows 0-7, columns 0-15.
	for _, z := range blocks[0] {
		assert.Less(t, z.Coord.Row, 8)
		assert.Less(t, z.Coord.Col, 16)
	}
}

func TestTourNearestNeighbor(t *testing.T) {
	g := grid.New(4, 4, 10, orb.Point{0, 0})
	tour := Tour(g.Home(), Blocks(g, 2)[0])
	require.Len(t, tour, 7)
	assert.Equal(t, grid.Coord{Row: 0, Col: 1}, tour[0].Coord)
	assert.Equal(t, grid.Coord{Row: 0, Col: 2}, tour[1].Coord)

	for i := 1; i < len(tour); i++ {
		assert.NotEqual(t, tour[i-1].Coord, tour[i].Coord)
	}
}

func TestPartitionLifecycle(t *testing.T) {
	g := grid.New(4, 4, 10, orb.Point{0, 0})
	a, _ := setup(t, PartitionTour, g, 2)

	z, ok := a.Next("a", g.Home())
	require.True(t, ok)
	assert.Equal(t, grid.Coord{Row: 0, Col: 1}, z.Coord)
	assert.Equal(t, 14, a.Pending())

	a.Arrived("a")
	next, _ := a.Assignment("a")
	assert.Equal(t, grid.Coord{Row: 0, Col: 2}, next.Coord)
	assert.Equal(t, 13, a.Pending())

	a.Release("a")
	_, held := a.Assignment("a")
	assert.False(t, held)
	assert.Equal(t, 14, a.Pending())

	b, ok := a.Next("b", g.Home())
	require.True(t, ok)
	assert.GreaterOrEqual(t, b.Coord.Row, 2, "second drone claims the second block")
	assert.Equal(t, 13, a.Pending())

	c, ok := a.Next("c", g.Home())
	require.True(t, ok)
	assert.Equal(t, grid.Coord{Row: 0, Col: 2}, c.Coord, "overflow pool serves drones without a block")
	assert.Equal(t, 12, a.Pending())

	a.Arrived("c")
	d, ok := a.Next("c", g.Home())
	require.True(t, ok)
	assert.Less(t, d.Coord.Row, 2)
}
