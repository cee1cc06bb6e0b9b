package grid

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZoneCenterRoundTrip(t *testing.T) {
	g := New(64, 64, 14, orb.Point{448, 448})

	for _, z := range g.Zones() {
		got, ok := g.ZoneAt(z.Center)
		require.True(t, ok, "center of %s must be inside the grid", z)
		assert.Equal(t, z.Coord, got.Coord)
	}
}

func TestZonesTileArea(t *testing.T) {
	g := New(4, 6, 10, orb.Point{30, 20})

	assert.Equal(t, 24, g.Len())
	assert.InDelta(t, 60.0, g.Width(), 1e-9)
	assert.InDelta(t, 40.0, g.Height(), 1e-9)

	var area float64
	for _, z := range g.Zones() {
		b := z.Bound()
		area += (b.Max[0] - b.Min[0]) * (b.Max[1] - b.Min[1])
		assert.InDelta(t, z.Size*float64(z.Coord.Col), b.Min[0], 1e-9)
		assert.InDelta(t, z.Size*float64(z.Coord.Row), b.Min[1], 1e-9)
	}
	assert.InDelta(t, g.Width()*g.Height(), area, 1e-9)
}

func TestZoneAtEdges(t *testing.T) {
	g := New(4, 4, 10, orb.Point{20, 20})

	tests := []struct {
		name  string
		point orb.Point
		want  Coord
		ok    bool
	}{
		{"origin", orb.Point{0, 0}, Coord{0, 0}, true},
		{"far corner", orb.Point{40, 40}, Coord{3, 3}, true},
		{"zone boundary", orb.Point{10, 20}, Coord{2, 1}, true},
		{"negative", orb.Point{-1, 5}, Coord{}, false},
		{"beyond width", orb.Point{40.5, 5}, Coord{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			z, ok := g.ZoneAt(tt.point)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, z.Coord)
			}
		})
	}
}

func TestNeighborCounts(t *testing.T) {
	g := New(5, 5, 1, orb.Point{})

	tests := []struct {
		coord Coord
		want  int
	}{
		{Coord{0, 0}, 3},
		{Coord{4, 4}, 3},
		{Coord{0, 2}, 5},
		{Coord{2, 0}, 5},
		{Coord{2, 2}, 8},
	}
	for _, tt := range tests {
		assert.Len(t, g.Neighbors(tt.coord), tt.want, "neighbors of %s", tt.coord)
		assert.Equal(t, tt.want, g.NeighborCount(tt.coord))
		assert.Len(t, g.Neighborhood(tt.coord), tt.want+1)
	}

	for _, n := range g.Neighbors(Coord{2, 2}) {
		assert.NotEqual(t, Coord{2, 2}, n.Coord)
	}
	assert.Nil(t, g.Neighborhood(Coord{9, 9}))
}

func TestBaseCoveredZones(t *testing.T) {
	// Home on the shared corner of four zones.
	g := New(4, 4, 10, orb.Point{20, 20})
	var covered []Coord
	for _, z := range g.Zones() {
		if g.IsBaseCovered(z) {
			covered = append(covered, z.Coord)
		}
	}
	assert.ElementsMatch(t, []Coord{{1, 1}, {1, 2}, {2, 1}, {2, 2}}, covered)
}

func TestApplyMask(t *testing.T) {
	g := New(2, 2, 1, orb.Point{})

	require.ErrorIs(t, g.ApplyMask([]bool{true}), ErrMalformedMask)
	require.NoError(t, g.ApplyMask([]bool{false, true, false, false}))

	z, _ := g.Zone(Coord{0, 1})
	assert.True(t, z.Blocked())
	assert.Len(t, g.OpenZones(), 3)
	assert.Equal(t, 1, g.TypeCounts()[ZoneBlocked])

	assert.ErrorIs(t, g.ApplyMask([]bool{false, false, false, false}), ErrMaskApplied)
}

func TestLoadMask(t *testing.T) {
	dir := t.TempDir()

	img := image.NewGray(image.Rect(0, 0, 3, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	img.SetGray(2, 1, color.Gray{Y: 0})

	path := filepath.Join(dir, "map.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	mask, err := LoadMask(path, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, false, false, false, true}, mask)

	_, err = LoadMask(path, 3, 3)
	assert.ErrorIs(t, err, ErrMalformedMask)

	bad := filepath.Join(dir, "bad.bmp")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0o644))
	_, err = LoadMask(bad, 2, 3)
	assert.ErrorIs(t, err, ErrMalformedMask)

	_, err = LoadMask(filepath.Join(dir, "missing.png"), 2, 3)
	assert.ErrorIs(t, err, ErrMalformedMask)
}

func TestNoiseMask(t *testing.T) {
	g := New(16, 16, 10, orb.Point{80, 80})

	mask := NoiseMask(g, NoiseConfig{Seed: 7, Fraction: 0.25})
	blocked := 0
	for i, b := range mask {
		if b {
			blocked++
			assert.False(t, g.NearHome(g.Zones()[i]), "zone near home must stay open")
		}
	}
	assert.Equal(t, 64, blocked)

	again := NoiseMask(g, NoiseConfig{Seed: 7, Fraction: 0.25})
	assert.Equal(t, mask, again, "noise mask must be deterministic per seed")

	none := NoiseMask(g, NoiseConfig{Seed: 7})
	assert.NotContains(t, none, true)
}
