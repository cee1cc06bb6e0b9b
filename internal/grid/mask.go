// BLOCKED masks, either decoded from a bitmap or generated from layered
// simplex noise.
package grid

import (
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"sort"

	opensimplex "github.com/ojrac/opensimplex-go"
	_ "golang.org/x/image/bmp"
)

// ErrMalformedMask is returned when a map mask cannot be read or does not fit the grid.
var ErrMalformedMask = errors.New("grid: malformed map mask")

// LoadMask decodes a PNG or BMP file into a row-major BLOCKED mask.
// One pixel maps to one zone; pixel row 0 is zone row 0. Dark pixels
// (luma below one half) are BLOCKED.
func LoadMask(path string, rows, cols int) ([]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMask, err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrMalformedMask, path, err)
	}
	return MaskFromImage(img, rows, cols, format)
}

// MaskFromImage converts a decoded image into a BLOCKED mask.
func MaskFromImage(img image.Image, rows, cols int, format string) ([]bool, error) {
	b := img.Bounds()
	if b.Dx() != cols || b.Dy() != rows {
		return nil, fmt.Errorf("%w: %s image is %dx%d, grid is %dx%d",
			ErrMalformedMask, format, b.Dx(), b.Dy(), cols, rows)
	}
	mask := make([]bool, rows*cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			// Rec. 601 luma on 16-bit channels.
			luma := (299*float64(r) + 587*float64(g) + 114*float64(bl)) / 1000
			mask[y*cols+x] = luma < 0x7fff
		}
	}
	return mask, nil
}

// NoiseConfig holds procedural mask parameters.
type NoiseConfig struct {
	Seed     int64   // Noise seed
	Fraction float64 // Share of zones to block (0.0–1.0)
}

// NoiseMask blocks the highest-noise fraction of zones. Zones within one
// zone size of home are never blocked so the base stays reachable.
func NoiseMask(g *Grid, cfg NoiseConfig) []bool {
	mask := make([]bool, g.Len())
	if cfg.Fraction <= 0 {
		return mask
	}

	noise := opensimplex.NewNormalized(cfg.Seed)

	type sample struct {
		index int
		value float64
	}
	samples := make([]sample, 0, g.Len())
	for i, z := range g.Zones() {
		if g.NearHome(z) {
			continue
		}
		v := octaveNoise(noise, float64(z.Coord.Col), float64(z.Coord.Row), 4, 0.08, 0.5)
		samples = append(samples, sample{index: i, value: v})
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].value > samples[j].value
	})

	n := int(cfg.Fraction * float64(g.Len()))
	if n > len(samples) {
		n = len(samples)
	}
	for _, s := range samples[:n] {
		mask[s.index] = true
	}
	return mask
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
