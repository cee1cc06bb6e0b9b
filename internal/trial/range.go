package trial

import (
	"fmt"
	"math"
)

// Range is an arithmetic sequence of parameter values.
type Range struct {
	Start     float64 `toml:"start"`
	Step      float64 `toml:"step"`
	End       float64 `toml:"end"`
	Inclusive bool    `toml:"inclusive"`
}

// Fixed returns a single-point range.
func Fixed(v float64) Range {
	return Range{Start: v, End: v, Inclusive: true}
}

// Points returns how many values the range enumerates. Values are indexed
// rather than accumulated, so 0..1 step 0.1 inclusive has exactly 11.
func (r Range) Points() int {
	if r.Step == 0 || r.Start == r.End {
		return 1
	}
	n := (r.End - r.Start) / r.Step
	if n <= 0 {
		return 1
	}
	if r.Inclusive {
		return int(math.Floor(n+1e-9)) + 1
	}
	return int(math.Max(1, math.Ceil(n-1e-9)))
}

// At returns the i-th value of the range.
func (r Range) At(i int) float64 {
	return r.Start + float64(i)*r.Step
}

// Values returns every value of the range in order.
func (r Range) Values() []float64 {
	out := make([]float64, r.Points())
	for i := range out {
		out[i] = r.At(i)
	}
	return out
}

// Validate checks that the range is well formed and stays within [0, 1].
func (r Range) Validate() error {
	if math.IsNaN(r.Start) || math.IsNaN(r.End) || math.IsNaN(r.Step) {
		return fmt.Errorf("range has NaN bound")
	}
	if r.Start != r.End && r.Step == 0 {
		return fmt.Errorf("range %v..%v has zero step", r.Start, r.End)
	}
	if r.Step != 0 && (r.End-r.Start)/r.Step < 0 {
		return fmt.Errorf("range %v..%v step %v never reaches its end", r.Start, r.End, r.Step)
	}
	last := r.At(r.Points() - 1)
	if r.Start < 0 || r.Start > 1 || last < -1e-9 || last > 1+1e-9 {
		return fmt.Errorf("range %v..%v leaves [0, 1]", r.Start, last)
	}
	return nil
}

func (r Range) String() string {
	if r.Points() == 1 {
		return fmt.Sprintf("%g", r.Start)
	}
	return fmt.Sprintf("%g..%g/%g", r.Start, r.At(r.Points()-1), r.Step)
}
