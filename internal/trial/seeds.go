package trial

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// LoadSeeds reads a seed sequence, one signed 64-bit integer per line.
// Blank lines and lines starting with '#' are skipped. A missing file is an
// empty sequence.
func LoadSeeds(path string) ([]int64, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open seeds: %w", err)
	}
	defer f.Close()

	var seeds []int64
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("seeds %s:%d: %w", path, line, err)
		}
		seeds = append(seeds, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read seeds: %w", err)
	}
	return seeds, nil
}

// WriteSeeds writes a seed sequence in the format LoadSeeds reads.
func WriteSeeds(path string, seeds []int64) error {
	var b strings.Builder
	for _, s := range seeds {
		b.WriteString(strconv.FormatInt(s, 10))
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write seeds: %w", err)
	}
	return nil
}

// GenerateSeeds derives n seeds from a master seed.
func GenerateSeeds(master int64, n int) []int64 {
	r := NewRand(master)
	out := make([]int64, n)
	for i := range out {
		out[i] = r.Int64()
	}
	return out
}
