// Command seedgen writes a reproducible seeds file for sweep.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/talgya/rescue-sweep/internal/config"
	"github.com/talgya/rescue-sweep/internal/trial"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	out := flag.String("out", "seeds.txt", "output file")
	master := flag.Int64("master", 1, "master seed the sequence derives from")
	count := flag.Int("n", 0, "number of seeds; 0 sizes the file to the sweep in -config")
	configPath := flag.String("config", "", "scenario TOML file used to size the sequence")
	flag.Parse()

	n := *count
	if n <= 0 {
		cfg, err := config.Load(*configPath)
		if err != nil {
			slog.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		n = cfg.Space().Total()
	}

	seeds := trial.GenerateSeeds(*master, n)
	if err := trial.WriteSeeds(*out, seeds); err != nil {
		slog.Error("failed to write seeds", "path", *out, "error", err)
		os.Exit(1)
	}

	info, err := os.Stat(*out)
	if err != nil {
		slog.Error("failed to stat seeds file", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s seeds to %s (%s).\n", humanize.Comma(int64(n)), *out, humanize.Bytes(uint64(info.Size())))
}
