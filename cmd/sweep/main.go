// Command sweep runs a drone search parameter sweep and records every trial
// to SQLite.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/rescue-sweep/internal/api"
	"github.com/talgya/rescue-sweep/internal/config"
	"github.com/talgya/rescue-sweep/internal/engine"
	"github.com/talgya/rescue-sweep/internal/observe"
	"github.com/talgya/rescue-sweep/internal/persistence"
	"github.com/talgya/rescue-sweep/internal/trial"
)

func main() {
	configPath := flag.String("config", "", "scenario TOML file (defaults built in)")
	shard := flag.Int("shard", -1, "run only this 0-based shard; -1 runs every shard in parallel")
	watch := flag.String("watch", "", "serve the live websocket stream on this address")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := run(*configPath, *shard, *watch); err != nil {
		slog.Error("sweep failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, only int, watchAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if watchAddr != "" {
		cfg.Watch.Addr = watchAddr
	}
	if only >= cfg.Sweep.Shards {
		return fmt.Errorf("%w: shard %d of %d", trial.ErrShard, only, cfg.Sweep.Shards)
	}

	seeds, err := trial.LoadSeeds(cfg.Sweep.SeedsFile)
	if err != nil {
		return err
	}
	base := cfg.Sweep.Seed
	if base == 0 && len(seeds) == 0 {
		// Every shard must replay the same sequence to skip ahead correctly.
		base = rand.Int64()
		slog.Warn("no seed configured, drew one", "seed", base)
	}

	// ── Database ──────────────────────────────────────────────────────
	if dir := filepath.Dir(cfg.Storage.DBPath); dir != "." {
		os.MkdirAll(dir, 0755)
	}
	db, err := persistence.Open(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Storage.DBPath)

	text, err := cfg.Encode()
	if err != nil {
		return err
	}
	rec, err := db.BeginRun(cfg.Scenario.ID, cfg.Scenario.Policy, text)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("received signal, stopping after the current trials", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	sweep := &engine.Sweep{
		Scenario: cfg.EngineScenario(),
		Space:    cfg.Space(),
		Seeds:    seeds,
		BaseSeed: base,
		Shards:   cfg.Sweep.Shards,
		Recorder: rec,
		Interval: time.Duration(cfg.Watch.IntervalMS) * time.Millisecond,
	}

	// ── Live stream ───────────────────────────────────────────────────
	var hub *observe.Hub
	if cfg.Watch.Addr != "" {
		hub = observe.NewHub()
		go hub.Run(ctx)
		apiServer := &api.Server{DB: db, Hub: hub}
		srv := &http.Server{Addr: cfg.Watch.Addr, Handler: apiServer.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("watch server failed", "error", err)
			}
		}()
		defer srv.Close()
		sweep.Recorder = observe.Tee(rec, hub)
		sweep.OnTick = hub.TickFunc()
		fmt.Printf("Watch: ws://%s/ws\n", cfg.Watch.Addr)
		fmt.Printf("API: http://%s/api/v1/run/%s\n", cfg.Watch.Addr, rec.ID)
	}

	shards := []int{only}
	if only < 0 {
		shards = shards[:0]
		for s := 0; s < cfg.Sweep.Shards; s++ {
			shards = append(shards, s)
		}
	}

	slog.Info("sweep starting",
		"run", rec.ID,
		"scenario", cfg.Scenario.ID,
		"policy", cfg.Scenario.Policy,
		"trials", cfg.Space().Total(),
		"shards", len(shards),
		"seed", base,
	)
	start := time.Now()

	var mu sync.Mutex
	var results []engine.Result
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range shards {
		g.Go(func() error {
			res, err := sweep.RunShard(gctx, s)
			mu.Lock()
			results = append(results, res...)
			mu.Unlock()
			return err
		})
	}
	err = g.Wait()

	if hub != nil {
		hub.Publish(observe.Message{Type: observe.MsgTypeDone, Data: map[string]int{"trials": len(results)}})
	}
	if ferr := rec.Finish(); ferr != nil {
		slog.Warn("could not stamp run finish", "error", ferr)
	}
	if merr := db.SaveMeta("last_run", rec.ID); merr != nil {
		slog.Warn("could not save run id", "error", merr)
	}

	report(db, rec.ID, results, start)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func report(db *persistence.DB, runID string, results []engine.Result, start time.Time) {
	var rescued, victims, ticks int
	for _, r := range results {
		rescued += r.Summary.Rescued
		victims += r.Summary.Victims
		ticks += r.Summary.Ticks
	}

	fmt.Printf("\nRun %s: %s trials, %s ticks, %s of %s victims rescued (started %s).\n",
		runID,
		humanize.Comma(int64(len(results))),
		humanize.Comma(int64(ticks)),
		humanize.Comma(int64(rescued)),
		humanize.Comma(int64(victims)),
		humanize.Time(start),
	)

	stats, err := db.PointSummary(runID)
	if err != nil {
		slog.Warn("point summary failed", "error", err)
		return
	}
	fmt.Printf("%6s %6s %6s %7s %10s %7s\n", "alpha", "beta", "gamma", "trials", "rescued", "heat")
	for _, p := range stats {
		fmt.Printf("%6.2f %6.2f %6.2f %7d %10s %7.3f\n",
			p.Alpha, p.Beta, p.Gamma, p.Trials, humanize.CommafWithDigits(p.MeanRescued, 1), p.MeanHeat)
	}
}
