package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/pthm-cable/orrery/config"
	"github.com/pthm-cable/orrery/runner"
	"github.com/pthm-cable/orrery/scenario"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	scenarioName := flag.String("scenario", "", "Scenario to run (empty = use config)")
	list := flag.Bool("list", false, "List scenarios and exit")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	statsWindow := flag.Int("stats-window", 0, "Stats window size in ticks (0 = use config)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	seed := flag.Int64("seed", 0, "RNG seed (0 = use config)")
	bodies := flag.Int("bodies", 0, "Body count for generated scenarios (0 = use config)")
	maxTicks := flag.Int("max-ticks", 0, "Stop after N ticks (0 = unlimited)")
	brute := flag.Bool("brute", false, "Use exact all-pairs forces instead of the tree")
	workers := flag.Int("workers", -1, "Force workers (-1 = use config, 0 = GOMAXPROCS)")
	stepsPerUpdate := flag.Int("steps-per-update", 1, "Simulation ticks per update call")

	flag.Parse()

	if *list {
		for _, info := range scenario.NewRegistry().All() {
			fmt.Printf("%-10s %-10s %s\n", info.Name, info.Category, info.Description)
		}
		return
	}

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()
	if *workers >= 0 {
		cfg.Parallel.Workers = *workers
	}

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	r, err := runner.New(cfg, runner.Options{
		Scenario:       *scenarioName,
		Seed:           *seed,
		Bodies:         *bodies,
		BruteForce:     *brute,
		LogStats:       *logStats,
		StatsWindow:    *statsWindow,
		OutputDir:      *outputDir,
		StepsPerUpdate: *stepsPerUpdate,
	})
	if err != nil {
		slog.Error("failed to start simulation", "error", err)
		os.Exit(1)
	}
	defer r.Unload()

	slog.Info("starting simulation",
		"scenario", r.Scenario().Name,
		"bodies", r.World().Len()+r.Pending(),
		"brute_force", r.BruteForce(),
		"max_ticks", *maxTicks,
		"steps_per_update", *stepsPerUpdate,
	)

	for {
		if err := r.Update(); err != nil {
			slog.Error("simulation stopped", "tick", r.Tick(), "error", err)
			r.Unload()
			os.Exit(1)
		}

		if *maxTicks > 0 && int(r.Tick()) >= *maxTicks {
			slog.Info("max ticks reached", "tick", r.Tick(), "bodies", r.World().Active())
			return
		}
	}
}
