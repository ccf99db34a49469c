// Package runner wires a scenario, the simulation and telemetry into a
// headless loop shared by the command line tools.
package runner

import (
	"fmt"
	"log/slog"

	"github.com/pthm-cable/orrery/config"
	"github.com/pthm-cable/orrery/scenario"
	"github.com/pthm-cable/orrery/sim"
	"github.com/pthm-cable/orrery/telemetry"
)

// Options configures a Runner.
type Options struct {
	Scenario       string // empty = config scenario.name
	Seed           int64  // 0 = config scenario.seed
	Bodies         int    // 0 = config scenario.bodies
	BruteForce     bool   // exact forces even for large scenarios
	LogStats       bool
	StatsWindow    int // ticks per stats window, 0 = config
	OutputDir      string
	StepsPerUpdate int

	// StatsCallback receives every flushed window.
	StatsCallback func(telemetry.WindowStats)
}

// Runner owns one simulation run.
type Runner struct {
	cfg     *config.Config
	info    scenario.Info
	world   *sim.World
	spawner *scenario.Spawner
	brute   bool

	perfCollector *telemetry.PerfCollector
	collector     *telemetry.Collector
	outputManager *telemetry.OutputManager
	logStats      bool
	statsCallback func(telemetry.WindowStats)

	stepsPerUpdate int
	views          []sim.BodyView
}

// New builds the scenario and places its first batch of bodies.
func New(cfg *config.Config, opts Options) (*Runner, error) {
	name := opts.Scenario
	if name == "" {
		name = cfg.Scenario.Name
	}
	reg := scenario.NewRegistry()
	info, ok := reg.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", scenario.ErrUnknownScenario, name, reg.Names())
	}

	params := scenario.ParamsFromConfig(cfg)
	if opts.Seed != 0 {
		params.Seed = opts.Seed
	}
	if opts.Bodies > 0 {
		params.Bodies = opts.Bodies
	}
	spawner, err := reg.Build(name, params)
	if err != nil {
		return nil, err
	}

	world, err := sim.New(sim.OptionsFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("creating simulation: %w", err)
	}

	window := cfg.Telemetry.StatsWindow
	if opts.StatsWindow > 0 {
		window = opts.StatsWindow
	}

	outputManager, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		world.Close()
		return nil, err
	}
	if err := outputManager.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config", "error", err)
	}

	r := &Runner{
		cfg:            cfg,
		info:           info,
		world:          world,
		spawner:        spawner,
		brute:          opts.BruteForce || info.BruteForce,
		perfCollector:  telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		collector:      telemetry.NewCollector(window, cfg.Physics.DT),
		outputManager:  outputManager,
		logStats:       opts.LogStats,
		statsCallback:  opts.StatsCallback,
		stepsPerUpdate: max(opts.StepsPerUpdate, 1),
	}
	world.SetPerf(r.perfCollector)

	if _, err := spawner.Spawn(world); err != nil {
		r.Unload()
		return nil, err
	}
	return r, nil
}

// Update advances the simulation by StepsPerUpdate ticks. Incremental
// scenarios release one batch before each tick until exhausted.
func (r *Runner) Update() error {
	for i := 0; i < r.stepsPerUpdate; i++ {
		if err := r.step(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) step() error {
	if r.world.Tick() > 0 && !r.spawner.Done() {
		if _, err := r.spawner.Spawn(r.world); err != nil {
			return err
		}
	}

	var err error
	if r.brute {
		err = r.world.StepBruteForce()
	} else {
		err = r.world.Step()
	}
	if err != nil {
		return err
	}

	r.collector.RecordTick(r.world.LastStep())
	r.flushTelemetry()
	return nil
}

// flushTelemetry emits a window of stats when one is complete.
func (r *Runner) flushTelemetry() {
	tick := r.world.Tick()
	if !r.collector.ShouldFlush(tick) {
		return
	}

	r.views = r.world.Bodies(r.views)
	stats := r.collector.Flush(tick, r.views)
	perfStats := r.perfCollector.Stats()

	if r.statsCallback != nil {
		r.statsCallback(stats)
	}

	if r.logStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if r.outputManager != nil {
		if err := r.outputManager.WriteTelemetry(stats); err != nil {
			slog.Error("failed to write telemetry", "error", err)
		}
		if err := r.outputManager.WritePerf(perfStats, stats.WindowEndTick); err != nil {
			slog.Error("failed to write perf", "error", err)
		}
	}
}

// Tick returns the number of completed ticks.
func (r *Runner) Tick() int64 {
	return r.world.Tick()
}

// World returns the simulation being run.
func (r *Runner) World() *sim.World {
	return r.world
}

// Scenario returns the info of the scenario being run.
func (r *Runner) Scenario() scenario.Info {
	return r.info
}

// Pending returns the number of scenario bodies not yet placed.
func (r *Runner) Pending() int {
	return r.spawner.Remaining()
}

// BruteForce reports whether ticks use exact all-pairs forces.
func (r *Runner) BruteForce() bool {
	return r.brute
}

// Perf returns the phase timing collector.
func (r *Runner) Perf() *telemetry.PerfCollector {
	return r.perfCollector
}

// Unload stops workers and closes output files.
func (r *Runner) Unload() {
	r.world.Close()
	if err := r.outputManager.Close(); err != nil {
		slog.Error("failed to close output", "error", err)
	}
}
