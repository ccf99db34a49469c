// Package main times simulation ticks with the tree and, optionally, with
// exact all-pairs forces over the same scenario.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/orrery/config"
	"github.com/pthm-cable/orrery/runner"
	"github.com/pthm-cable/orrery/telemetry"
)

// roundResult is one timed round, written as a row of the CSV report.
type roundResult struct {
	Mode           string  `csv:"mode"`
	Round          int     `csv:"round"`
	Bodies         int     `csv:"bodies"`
	VisitedPerBody float64 `csv:"visited_per_body"`
	TreeNodes      int     `csv:"tree_nodes"`
	TreeDepth      int     `csv:"tree_depth"`
	telemetry.PerfStatsCSV
}

// runRound builds a fresh runner and times ticks after warmup.
func runRound(cfg *config.Config, scenarioName string, brute bool, warmup, ticks int) (roundResult, error) {
	c := *cfg
	c.Telemetry.PerfWindow = ticks

	r, err := runner.New(&c, runner.Options{Scenario: scenarioName, BruteForce: brute})
	if err != nil {
		return roundResult{}, err
	}
	defer r.Unload()

	for i := 0; i < warmup; i++ {
		if err := r.Update(); err != nil {
			return roundResult{}, err
		}
	}

	var visited, bodyTicks int64
	for i := 0; i < ticks; i++ {
		if err := r.Update(); err != nil {
			return roundResult{}, err
		}
		last := r.World().LastStep()
		visited += last.Visited
		bodyTicks += int64(last.Bodies)
	}

	mode := "tree"
	if r.BruteForce() {
		mode = "brute"
	}
	last := r.World().LastStep()
	res := roundResult{
		Mode:         mode,
		Bodies:       last.Bodies,
		TreeNodes:    last.TreeNodes,
		TreeDepth:    r.World().Tree().Depth(),
		PerfStatsCSV: r.Perf().Stats().ToCSV(r.Tick()),
	}
	if bodyTicks > 0 {
		res.VisitedPerBody = float64(visited) / float64(bodyTicks)
	}
	return res, nil
}

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	scenarioName := flag.String("scenario", "benchmark", "Scenario to time")
	bodies := flag.Int("bodies", 0, "Body count (0 = use config)")
	rounds := flag.Int("rounds", 3, "Timed rounds per mode")
	warmup := flag.Int("warmup", 5, "Untimed ticks before each round")
	ticks := flag.Int("ticks", 50, "Timed ticks per round")
	workers := flag.Int("workers", -1, "Force workers (-1 = use config, 0 = GOMAXPROCS)")
	compare := flag.Bool("compare", false, "Also time exact all-pairs forces")
	csvPath := flag.String("csv", "", "Write per-round results to this CSV file")
	flag.Parse()

	if err := config.Init(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Cfg()
	if *bodies > 0 {
		cfg.Scenario.Bodies = *bodies
	}
	if *workers >= 0 {
		cfg.Parallel.Workers = *workers
	}

	modes := []bool{false}
	if *compare {
		modes = append(modes, true)
	}

	var results []roundResult
	for _, brute := range modes {
		avgs := make([]float64, 0, *rounds)
		var mode string
		for round := 1; round <= *rounds; round++ {
			res, err := runRound(cfg, *scenarioName, brute, *warmup, *ticks)
			if err != nil {
				log.Fatalf("round %d: %v", round, err)
			}
			res.Round = round
			mode = res.Mode
			results = append(results, res)
			avgs = append(avgs, float64(res.AvgTickUS))

			fmt.Printf("%-5s round %d: bodies=%d avg=%dus min=%dus max=%dus visited/body=%.1f depth=%d forces=%.1f%%\n",
				res.Mode, round, res.Bodies, res.AvgTickUS, res.MinTickUS, res.MaxTickUS,
				res.VisitedPerBody, res.TreeDepth, res.ForcesPct)
		}

		mean, std := stat.MeanStdDev(avgs, nil)
		if len(avgs) < 2 {
			std = 0
		}
		fmt.Printf("%-5s summary: avg=%s std=%s best=%s worst=%s\n\n", mode,
			time.Duration(mean*1e3), time.Duration(std*1e3),
			time.Duration(floats.Min(avgs)*1e3), time.Duration(floats.Max(avgs)*1e3))
	}

	if *csvPath != "" {
		f, err := os.Create(*csvPath)
		if err != nil {
			log.Fatalf("failed to create %s: %v", *csvPath, err)
		}
		defer f.Close()
		if err := gocsv.MarshalFile(&results, f); err != nil {
			log.Fatalf("failed to write results: %v", err)
		}
		fmt.Printf("Results saved to: %s\n", *csvPath)
	}
}
