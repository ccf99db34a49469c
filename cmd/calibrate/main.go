// Package main tunes the force-approximation tree with CMA-ES: it searches
// the opening threshold and tree storage parameters for the cheapest tree
// whose forces stay close to exact all-pairs sums.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/orrery/config"
)

// logRow is one line of calibrate_log.csv.
type logRow struct {
	Eval          int     `csv:"eval"`
	Cost          float64 `csv:"cost"`
	MeanRelError  float64 `csv:"mean_rel_error"`
	MaxRelError   float64 `csv:"max_rel_error"`
	VisitFraction float64 `csv:"visit_fraction"`
	Slack         float64 `csv:"slack"`
	Grows         int     `csv:"grows"`
	Theta         float64 `csv:"theta"`
	ReserveFactor float64 `csv:"reserve_factor"`
	MaxDepth      float64 `csv:"max_depth"`
}

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	scenarioName := flag.String("scenario", "disk", "Scenario whose bodies are used for evaluation")
	bodies := flag.Int("bodies", 0, "Bodies per sample (0 = use config)")
	seeds := flag.Int("seeds", 3, "Number of seeds per evaluation")
	maxEvals := flag.Int("max-evals", 200, "Maximum number of evaluations")
	population := flag.Int("population", 0, "CMA-ES population size (0 = auto)")
	errorWeight := flag.Float64("error-weight", 10, "Cost per unit of mean relative force error")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	if *outputDir == "" {
		log.Fatal("--output is required")
	}

	// Create output directory
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	// Load base config
	if err := config.Init(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	baseCfg := config.Cfg()
	if *bodies > 0 {
		baseCfg.Scenario.Bodies = *bodies
	}

	params := NewParamVector()

	// Generate seeds for evaluation
	evalSeeds := make([]int64, *seeds)
	for i := range evalSeeds {
		evalSeeds[i] = int64(i*1000 + 42)
	}

	fmt.Printf("Computing exact forces for %d samples of %d bodies...\n", *seeds, baseCfg.Scenario.Bodies)
	evaluator, err := NewFitnessEvaluator(params, baseCfg, *scenarioName, evalSeeds, *errorWeight)
	if err != nil {
		log.Fatalf("failed to prepare samples: %v", err)
	}

	dim := params.Dim()
	initX := params.Normalize(params.DefaultVector())

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return evaluator.Evaluate(params.Denormalize(x))
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: *maxEvals,
		Concurrent:      0, // Sequential evaluation
	}

	popSize := *population
	if popSize == 0 {
		popSize = 4 + int(3.0*float64(dim)/2.0)
	}

	method := &optimize.CmaEsChol{
		InitStepSize: 0.3,
		Population:   popSize,
	}

	// Open log file
	logPath := filepath.Join(*outputDir, "calibrate_log.csv")
	logFile, err := os.Create(logPath)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	// Track evaluations and timing
	evalCount := 0
	bestCost := 1e9
	var bestParams []float64
	startTime := time.Now()

	// Wrap the function to log evaluations
	originalFunc := problem.Func
	problem.Func = func(x []float64) float64 {
		cost := originalFunc(x)
		evalCount++

		// Clamped values are the ones actually applied
		clamped := params.Clamp(params.Denormalize(x))
		if cost < bestCost {
			bestCost = cost
			bestParams = clamped
		}

		r := evaluator.LastResult()
		row := []logRow{{
			Eval:          evalCount,
			Cost:          cost,
			MeanRelError:  r.MeanRelError,
			MaxRelError:   r.MaxRelError,
			VisitFraction: r.VisitFraction,
			Slack:         r.Slack,
			Grows:         r.Grows,
			Theta:         clamped[0],
			ReserveFactor: clamped[1],
			MaxDepth:      clamped[2],
		}}
		var werr error
		if evalCount == 1 {
			werr = gocsv.Marshal(row, logFile)
		} else {
			werr = gocsv.MarshalWithoutHeaders(row, logFile)
		}
		if werr != nil {
			log.Printf("failed to write log row: %v", werr)
		}

		elapsed := time.Since(startTime)
		avgPerEval := elapsed / time.Duration(evalCount)
		remaining := time.Duration(*maxEvals-evalCount) * avgPerEval

		fmt.Printf("Eval %d/%d: theta=%.3f err=%.4f visits=%.4f (best=%.4f) | elapsed: %s, ETA: %s\n",
			evalCount, *maxEvals, clamped[0], r.MeanRelError, r.VisitFraction, bestCost,
			formatDuration(elapsed), formatDuration(remaining))

		return cost
	}

	fmt.Printf("Starting CMA-ES calibration with %d parameters, population=%d, max_evals=%d\n",
		dim, popSize, *maxEvals)

	result, err := optimize.Minimize(problem, initX, settings, method)
	if err != nil {
		log.Printf("optimization ended: %v", err)
	}

	// Use best params found (may be from any evaluation, not just final)
	if bestParams == nil && result != nil {
		bestParams = params.Clamp(params.Denormalize(result.X))
	}
	if bestParams == nil {
		log.Fatal("no evaluations completed")
	}

	totalTime := time.Since(startTime)
	best := evaluator.BestResult()
	fmt.Printf("\nCalibration complete after %d evaluations in %s\n", evalCount, formatDuration(totalTime))
	fmt.Printf("Best cost: %.4f (mean error %.4f, max error %.4f, visit fraction %.4f)\n",
		bestCost, best.MeanRelError, best.MaxRelError, best.VisitFraction)

	fmt.Println("\nBest parameters:")
	for i, spec := range params.Specs {
		fmt.Printf("  %s: %.6f\n", spec.Path, bestParams[i])
	}

	// Save best config
	bestCfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to reload config: %v", err)
	}
	params.ApplyToConfig(bestCfg, bestParams)

	configOutPath := filepath.Join(*outputDir, "best_config.yaml")
	if err := bestCfg.WriteYAML(configOutPath); err != nil {
		log.Printf("failed to write best config: %v", err)
	} else {
		fmt.Printf("\nBest config saved to: %s\n", configOutPath)
	}
}
