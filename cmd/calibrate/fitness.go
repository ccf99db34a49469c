package main

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/orrery/components"
	"github.com/pthm-cable/orrery/config"
	"github.com/pthm-cable/orrery/scenario"
	"github.com/pthm-cable/orrery/systems"
	"github.com/pthm-cable/orrery/vmath"
)

// Cost weights. Visits are measured as a fraction of the all-pairs work.
const (
	weightSlack = 0.05 // unused node capacity after a build
	weightGrow  = 0.02 // per storage growth during a build
)

// sample is one seeded body set with its exact accelerations.
type sample struct {
	seed   int64
	bodies []components.Body
	exact  []vmath.Vec3
}

// Result breaks a cost down into its parts.
type Result struct {
	Cost          float64
	MeanRelError  float64
	MaxRelError   float64
	VisitFraction float64
	Slack         float64
	Grows         int
}

// FitnessEvaluator builds trees over fixed body sets and scores the forces
// they produce against exact all-pairs sums.
type FitnessEvaluator struct {
	params      *ParamVector
	baseConfig  *config.Config
	samples     []sample
	errorWeight float64

	// Best run tracking
	mu         sync.Mutex
	bestCost   float64
	bestResult Result
	lastResult Result
}

// NewFitnessEvaluator generates one body set per seed and computes its exact
// accelerations once.
func NewFitnessEvaluator(params *ParamVector, baseCfg *config.Config, scenarioName string, seeds []int64, errorWeight float64) (*FitnessEvaluator, error) {
	reg := scenario.NewRegistry()
	gravity := components.Gravity{G: baseCfg.Physics.G, Softening: baseCfg.Physics.Softening}

	fe := &FitnessEvaluator{
		params:      params,
		baseConfig:  baseCfg,
		errorWeight: errorWeight,
		bestCost:    math.Inf(1),
	}

	for _, seed := range seeds {
		p := scenario.ParamsFromConfig(baseCfg)
		p.Seed = seed
		spawner, err := reg.Build(scenarioName, p)
		if err != nil {
			return nil, err
		}

		specs := spawner.Specs()
		s := sample{seed: seed, bodies: make([]components.Body, len(specs)), exact: make([]vmath.Vec3, len(specs))}
		for i, spec := range specs {
			b, err := components.NewBody(spec.Position, spec.Velocity, spec.Spin, spec.Mass)
			if err != nil {
				return nil, fmt.Errorf("seed %d body %d: %w", seed, i, err)
			}
			s.bodies[i] = b
		}

		work := append([]components.Body(nil), s.bodies...)
		q := systems.Query{Gravity: gravity}
		for i := range work {
			systems.BruteForceOn(work, i, q)
			s.exact[i] = work[i].Acceleration()
		}
		fe.samples = append(fe.samples, s)
	}
	return fe, nil
}

// BestResult returns the breakdown of the lowest cost seen.
func (fe *FitnessEvaluator) BestResult() Result {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.bestResult
}

// LastResult returns the breakdown of the most recent evaluation.
func (fe *FitnessEvaluator) LastResult() Result {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastResult
}

// Evaluate computes the cost for a parameter vector (lower = better),
// averaged over all samples.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	cfg := fe.copyConfig()
	fe.params.ApplyToConfig(cfg, x)

	// Run all samples in parallel
	results := make([]Result, len(fe.samples))
	errs := make([]error, len(fe.samples))
	var wg sync.WaitGroup

	for i := range fe.samples {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = fe.runSample(cfg, &fe.samples[idx])
		}(i)
	}
	wg.Wait()

	var avg Result
	for i, r := range results {
		if errs[i] != nil {
			// A tree that cannot hold the bodies is never acceptable.
			return math.Inf(1)
		}
		avg.Cost += r.Cost
		avg.MeanRelError += r.MeanRelError
		avg.MaxRelError = math.Max(avg.MaxRelError, r.MaxRelError)
		avg.VisitFraction += r.VisitFraction
		avg.Slack += r.Slack
		avg.Grows += r.Grows
	}
	n := float64(len(results))
	avg.Cost /= n
	avg.MeanRelError /= n
	avg.VisitFraction /= n
	avg.Slack /= n

	fe.mu.Lock()
	if avg.Cost < fe.bestCost {
		fe.bestCost = avg.Cost
		fe.bestResult = avg
	}
	fe.lastResult = avg
	fe.mu.Unlock()

	return avg.Cost
}

// runSample builds a tree over one sample and scores its forces.
func (fe *FitnessEvaluator) runSample(cfg *config.Config, s *sample) (Result, error) {
	tree := systems.NewOctree(vmath.V3From(cfg.World.Min), vmath.V3From(cfg.World.Max), systems.TreeParams{
		ReserveFactor: cfg.Tree.ReserveFactor,
		GrowthFactor:  cfg.Tree.GrowthFactor,
		MaxDepth:      cfg.Tree.MaxDepth,
	})

	work := append([]components.Body(nil), s.bodies...)
	if err := tree.Build(work); err != nil {
		return Result{}, fmt.Errorf("seed %d: %w", s.seed, err)
	}

	q := systems.Query{
		Theta:   cfg.Physics.Theta,
		Gravity: components.Gravity{G: cfg.Physics.G, Softening: cfg.Physics.Softening},
	}

	relErrs := make([]float64, 0, len(work))
	visited := 0
	for i := range work {
		visited += tree.ForceOn(work, i, q)
		exact := r3.Norm(s.exact[i])
		if exact == 0 {
			continue
		}
		relErrs = append(relErrs, r3.Norm(r3.Sub(work[i].Acceleration(), s.exact[i]))/exact)
	}

	n := float64(len(work))
	r := Result{
		VisitFraction: float64(visited) / (n * n),
		Slack:         1 - float64(tree.NodeCount())/float64(tree.Capacity()),
		Grows:         tree.Grows(),
	}
	if len(relErrs) > 0 {
		r.MeanRelError = stat.Mean(relErrs, nil)
		for _, e := range relErrs {
			r.MaxRelError = math.Max(r.MaxRelError, e)
		}
	}
	r.Cost = r.VisitFraction + fe.errorWeight*r.MeanRelError + weightSlack*r.Slack + weightGrow*float64(r.Grows)
	return r, nil
}

// copyConfig returns a copy of the base config that parameters can be
// applied to without touching the original.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg := *fe.baseConfig
	return &cfg
}
