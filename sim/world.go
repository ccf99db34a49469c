// Package sim drives the simulation: it owns the bodies, rebuilds the tree
// every tick and runs the force and integration passes on a worker pool.
package sim

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/orrery/components"
	"github.com/pthm-cable/orrery/config"
	"github.com/pthm-cable/orrery/systems"
	"github.com/pthm-cable/orrery/telemetry"
	"github.com/pthm-cable/orrery/vmath"
)

// ErrInvalidBounds is returned when the simulation volume is empty or not a cube.
var ErrInvalidBounds = errors.New("simulation bounds must be a cube with from < to on every axis")

// BodyView is a read-only copy of one body.
type BodyView = components.BodyView

// Options configures a World.
type Options struct {
	From, To   vmath.Vec3
	Theta      float64
	Gravity    components.Gravity
	Contact    components.Contact
	MergeAngle float64 // radians
	DT         float64
	Tree       systems.TreeParams

	Workers           int // 0 = GOMAXPROCS
	ParallelThreshold int // 0 = default
}

// OptionsFromConfig maps a loaded configuration onto World options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		From:  vmath.V3From(cfg.World.Min),
		To:    vmath.V3From(cfg.World.Max),
		Theta: cfg.Physics.Theta,
		Gravity: components.Gravity{
			G:         cfg.Physics.G,
			Softening: cfg.Physics.Softening,
		},
		Contact: components.Contact{
			Restitution: cfg.Collision.Restitution,
			Friction:    cfg.Collision.Friction,
		},
		MergeAngle: cfg.Derived.MergeAngle,
		DT:         cfg.Physics.DT,
		Tree: systems.TreeParams{
			ReserveFactor: cfg.Tree.ReserveFactor,
			GrowthFactor:  cfg.Tree.GrowthFactor,
			MaxDepth:      cfg.Tree.MaxDepth,
		},
		Workers:           cfg.Parallel.Workers,
		ParallelThreshold: cfg.Parallel.Threshold,
	}
}

// DefaultOptions returns options built from the embedded default configuration.
func DefaultOptions() Options {
	return OptionsFromConfig(config.Default())
}

// StepStats describes the most recent tick.
type StepStats = telemetry.TickStats

// World owns the bodies and steps them.
type World struct {
	opts     Options
	bodies   []components.Body
	tree     *systems.Octree
	resolver *systems.Resolver
	parallel *parallelState
	perf     *telemetry.PerfCollector

	tick int64
	last StepStats
}

// New creates an empty simulation over [opts.From, opts.To).
func New(opts Options) (*World, error) {
	if !(opts.From.X < opts.To.X && opts.From.Y < opts.To.Y && opts.From.Z < opts.To.Z) {
		return nil, fmt.Errorf("%w: [%v, %v)", ErrInvalidBounds, opts.From, opts.To)
	}
	// Node size is measured along x only
	if edge := r3.Sub(opts.To, opts.From); !isCube(edge) {
		return nil, fmt.Errorf("%w: edges %v", ErrInvalidBounds, edge)
	}
	if opts.DT <= 0 {
		opts.DT = 1
	}

	return &World{
		opts:     opts,
		tree:     systems.NewOctree(opts.From, opts.To, opts.Tree),
		resolver: systems.NewResolver(opts.Contact, opts.MergeAngle),
		parallel: newParallelState(opts.Workers, opts.ParallelThreshold),
	}, nil
}

// cubeTolerance is the relative edge mismatch accepted as a cube.
const cubeTolerance = 1e-9

func isCube(edge vmath.Vec3) bool {
	return scalar.EqualWithinRel(edge.X, edge.Y, cubeTolerance) &&
		scalar.EqualWithinRel(edge.X, edge.Z, cubeTolerance)
}

// Close stops the worker pool. The world can still be stepped afterwards;
// workers are restarted on demand.
func (w *World) Close() {
	w.parallel.stopWorkers()
}

// SetPerf attaches a collector that receives per-phase timings.
func (w *World) SetPerf(p *telemetry.PerfCollector) {
	w.perf = p
}

// PlaceBody adds a body between ticks and returns its index. Indices are
// only stable until the next step, which compacts out disabled bodies.
func (w *World) PlaceBody(pos, vel, spin vmath.Vec3, mass float64) (int, error) {
	b, err := components.NewBody(pos, vel, spin, mass)
	if err != nil {
		return -1, fmt.Errorf("placing body at %v: %w", pos, err)
	}
	if !w.tree.Contains(pos) {
		return -1, fmt.Errorf("placing body at %v: %w", pos, systems.ErrOutOfBounds)
	}
	w.bodies = append(w.bodies, b)
	return len(w.bodies) - 1, nil
}

// Step advances one tick using the tree approximation.
// An error means a precondition was violated (a body left the bounds) and
// the world should not be stepped again.
func (w *World) Step() error {
	return w.step(false)
}

// StepBruteForce advances one tick with exact all-pairs forces.
func (w *World) StepBruteForce() error {
	return w.step(true)
}

func (w *World) step(brute bool) error {
	w.startTick()
	defer w.endTick()

	w.startPhase(telemetry.PhasePrune)
	pruned := w.prune()
	bodies := w.bodies
	n := len(bodies)

	w.startPhase(telemetry.PhaseTreeBuild)
	if brute {
		w.tree.Reset(0)
		for i := range bodies {
			if !w.tree.Contains(bodies[i].Position()) {
				return fmt.Errorf("tick %d: body %d at %v: %w", w.tick, i, bodies[i].Position(), systems.ErrOutOfBounds)
			}
		}
	} else if err := w.tree.Build(bodies); err != nil {
		return fmt.Errorf("tick %d: %w", w.tick, err)
	}
	w.resolver.Reset(n)

	w.startPhase(telemetry.PhaseForces)
	q := systems.Query{
		Theta:   w.opts.Theta,
		Gravity: w.opts.Gravity,
		Collide: w.resolver.Func(bodies),
	}
	tree := w.tree
	var visited int64
	if brute {
		visited = w.parallel.run(n, func(start, end int, s *workerScratch) {
			for i := start; i < end; i++ {
				s.visited += int64(systems.BruteForceOn(bodies, i, q))
			}
		})
	} else {
		visited = w.parallel.run(n, func(start, end int, s *workerScratch) {
			for i := start; i < end; i++ {
				s.visited += int64(tree.ForceOn(bodies, i, q))
			}
		})
	}

	// Every force and collision is settled before anything is committed
	w.startPhase(telemetry.PhaseIntegrate)
	dt := w.opts.DT
	w.parallel.run(n, func(start, end int, _ *workerScratch) {
		for i := start; i < end; i++ {
			bodies[i].Integrate(dt)
		}
	})

	w.tick++
	w.last = StepStats{
		Tick:    w.tick,
		Bodies:  n,
		Pruned:  pruned,
		Merges:  w.resolver.Merges(),
		Bounces: w.resolver.Bounces(),
		Visited: visited,
	}
	if !brute {
		w.last.TreeNodes = tree.NodeCount()
		w.last.TreeSplits = tree.Splits()
		w.last.TreeGrows = tree.Grows()
	}
	return nil
}

// prune compacts out disabled bodies, keeping order, and returns how many were removed.
func (w *World) prune() int {
	kept := 0
	for i := range w.bodies {
		if !w.bodies[i].Enabled() {
			continue
		}
		if kept != i {
			w.bodies[kept] = w.bodies[i]
		}
		kept++
	}
	removed := len(w.bodies) - kept
	w.bodies = w.bodies[:kept]
	return removed
}

func (w *World) startTick() {
	if w.perf != nil {
		w.perf.StartTick()
	}
}

func (w *World) startPhase(phase string) {
	if w.perf != nil {
		w.perf.StartPhase(phase)
	}
}

func (w *World) endTick() {
	if w.perf != nil {
		w.perf.EndTick()
	}
}

// Bodies appends a view of every body to dst[:0] and returns it. Bodies
// merged away during the last tick are included with Enabled false until
// the next step prunes them.
func (w *World) Bodies(dst []BodyView) []BodyView {
	dst = dst[:0]
	for i := range w.bodies {
		dst = append(dst, w.bodies[i].View())
	}
	return dst
}

// Body returns a view of body i.
func (w *World) Body(i int) (BodyView, bool) {
	if i < 0 || i >= len(w.bodies) {
		return BodyView{}, false
	}
	return w.bodies[i].View(), true
}

// Len returns the number of bodies, including any disabled during the last tick.
func (w *World) Len() int {
	return len(w.bodies)
}

// Active returns the number of enabled bodies.
func (w *World) Active() int {
	count := 0
	for i := range w.bodies {
		if w.bodies[i].Enabled() {
			count++
		}
	}
	return count
}

// Tick returns the number of completed ticks.
func (w *World) Tick() int64 {
	return w.tick
}

// LastStep returns statistics for the most recent tick.
func (w *World) LastStep() StepStats {
	return w.last
}

// Tree exposes the tree built during the last tree step.
func (w *World) Tree() *systems.Octree {
	return w.tree
}

// Options returns the options the world was created with.
func (w *World) Options() Options {
	return w.opts
}
