package telemetry

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/orrery/components"
)

// Collector accumulates step results within windows and produces WindowStats.
type Collector struct {
	windowTicks int64
	dt          float64

	// Current window tracking
	windowStartTick int64

	// Counters for current window
	merges    int64
	bounces   int64
	pruned    int
	visited   int64
	bodyTicks int64 // Σ bodies per tick, for visits per body
	treeGrows int
	treeNodes int

	// Reused between flushes
	speeds []float64
	masses []float64
}

// NewCollector creates a new stats collector.
// windowTicks: ticks per stats window
// dt: simulated time per tick
func NewCollector(windowTicks int, dt float64) *Collector {
	if windowTicks < 1 {
		windowTicks = 1
	}
	return &Collector{
		windowTicks: int64(windowTicks),
		dt:          dt,
	}
}

// RecordTick adds one step's counters to the current window.
func (c *Collector) RecordTick(s TickStats) {
	c.merges += s.Merges
	c.bounces += s.Bounces
	c.pruned += s.Pruned
	c.visited += s.Visited
	c.bodyTicks += int64(s.Bodies)
	c.treeGrows += s.TreeGrows
	c.treeNodes = s.TreeNodes
}

// ShouldFlush returns true if the current window is complete.
func (c *Collector) ShouldFlush(currentTick int64) bool {
	return currentTick-c.windowStartTick >= c.windowTicks
}

// Flush produces a WindowStats from the window counters and the current
// bodies, then resets counters for the next window. Disabled bodies are skipped.
func (c *Collector) Flush(currentTick int64, bodies []components.BodyView) WindowStats {
	c.speeds = c.speeds[:0]
	c.masses = c.masses[:0]

	var momentum, weighted r3.Vec
	var kinetic float64
	for i := range bodies {
		b := &bodies[i]
		if !b.Enabled {
			continue
		}
		speed := r3.Norm(b.Velocity)
		c.speeds = append(c.speeds, speed)
		c.masses = append(c.masses, b.Mass)
		momentum = r3.Add(momentum, r3.Scale(b.Mass, b.Velocity))
		weighted = r3.Add(weighted, r3.Scale(b.Mass, b.Position))
		kinetic += 0.5 * b.Mass * speed * speed
	}

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		SimTime:         float64(currentTick) * c.dt,

		Bodies:        len(c.masses),
		Momentum:      r3.Norm(momentum),
		KineticEnergy: kinetic,

		Merges:  c.merges,
		Bounces: c.bounces,
		Pruned:  c.pruned,

		TreeNodes: c.treeNodes,
		TreeGrows: c.treeGrows,
	}

	if len(c.masses) > 0 {
		stats.TotalMass = floats.Sum(c.masses)
		stats.MaxMass = floats.Max(c.masses)
		com := r3.Scale(1/stats.TotalMass, weighted)
		stats.COMX, stats.COMY, stats.COMZ = com.X, com.Y, com.Z

		stats.SpeedMean, stats.SpeedStd, stats.SpeedP10, stats.SpeedP50, stats.SpeedP90 = Distribution(c.speeds)
		_, _, _, stats.MassP50, stats.MassP90 = Distribution(c.masses)
	}
	if c.bodyTicks > 0 {
		stats.VisitedPerBody = float64(c.visited) / float64(c.bodyTicks)
	}

	// Reset for next window
	c.windowStartTick = currentTick
	c.merges = 0
	c.bounces = 0
	c.pruned = 0
	c.visited = 0
	c.bodyTicks = 0
	c.treeGrows = 0

	return stats
}
