// Package telemetry provides step timing, windowed physical statistics and CSV output.
package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// TickStats describes one completed step.
type TickStats struct {
	Tick       int64
	Bodies     int // bodies taking part in the tick
	Pruned     int // disabled bodies removed before the tick
	Merges     int64
	Bounces    int64
	Visited    int64 // tree nodes visited, or pairs examined when brute forcing
	TreeNodes  int
	TreeSplits int
	TreeGrows  int
}

// WindowStats holds aggregated statistics for a window of ticks.
type WindowStats struct {
	WindowStartTick int64   `csv:"-"`
	WindowEndTick   int64   `csv:"window_end"`
	SimTime         float64 `csv:"sim_time"`

	// State at window end
	Bodies        int     `csv:"bodies"`
	TotalMass     float64 `csv:"total_mass"`
	MaxMass       float64 `csv:"max_mass"`
	Momentum      float64 `csv:"momentum"` // |Σ m·v|
	KineticEnergy float64 `csv:"kinetic_energy"`
	COMX          float64 `csv:"com_x"`
	COMY          float64 `csv:"com_y"`
	COMZ          float64 `csv:"com_z"`

	// Speed distribution
	SpeedMean float64 `csv:"speed_mean"`
	SpeedStd  float64 `csv:"speed_std"`
	SpeedP10  float64 `csv:"speed_p10"`
	SpeedP50  float64 `csv:"speed_p50"`
	SpeedP90  float64 `csv:"speed_p90"`

	// Mass distribution
	MassP50 float64 `csv:"mass_p50"`
	MassP90 float64 `csv:"mass_p90"`

	// Events during window
	Merges  int64 `csv:"merges"`
	Bounces int64 `csv:"bounces"`
	Pruned  int   `csv:"pruned"`

	// Tree load
	VisitedPerBody float64 `csv:"visited_per_body"`
	TreeNodes      int     `csv:"tree_nodes"`
	TreeGrows      int     `csv:"tree_grows"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Distribution summarizes values: population mean and standard deviation,
// and interpolated percentiles. values is not modified.
func Distribution(values []float64) (mean, std, p10, p50, p90 float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0, 0
	}

	mean, std = stat.PopMeanStdDev(values, nil)

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	return mean, std, Percentile(sorted, 0.10), Percentile(sorted, 0.50), Percentile(sorted, 0.90)
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("window_start", s.WindowStartTick),
		slog.Int64("window_end", s.WindowEndTick),
		slog.Float64("sim_time", s.SimTime),
		slog.Int("bodies", s.Bodies),
		slog.Float64("total_mass", s.TotalMass),
		slog.Float64("max_mass", s.MaxMass),
		slog.Float64("momentum", s.Momentum),
		slog.Float64("kinetic_energy", s.KineticEnergy),
		slog.Float64("com_x", s.COMX),
		slog.Float64("com_y", s.COMY),
		slog.Float64("com_z", s.COMZ),
		slog.Float64("speed_mean", s.SpeedMean),
		slog.Float64("speed_std", s.SpeedStd),
		slog.Float64("speed_p10", s.SpeedP10),
		slog.Float64("speed_p50", s.SpeedP50),
		slog.Float64("speed_p90", s.SpeedP90),
		slog.Float64("mass_p50", s.MassP50),
		slog.Float64("mass_p90", s.MassP90),
		slog.Int64("merges", s.Merges),
		slog.Int64("bounces", s.Bounces),
		slog.Int("pruned", s.Pruned),
		slog.Float64("visited_per_body", s.VisitedPerBody),
		slog.Int("tree_nodes", s.TreeNodes),
		slog.Int("tree_grows", s.TreeGrows),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndTick,
		"sim_time", s.SimTime,
		"bodies", s.Bodies,
		"total_mass", s.TotalMass,
		"max_mass", s.MaxMass,
		"momentum", s.Momentum,
		"kinetic_energy", s.KineticEnergy,
		"speed_mean", s.SpeedMean,
		"speed_p90", s.SpeedP90,
		"merges", s.Merges,
		"bounces", s.Bounces,
		"visited_per_body", s.VisitedPerBody,
		"tree_nodes", s.TreeNodes,
	)
}
