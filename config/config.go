// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all simulation configuration parameters.
type Config struct {
	World     WorldConfig     `yaml:"world"`
	Physics   PhysicsConfig   `yaml:"physics"`
	Collision CollisionConfig `yaml:"collision"`
	Tree      TreeConfig      `yaml:"tree"`
	Parallel  ParallelConfig  `yaml:"parallel"`
	Scenario  ScenarioConfig  `yaml:"scenario"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// WorldConfig holds the simulation volume. Bodies must stay inside [min, max) on every axis.
type WorldConfig struct {
	Min [3]float64 `yaml:"min"`
	Max [3]float64 `yaml:"max"`
}

// PhysicsConfig holds gravity and integration parameters.
type PhysicsConfig struct {
	Theta     float64 `yaml:"theta"`     // Barnes-Hut opening threshold
	G         float64 `yaml:"g"`         // Gravitational constant
	Softening float64 `yaml:"softening"` // Added to squared distance
	DT        float64 `yaml:"dt"`        // Time per tick
}

// CollisionConfig holds the collision policy.
type CollisionConfig struct {
	Restitution   float64 `yaml:"restitution"`     // 1 = elastic
	Friction      float64 `yaml:"friction"`        // Coulomb coefficient
	MergeAngleDeg float64 `yaml:"merge_angle_deg"` // Velocity angle above which bodies bounce
}

// TreeConfig holds octree storage parameters.
type TreeConfig struct {
	ReserveFactor float64 `yaml:"reserve_factor"` // Nodes reserved per body on rebuild
	GrowthFactor  float64 `yaml:"growth_factor"`  // Capacity multiplier on exhaustion
	MaxDepth      int     `yaml:"max_depth"`      // Coincident bodies chain below this depth
}

// ParallelConfig holds worker pool parameters.
type ParallelConfig struct {
	Workers   int `yaml:"workers"`   // 0 = GOMAXPROCS
	Threshold int `yaml:"threshold"` // Below this body count passes run on the caller
}

// ScenarioConfig holds initial condition parameters.
type ScenarioConfig struct {
	Name          string  `yaml:"name"`
	Seed          int64   `yaml:"seed"`
	Bodies        int     `yaml:"bodies"`          // Target body count for generated scenarios
	SpawnWidth    float64 `yaml:"spawn_width"`     // Edge of the spawn region
	SpawnPerTick  int     `yaml:"spawn_per_tick"`  // 0 = place everything up front
	MinMass       float64 `yaml:"min_mass"`
	MaxMass       float64 `yaml:"max_mass"`
	OrbitalFactor float64 `yaml:"orbital_factor"` // Tangential speed scale for disks
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow int `yaml:"stats_window"` // Ticks per stats window
	PerfWindow  int `yaml:"perf_window"`  // Ticks averaged for phase timings
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	MergeAngle float64 // Collision.MergeAngleDeg in radians
	Extent     float64 // Largest world edge
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns a fresh copy of the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in the file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()

	return cfg, nil
}

// Validate checks parameters the simulation cannot run without.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	for i := 0; i < 3; i++ {
		check(c.World.Min[i] < c.World.Max[i], "world.min[%d]=%g must be below world.max[%d]=%g",
			i, c.World.Min[i], i, c.World.Max[i])
	}
	edges := make([]float64, 3)
	floats.SubTo(edges, c.World.Max[:], c.World.Min[:])
	check(scalar.EqualWithinRel(edges[0], edges[1], 1e-9) && scalar.EqualWithinRel(edges[0], edges[2], 1e-9),
		"world edges %v must be equal (the tree covers a cube)", edges)
	check(c.Physics.Theta >= 0, "physics.theta=%g must not be negative", c.Physics.Theta)
	check(c.Physics.DT > 0, "physics.dt=%g must be positive", c.Physics.DT)
	check(c.Physics.G >= 0, "physics.g=%g must not be negative", c.Physics.G)
	check(c.Physics.Softening >= 0, "physics.softening=%g must not be negative", c.Physics.Softening)
	check(c.Collision.Restitution >= 0 && c.Collision.Restitution <= 1,
		"collision.restitution=%g must be in [0, 1]", c.Collision.Restitution)
	check(c.Collision.Friction >= 0, "collision.friction=%g must not be negative", c.Collision.Friction)
	check(c.Collision.MergeAngleDeg >= 0 && c.Collision.MergeAngleDeg <= 180,
		"collision.merge_angle_deg=%g must be in [0, 180]", c.Collision.MergeAngleDeg)
	check(c.Tree.ReserveFactor > 0, "tree.reserve_factor=%g must be positive", c.Tree.ReserveFactor)
	check(c.Tree.GrowthFactor > 1, "tree.growth_factor=%g must exceed 1", c.Tree.GrowthFactor)
	check(c.Tree.MaxDepth > 0, "tree.max_depth=%d must be positive", c.Tree.MaxDepth)
	check(c.Parallel.Workers >= 0, "parallel.workers=%d must not be negative", c.Parallel.Workers)
	check(c.Scenario.MinMass > 0 && c.Scenario.MinMass <= c.Scenario.MaxMass,
		"scenario masses [%g, %g] must be positive and ordered", c.Scenario.MinMass, c.Scenario.MaxMass)
	check(c.Telemetry.StatsWindow > 0, "telemetry.stats_window=%d must be positive", c.Telemetry.StatsWindow)

	return errors.Join(errs...)
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.MergeAngle = c.Collision.MergeAngleDeg * math.Pi / 180

	edges := make([]float64, 3)
	floats.SubTo(edges, c.World.Max[:], c.World.Min[:])
	c.Derived.Extent = floats.Max(edges)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
