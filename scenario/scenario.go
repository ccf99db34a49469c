// Package scenario generates initial conditions and releases them into a simulation.
package scenario

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/orrery/config"
	"github.com/pthm-cable/orrery/vmath"
)

// ErrUnknownScenario is returned for a name that is not registered.
var ErrUnknownScenario = errors.New("unknown scenario")

// Placer accepts new bodies. *sim.World implements it.
type Placer interface {
	PlaceBody(pos, vel, spin vmath.Vec3, mass float64) (int, error)
}

// BodySpec is one body to place.
type BodySpec struct {
	Position vmath.Vec3
	Velocity vmath.Vec3
	Spin     vmath.Vec3
	Mass     float64
}

// Params controls generated scenarios.
type Params struct {
	Seed          int64
	Bodies        int
	SpawnWidth    float64 // bodies fall within SpawnWidth/2 of the origin
	SpawnPerTick  int     // 0 places everything at once
	MinMass       float64
	MaxMass       float64
	OrbitalFactor float64 // 0 starts disks at rest
	G             float64 // for orbital speeds
}

// ParamsFromConfig maps the scenario section of a config onto Params.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		Seed:          cfg.Scenario.Seed,
		Bodies:        cfg.Scenario.Bodies,
		SpawnWidth:    cfg.Scenario.SpawnWidth,
		SpawnPerTick:  cfg.Scenario.SpawnPerTick,
		MinMass:       cfg.Scenario.MinMass,
		MaxMass:       cfg.Scenario.MaxMass,
		OrbitalFactor: cfg.Scenario.OrbitalFactor,
		G:             cfg.Physics.G,
	}
}

// Build generates the named scenario and returns a spawner that releases it.
func (r *Registry) Build(name string, p Params) (*Spawner, error) {
	i, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScenario, name)
	}
	e := r.entries[i]

	g := &gen{rng: rand.New(rand.NewSource(p.Seed)), p: p}
	perTick := 0
	if e.info.Incremental {
		perTick = p.SpawnPerTick
	}
	return NewSpawner(e.generate(g), perTick), nil
}

// Spawner releases bodies into a simulation, optionally a batch per tick.
type Spawner struct {
	pending []BodySpec
	next    int
	perTick int
}

// NewSpawner releases specs perTick at a time, or all at once when perTick <= 0.
func NewSpawner(specs []BodySpec, perTick int) *Spawner {
	return &Spawner{pending: specs, perTick: perTick}
}

// Spawn places the next batch and returns how many bodies were placed.
func (s *Spawner) Spawn(p Placer) (int, error) {
	end := len(s.pending)
	if s.perTick > 0 {
		end = min(s.next+s.perTick, end)
	}

	placed := 0
	for ; s.next < end; s.next++ {
		b := s.pending[s.next]
		if _, err := p.PlaceBody(b.Position, b.Velocity, b.Spin, b.Mass); err != nil {
			return placed, fmt.Errorf("spawning body %d: %w", s.next, err)
		}
		placed++
	}
	return placed, nil
}

// Done reports whether every body has been placed.
func (s *Spawner) Done() bool {
	return s.next >= len(s.pending)
}

// Remaining returns the number of bodies not yet placed.
func (s *Spawner) Remaining() int {
	return len(s.pending) - s.next
}

// Total returns the number of bodies in the scenario.
func (s *Spawner) Total() int {
	return len(s.pending)
}

// Specs returns the generated bodies.
func (s *Spawner) Specs() []BodySpec {
	return s.pending
}

// gen carries the seeded source shared by generators.
type gen struct {
	rng *rand.Rand
	p   Params
}

// uniform returns a value in [-half, half).
func (g *gen) uniform(half float64) float64 {
	return (g.rng.Float64()*2 - 1) * half
}

func (g *gen) mass() float64 {
	if g.p.MaxMass <= g.p.MinMass {
		return g.p.MinMass
	}
	return g.p.MinMass + g.rng.Float64()*(g.p.MaxMass-g.p.MinMass)
}

func collide(*gen) []BodySpec {
	return []BodySpec{
		{Position: vmath.V3(10, 1, 0), Velocity: vmath.V3(-0.5, 0, 0), Mass: 10},
		{Position: vmath.V3(-10, -1, 0), Velocity: vmath.V3(0.5, 0, 0), Mass: 10},
	}
}

func merge(*gen) []BodySpec {
	return []BodySpec{
		{Position: vmath.V3(20, 1, 0), Velocity: vmath.V3(0.1, 0, 0), Mass: 5},
		{Position: vmath.V3(-10, -1, 0), Velocity: vmath.V3(0.5, 0, 0), Mass: 10},
	}
}

func spin(*gen) []BodySpec {
	return []BodySpec{
		{Position: vmath.V3(5, 0, 0), Spin: vmath.V3(0, 0, 1), Mass: 10},
		{Position: vmath.V3(-5, 0, 0), Mass: 10},
	}
}

// disk samples the plane z=0 by rejection from the square of side SpawnWidth*2.
// With a non-zero OrbitalFactor bodies get the circular speed of a uniform
// disk, v = sqrt(G·M·r)/R, about the z axis.
func disk(g *gen) []BodySpec {
	radius := g.p.SpawnWidth / 2
	specs := make([]BodySpec, g.p.Bodies)
	var total float64
	for i := range specs {
		pos := vmath.V3(g.uniform(g.p.SpawnWidth), g.uniform(g.p.SpawnWidth), 0)
		for r2.Norm(vmath.XY(pos)) > radius {
			pos = vmath.V3(g.uniform(g.p.SpawnWidth), g.uniform(g.p.SpawnWidth), 0)
		}
		specs[i] = BodySpec{Position: pos, Mass: g.mass()}
		total += specs[i].Mass
	}

	if g.p.OrbitalFactor == 0 || radius == 0 {
		return specs
	}
	for i := range specs {
		planar := vmath.XY(specs[i].Position)
		r := r2.Norm(planar)
		if r == 0 {
			continue
		}
		speed := g.p.OrbitalFactor * math.Sqrt(g.p.G*total*r) / radius
		tangent := r2.Scale(speed/r, r2.Vec{X: -planar.Y, Y: planar.X})
		specs[i].Velocity = vmath.V3(tangent.X, tangent.Y, 0)
	}
	return specs
}

// sphere samples a ball of radius SpawnWidth/2 by rejection.
func sphere(g *gen) []BodySpec {
	radius := g.p.SpawnWidth / 2
	specs := make([]BodySpec, g.p.Bodies)
	for i := range specs {
		pos := vmath.V3(g.uniform(g.p.SpawnWidth), g.uniform(g.p.SpawnWidth), g.uniform(g.p.SpawnWidth))
		for r3.Norm(pos) > radius {
			pos = vmath.V3(g.uniform(g.p.SpawnWidth), g.uniform(g.p.SpawnWidth), g.uniform(g.p.SpawnWidth))
		}
		specs[i] = BodySpec{Position: pos, Mass: g.mass()}
	}
	return specs
}

// benchmark places unit masses in a slab a tenth as thick as it is wide.
func benchmark(g *gen) []BodySpec {
	radius := g.p.SpawnWidth / 2
	specs := make([]BodySpec, g.p.Bodies)
	for i := range specs {
		pos := vmath.V3(g.uniform(g.p.SpawnWidth), g.uniform(g.p.SpawnWidth), g.uniform(g.p.SpawnWidth/10))
		for r2.Norm(vmath.XY(pos)) > radius {
			pos = vmath.V3(g.uniform(g.p.SpawnWidth), g.uniform(g.p.SpawnWidth), g.uniform(g.p.SpawnWidth/10))
		}
		specs[i] = BodySpec{Position: pos, Mass: 1}
	}
	return specs
}
