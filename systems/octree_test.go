package systems

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/barneshut"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/orrery/components"
	"github.com/pthm-cable/orrery/vmath"
)

var (
	testFrom    = vmath.V3(-4000, -4000, -4000)
	testTo      = vmath.V3(4000, 4000, 4000)
	testGravity = components.Gravity{G: 0.001, Softening: 1}
)

func mustBody(t testing.TB, pos, vel vmath.Vec3, mass float64) components.Body {
	t.Helper()
	b, err := components.NewBody(pos, vel, vmath.Vec3{}, mass)
	require.NoError(t, err)
	return b
}

// randomBodies scatters n unit-ish masses in a cube of the given half width.
func randomBodies(t testing.TB, rng *rand.Rand, n int, half float64) []components.Body {
	t.Helper()
	bodies := make([]components.Body, n)
	for i := range bodies {
		pos := vmath.V3(
			(rng.Float64()*2-1)*half,
			(rng.Float64()*2-1)*half,
			(rng.Float64()*2-1)*half,
		)
		bodies[i] = mustBody(t, pos, vmath.Vec3{}, 0.5+rng.Float64())
	}
	return bodies
}

func buildTree(t testing.TB, bodies []components.Body, params TreeParams) *Octree {
	t.Helper()
	tree := NewOctree(testFrom, testTo, params)
	require.NoError(t, tree.Build(bodies))
	return tree
}

// countOccupants walks every leaf, following chains.
func countOccupants(tree *Octree) int {
	count := 0
	for i := range tree.nodes {
		n := &tree.nodes[i]
		if !n.isLeaf() {
			continue
		}
		for occ := n.body; occ != noBody; occ = tree.link[occ] {
			count++
		}
	}
	return count
}

func TestOctreeRootAggregates(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	bodies := randomBodies(t, rng, 500, 1000)
	tree := buildTree(t, bodies, DefaultTreeParams())

	var mass float64
	var weighted vmath.Vec3
	for i := range bodies {
		mass += bodies[i].Mass()
		weighted = r3.Add(weighted, r3.Scale(bodies[i].Mass(), bodies[i].Position()))
	}

	assert.InDelta(t, mass, tree.TotalMass(), 1e-9)

	com, ok := tree.CenterOfMass()
	require.True(t, ok)
	want := vmath.Div(weighted, mass)
	assert.InDelta(t, want.X, com.X, 1e-9)
	assert.InDelta(t, want.Y, com.Y, 1e-9)
	assert.InDelta(t, want.Z, com.Z, 1e-9)
}

func TestOctreeInternalMassIsSumOfChildren(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	bodies := randomBodies(t, rng, 300, 500)
	tree := buildTree(t, bodies, DefaultTreeParams())

	for i := range tree.nodes {
		n := &tree.nodes[i]
		if n.isLeaf() {
			continue
		}
		var sum float64
		for _, c := range n.children {
			sum += tree.nodes[c].mass
		}
		if !scalar.EqualWithinAbsOrRel(sum, n.mass, 1e-9, 1e-12) {
			t.Errorf("node %d: mass %g, children sum %g", i, n.mass, sum)
		}
	}
}

func TestOctreeNodeCount(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	bodies := randomBodies(t, rng, 1000, 2000)
	tree := buildTree(t, bodies, DefaultTreeParams())

	assert.Equal(t, 1+8*tree.Splits(), tree.NodeCount())
	assert.Equal(t, len(bodies), countOccupants(tree))
}

func TestOctreeGrowthKeepsEveryBody(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	bodies := randomBodies(t, rng, 2000, 3000)
	params := TreeParams{ReserveFactor: 0.001, GrowthFactor: 1.5, MaxDepth: 48}
	tree := buildTree(t, bodies, params)

	assert.Positive(t, tree.Grows())
	assert.Equal(t, len(bodies), countOccupants(tree))
	assert.Equal(t, 1+8*tree.Splits(), tree.NodeCount())
}

func TestOctreeResetKeepsCapacity(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	bodies := randomBodies(t, rng, 400, 1000)
	tree := buildTree(t, bodies, DefaultTreeParams())
	capBefore := tree.Capacity()

	tree.Reset(len(bodies))
	assert.Equal(t, 1, tree.NodeCount())
	assert.Zero(t, tree.TotalMass())
	assert.GreaterOrEqual(t, tree.Capacity(), capBefore)

	_, ok := tree.CenterOfMass()
	assert.False(t, ok, "empty tree has no center of mass")
}

func TestOctreeRebuildIsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	bodies := randomBodies(t, rng, 300, 800)

	a := buildTree(t, bodies, DefaultTreeParams())
	b := buildTree(t, bodies, DefaultTreeParams())
	require.Equal(t, a.NodeCount(), b.NodeCount())
	for i := range a.nodes {
		if a.nodes[i] != b.nodes[i] {
			t.Fatalf("node %d differs between builds", i)
		}
	}
}

func TestOctreeOutOfBounds(t *testing.T) {
	tests := []struct {
		name string
		pos  vmath.Vec3
	}{
		{"beyond upper x", vmath.V3(5000, 0, 0)},
		{"below lower z", vmath.V3(0, 0, -4001)},
		{"on upper bound", vmath.V3(0, 4000, 0)},
		{"NaN", vmath.V3(math.NaN(), 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bodies := []components.Body{mustBody(t, tt.pos, vmath.Vec3{}, 1)}
			tree := NewOctree(testFrom, testTo, DefaultTreeParams())
			err := tree.Build(bodies)
			if !errors.Is(err, ErrOutOfBounds) {
				t.Errorf("expected ErrOutOfBounds, got %v", err)
			}
		})
	}

	// The lower bound is inclusive
	bodies := []components.Body{mustBody(t, testFrom, vmath.Vec3{}, 1)}
	require.NoError(t, NewOctree(testFrom, testTo, DefaultTreeParams()).Build(bodies))
}

func TestOctreeCoincidentBodiesChain(t *testing.T) {
	pos := vmath.V3(1, 2, 3)
	bodies := []components.Body{
		mustBody(t, pos, vmath.Vec3{}, 1),
		mustBody(t, pos, vmath.Vec3{}, 2),
		mustBody(t, pos, vmath.Vec3{}, 3),
	}
	params := DefaultTreeParams()
	params.MaxDepth = 8
	tree := buildTree(t, bodies, params)

	assert.Equal(t, 3, countOccupants(tree))
	assert.InDelta(t, 6.0, tree.TotalMass(), 1e-12)
	assert.LessOrEqual(t, tree.Depth(), params.MaxDepth)

	// Coincident bodies overlap and are handed to the collision callback
	var pairs [][2]int
	tree.ForceOn(bodies, 0, Query{
		Theta:   DefaultTheta,
		Gravity: testGravity,
		Collide: func(i, j int) { pairs = append(pairs, [2]int{i, j}) },
	})
	assert.ElementsMatch(t, [][2]int{{0, 1}, {0, 2}}, pairs)
	assert.Equal(t, vmath.Vec3{}, bodies[0].Acceleration())
}

func TestOctreeLoneBodyFeelsNothing(t *testing.T) {
	bodies := []components.Body{mustBody(t, vmath.Vec3{}, vmath.Vec3{}, 10)}
	tree := buildTree(t, bodies, DefaultTreeParams())

	visited := tree.ForceOn(bodies, 0, Query{Theta: DefaultTheta, Gravity: testGravity})
	assert.Equal(t, 1, visited)
	assert.Equal(t, vmath.Vec3{}, bodies[0].Acceleration())
}

// With θ=0 every leaf is opened, so two bodies see exactly the direct force.
func TestOctreeExactForTwoBodies(t *testing.T) {
	make2 := func() []components.Body {
		return []components.Body{
			mustBody(t, vmath.V3(10, 1, 0), vmath.Vec3{}, 10),
			mustBody(t, vmath.V3(-10, -1, 0), vmath.Vec3{}, 10),
		}
	}

	tree := make2()
	brute := make2()
	octree := buildTree(t, tree, DefaultTreeParams())
	q := Query{Theta: 0, Gravity: testGravity}
	for i := range tree {
		octree.ForceOn(tree, i, q)
		BruteForceOn(brute, i, q)
	}
	for i := range tree {
		assert.Equal(t, brute[i].Acceleration(), tree[i].Acceleration(), "body %d", i)
	}

	// Equal masses: equal and opposite
	assert.Equal(t, tree[0].Acceleration(), r3.Scale(-1, tree[1].Acceleration()))
}

func TestOctreeVisitsFewerNodesAsThetaGrows(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	bodies := randomBodies(t, rng, 800, 2000)
	tree := buildTree(t, bodies, DefaultTreeParams())

	thetas := []float64{0, 0.25, 0.5, 1, 2}
	prev := math.MaxInt
	for _, theta := range thetas {
		total := 0
		for i := range bodies {
			total += tree.ForceOn(bodies, i, Query{Theta: theta, Gravity: testGravity})
		}
		assert.LessOrEqual(t, total, prev, "theta %.2f", theta)
		prev = total
	}
}

// oracleParticle adapts a body to gonum's Barnes-Hut implementation.
type oracleParticle struct {
	pos  r3.Vec
	mass float64
}

func (p oracleParticle) Coord3() r3.Vec { return p.pos }
func (p oracleParticle) Mass() float64  { return p.mass }

// oracleForce is the same softened law, skipping overlapping pairs.
func oracleForce(p1, p2 barneshut.Particle3, m1, m2 float64, v r3.Vec) r3.Vec {
	d2 := r3.Norm2(v)
	if d2 == 0 {
		return r3.Vec{}
	}
	d := math.Sqrt(d2)
	if p2 != nil && d <= components.RadiusForMass(m1)+components.RadiusForMass(m2) {
		return r3.Vec{}
	}
	mag := testGravity.G * m1 * m2 / (d2 + testGravity.Softening)
	return r3.Scale(mag/d, v)
}

func oracleAccelerations(t *testing.T, bodies []components.Body) []r3.Vec {
	t.Helper()
	particles := make([]barneshut.Particle3, len(bodies))
	for i := range bodies {
		particles[i] = oracleParticle{pos: bodies[i].Position(), mass: bodies[i].Mass()}
	}
	vol, err := barneshut.NewVolume(particles)
	require.NoError(t, err)

	acc := make([]r3.Vec, len(bodies))
	for i, p := range particles {
		acc[i] = r3.Scale(1/p.Mass(), vol.ForceOn(p, 0, oracleForce))
	}
	return acc
}

func TestOctreeAgreesWithDirectSum(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	bodies := randomBodies(t, rng, 600, 1500)
	want := oracleAccelerations(t, bodies)

	t.Run("theta 0 is exact", func(t *testing.T) {
		exact := append([]components.Body(nil), bodies...)
		tree := buildTree(t, exact, DefaultTreeParams())
		for i := range exact {
			tree.ForceOn(exact, i, Query{Theta: 0, Gravity: testGravity})
			got := exact[i].Acceleration()
			if r3.Norm(r3.Sub(got, want[i])) > 1e-9*r3.Norm(want[i])+1e-15 {
				t.Errorf("body %d: got %v, want %v", i, got, want[i])
			}
		}
	})

	t.Run("theta 0.5 is close", func(t *testing.T) {
		approx := append([]components.Body(nil), bodies...)
		tree := buildTree(t, approx, DefaultTreeParams())
		var errSum, normSum float64
		for i := range approx {
			tree.ForceOn(approx, i, Query{Theta: DefaultTheta, Gravity: testGravity})
			errSum += r3.Norm(r3.Sub(approx[i].Acceleration(), want[i]))
			normSum += r3.Norm(want[i])
		}
		assert.Less(t, errSum/normSum, 0.02, "mean relative error")
	})
}

func BenchmarkOctreeBuild(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	bodies := randomBodies(b, rng, 10000, 3000)
	tree := NewOctree(testFrom, testTo, DefaultTreeParams())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := tree.Build(bodies); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkOctreeForceOn(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	bodies := randomBodies(b, rng, 10000, 3000)
	tree := NewOctree(testFrom, testTo, DefaultTreeParams())
	if err := tree.Build(bodies); err != nil {
		b.Fatal(err)
	}
	q := Query{Theta: DefaultTheta, Gravity: testGravity}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tree.ForceOn(bodies, i%len(bodies), q)
	}
}

func BenchmarkBruteForceOn(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	bodies := randomBodies(b, rng, 10000, 3000)
	q := Query{Gravity: testGravity}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		BruteForceOn(bodies, i%len(bodies), q)
	}
}
