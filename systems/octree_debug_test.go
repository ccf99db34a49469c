//go:build debug

package systems

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/orrery/components"
	"github.com/pthm-cable/orrery/vmath"
)

// gridBodies places bodies on split planes, including the inclusive lower
// bound, plus a stack of coincident ones.
func gridBodies(t testing.TB) []components.Body {
	t.Helper()
	var bodies []components.Body
	for x := -4000.0; x < 4000; x += 500 {
		for y := -4000.0; y < 4000; y += 500 {
			for z := -4000.0; z < 4000; z += 1000 {
				bodies = append(bodies, mustBody(t, vmath.V3(x, y, z), vmath.Vec3{}, 1))
			}
		}
	}
	for i := 0; i < 4; i++ {
		bodies = append(bodies, mustBody(t, vmath.V3(0, 0, 0), vmath.Vec3{}, 1))
	}
	return bodies
}

func TestDebugDenseBuildDoesNotAssert(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	bodies := append(gridBodies(t), randomBodies(t, rng, 3000, 3999)...)
	params := TreeParams{ReserveFactor: 0.001, GrowthFactor: 1.5, MaxDepth: 16}

	tree := NewOctree(testFrom, testTo, params)
	require.NotPanics(t, func() {
		require.NoError(t, tree.Build(bodies))
	})
	assert.Positive(t, tree.Grows())
	assert.Equal(t, len(bodies), countOccupants(tree))

	q := Query{Theta: DefaultTheta, Gravity: testGravity}
	assert.NotPanics(t, func() {
		for i := range bodies {
			tree.ForceOn(bodies, i, q)
		}
	})
}

func TestDebugQueryOutsideRootPanics(t *testing.T) {
	bodies := []components.Body{
		mustBody(t, vmath.V3(1, 1, 1), vmath.Vec3{}, 1),
		mustBody(t, vmath.V3(-1, -1, -1), vmath.Vec3{}, 1),
	}
	tree := buildTree(t, bodies, DefaultTreeParams())

	// The body moved after the build
	bodies[1] = mustBody(t, vmath.V3(5000, 0, 0), vmath.Vec3{}, 1)
	assert.Panics(t, func() {
		tree.ForceOn(bodies, 1, Query{Theta: DefaultTheta, Gravity: testGravity})
	})
}
