// Package systems provides the force-approximation tree, the collision policy
// and the per-body force passes driven by the simulation.
package systems

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/orrery/components"
	"github.com/pthm-cable/orrery/vmath"
)

// ErrOutOfBounds is returned when a body lies outside the tree's root cube.
var ErrOutOfBounds = errors.New("body outside simulation bounds")

// DefaultTheta is the opening-angle threshold used across the Barnes-Hut literature.
const DefaultTheta = 0.5

// noBody marks an empty leaf (or an internal node) and terminates occupant chains.
const noBody int32 = -1

// node is one cubical region [from, to).
// Child index 0 means "no child": the root lives at 0 and is never a child.
type node struct {
	from, to vmath.Vec3
	com      vmath.Vec3 // Σ m·pos, not yet divided by mass
	mass     float64
	children [8]int32
	body     int32 // occupant of a leaf, noBody otherwise
}

func (n *node) isLeaf() bool {
	return n.children[0] == 0
}

// TreeParams controls node storage and subdivision.
type TreeParams struct {
	ReserveFactor float64 // nodes reserved per body on reset
	GrowthFactor  float64 // capacity multiplier when storage runs out
	MaxDepth      int     // leaves at this depth chain occupants instead of splitting
}

// DefaultTreeParams returns the parameters used when none are configured.
func DefaultTreeParams() TreeParams {
	return TreeParams{ReserveFactor: 2, GrowthFactor: 1.5, MaxDepth: 48}
}

// CollideFunc resolves a collision between bodies i and j.
type CollideFunc func(i, j int)

// Query holds the parameters of a force query.
type Query struct {
	Theta   float64
	Gravity components.Gravity
	Collide CollideFunc // nil ignores collisions
}

// Octree is a Barnes-Hut tree over a fixed cube. Nodes live in one slice and
// reference children by index, so storage can grow during construction.
// The tree is rebuilt every tick; Reset keeps the backing storage.
type Octree struct {
	from, to vmath.Vec3
	params   TreeParams

	nodes []node
	link  []int32 // next occupant per body for chained leaves

	splits int
	grows  int
}

// NewOctree creates an empty tree covering [from, to).
func NewOctree(from, to vmath.Vec3, params TreeParams) *Octree {
	if params.ReserveFactor <= 0 {
		params.ReserveFactor = DefaultTreeParams().ReserveFactor
	}
	if params.GrowthFactor <= 1 {
		params.GrowthFactor = DefaultTreeParams().GrowthFactor
	}
	if params.MaxDepth <= 0 {
		params.MaxDepth = DefaultTreeParams().MaxDepth
	}

	t := &Octree{from: from, to: to, params: params}
	t.Reset(0)
	return t
}

// Reset empties the tree down to a single root, reserving room for bodyCount bodies.
func (t *Octree) Reset(bodyCount int) {
	want := int(math.Ceil(float64(bodyCount) * t.params.ReserveFactor))
	if want < 9 {
		want = 9
	}
	if cap(t.nodes) < want {
		t.nodes = make([]node, 0, want)
	}
	t.nodes = t.nodes[:0]
	t.nodes = append(t.nodes, node{from: t.from, to: t.to, body: noBody})

	if cap(t.link) < bodyCount {
		t.link = make([]int32, bodyCount)
	}
	t.link = t.link[:bodyCount]
	for i := range t.link {
		t.link[i] = noBody
	}

	t.splits = 0
	t.grows = 0
}

// Build resets the tree and inserts every enabled body.
func (t *Octree) Build(bodies []components.Body) error {
	t.Reset(len(bodies))
	for i := range bodies {
		if !bodies[i].Enabled() {
			continue
		}
		if err := t.Insert(bodies, i); err != nil {
			return err
		}
	}
	return nil
}

// Contains reports whether pos lies inside the root cube.
func (t *Octree) Contains(pos vmath.Vec3) bool {
	return contains(t.from, t.to, pos)
}

func contains(from, to, p vmath.Vec3) bool {
	return from.X <= p.X && p.X < to.X &&
		from.Y <= p.Y && p.Y < to.Y &&
		from.Z <= p.Z && p.Z < to.Z
}

// Insert adds bodies[i] to the tree. Every node on the path accumulates the
// body's mass and weighted position.
func (t *Octree) Insert(bodies []components.Body, i int) error {
	b := &bodies[i]
	pos, m := b.Position(), b.Mass()
	if !t.Contains(pos) {
		return fmt.Errorf("%w: body %d at %v not in [%v, %v)", ErrOutOfBounds, i, pos, t.from, t.to)
	}
	if i >= len(t.link) {
		// Bodies placed after Reset
		for len(t.link) <= i {
			t.link = append(t.link, noBody)
		}
	}

	weighted := r3.Scale(m, pos)
	idx := int32(0)
	depth := 0
	for {
		n := &t.nodes[idx]
		assertInNode(n, pos)

		n.mass += m
		n.com = r3.Add(n.com, weighted)

		if !n.isLeaf() {
			idx = t.childFor(idx, pos)
			depth++
			continue
		}

		if n.body == noBody {
			n.body = int32(i)
			return nil
		}

		if depth >= t.params.MaxDepth {
			// Coincident (or nearly) bodies: chain instead of splitting forever
			t.link[i] = n.body
			n.body = int32(i)
			return nil
		}

		// Split: push the current occupant one level down, then keep descending
		old := n.body
		n.body = noBody
		t.split(idx)

		ob := &bodies[old]
		c := t.childFor(idx, ob.Position())
		cn := &t.nodes[c]
		cn.body = old
		cn.mass = ob.Mass()
		cn.com = r3.Scale(ob.Mass(), ob.Position())

		idx = t.childFor(idx, pos)
		depth++
	}
}

// split appends 8 children covering the octants of node idx.
// Child k takes the upper half of axis x, y, z when bit 0, 1, 2 of k is set.
func (t *Octree) split(idx int32) {
	if cap(t.nodes)-len(t.nodes) < 8 {
		t.grow()
	}

	parent := t.nodes[idx]
	center := vmath.Div(r3.Add(parent.from, parent.to), 2)
	base := int32(len(t.nodes))

	for k := int32(0); k < 8; k++ {
		from, to := parent.from, center
		if k&1 != 0 {
			from.X, to.X = center.X, parent.to.X
		}
		if k&2 != 0 {
			from.Y, to.Y = center.Y, parent.to.Y
		}
		if k&4 != 0 {
			from.Z, to.Z = center.Z, parent.to.Z
		}
		t.nodes = append(t.nodes, node{from: from, to: to, body: noBody})
		t.nodes[idx].children[k] = base + k
	}
	t.splits++
}

// grow enlarges node storage geometrically. Children are indices, so nothing
// that was handed out before the copy is invalidated.
func (t *Octree) grow() {
	newCap := int(float64(cap(t.nodes)) * t.params.GrowthFactor)
	if newCap < len(t.nodes)+8 {
		newCap = len(t.nodes) + 8
	}
	grown := make([]node, len(t.nodes), newCap)
	copy(grown, t.nodes)
	t.nodes = grown
	t.grows++
}

// childFor finds the octant of an internal node containing pos. The center is
// computed exactly as in split, so the chosen child always contains pos.
func (t *Octree) childFor(idx int32, pos vmath.Vec3) int32 {
	n := &t.nodes[idx]
	center := vmath.Div(r3.Add(n.from, n.to), 2)
	k := octantAxis(pos.X, center.X) | octantAxis(pos.Y, center.Y)<<1 | octantAxis(pos.Z, center.Z)<<2
	return n.children[k]
}

func octantAxis(p, center float64) int {
	if p >= center {
		return 1
	}
	return 0
}

// ForceOn accumulates the approximate force on bodies[i] into its pending
// buffer and returns the number of nodes visited.
//
// Colliding leaf occupants are handed to q.Collide instead of attracting.
// Safe to call concurrently for different i: nodes are only read and only
// bodies[i]'s own accumulator is written.
func (t *Octree) ForceOn(bodies []components.Body, i int, q Query) int {
	assertInNode(&t.nodes[0], bodies[i].Position())
	return t.forceOn(0, bodies, i, &q)
}

func (t *Octree) forceOn(idx int32, bodies []components.Body, i int, q *Query) int {
	n := &t.nodes[idx]
	if n.mass == 0 {
		return 1
	}

	b := &bodies[i]
	pos := b.Position()

	if n.isLeaf() {
		for occ := n.body; occ != noBody; occ = t.link[occ] {
			if int(occ) == i {
				continue
			}
			other := &bodies[occ]
			if vmath.Distance(pos, other.Position()) > b.Radius()+other.Radius() {
				b.ApplyForceTowards(other.Position(), other.Mass(), q.Gravity)
			} else if q.Collide != nil {
				q.Collide(i, int(occ))
			}
		}
		return 1
	}

	com := vmath.Div(n.com, n.mass)
	// s/d with a fast reciprocal distance
	influence := (n.to.X - n.from.X) * vmath.InvSqrt(r3.Norm2(r3.Sub(com, pos)))
	if influence < q.Theta {
		b.ApplyForceTowards(com, n.mass, q.Gravity)
		return 1
	}

	visited := 1
	for _, c := range n.children {
		visited += t.forceOn(c, bodies, i, q)
	}
	return visited
}

// TotalMass returns the mass aggregated at the root.
func (t *Octree) TotalMass() float64 {
	return t.nodes[0].mass
}

// CenterOfMass returns the root's center of mass; ok is false for an empty tree.
func (t *Octree) CenterOfMass() (vmath.Vec3, bool) {
	return t.NodeCenterOfMass(0)
}

// NodeCenterOfMass returns the center of mass of node idx; ok is false when the node is empty.
func (t *Octree) NodeCenterOfMass(idx int) (vmath.Vec3, bool) {
	n := &t.nodes[idx]
	if n.mass == 0 {
		return vmath.Vec3{}, false
	}
	return vmath.Div(n.com, n.mass), true
}

// NodeCount returns the number of nodes currently in use.
func (t *Octree) NodeCount() int {
	return len(t.nodes)
}

// Capacity returns the number of nodes the backing storage can hold.
func (t *Octree) Capacity() int {
	return cap(t.nodes)
}

// Splits returns how many leaves were split since the last reset.
func (t *Octree) Splits() int {
	return t.splits
}

// Grows returns how many times storage grew since the last reset.
func (t *Octree) Grows() int {
	return t.grows
}

// Depth returns the depth of the deepest node.
func (t *Octree) Depth() int {
	return t.depth(0)
}

func (t *Octree) depth(idx int32) int {
	n := &t.nodes[idx]
	if n.isLeaf() {
		return 0
	}
	d := 0
	for _, c := range n.children {
		d = max(d, t.depth(c))
	}
	return d + 1
}
