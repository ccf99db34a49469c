package components

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/orrery/vmath"
)

// ErrInvalidMass is returned when a body is created with a non-positive or non-finite mass.
var ErrInvalidMass = errors.New("body mass must be positive and finite")

// ErrNonFinite is returned when a body is created with a NaN or infinite
// position, velocity or spin.
var ErrNonFinite = errors.New("body state must be finite")

// Kinematics is the mutable physical state of a body.
type Kinematics struct {
	Position vmath.Vec3
	Velocity vmath.Vec3
	Spin     vmath.Vec3 // rad/tick about x, y, z
	Mass     float64
}

// Gravity holds the parameters of the softened inverse-square attraction.
type Gravity struct {
	G         float64 // gravitational constant
	Softening float64 // added to |Δ|² to avoid the singularity at zero separation
}

// Contact holds the parameters used when two bodies bounce.
type Contact struct {
	Restitution float64 // 1 = perfectly elastic
	Friction    float64 // Coulomb friction coefficient at the contact point
}

// Body is one point mass.
//
// State is double buffered: cur is what every reader sees during a tick,
// next receives collision results, accel collects gravity. Integrate commits
// both, so force accumulation never observes a half-updated body.
type Body struct {
	cur     Kinematics
	next    Kinematics
	accel   vmath.Vec3
	enabled bool
}

// NewBody creates an enabled body. Mass must be positive and every vector finite.
func NewBody(pos, vel, spin vmath.Vec3, mass float64) (Body, error) {
	if !(mass > 0) || math.IsInf(mass, 0) {
		return Body{}, ErrInvalidMass
	}
	if !vmath.IsFinite(pos) || !vmath.IsFinite(vel) || !vmath.IsFinite(spin) {
		return Body{}, ErrNonFinite
	}
	k := Kinematics{Position: pos, Velocity: vel, Spin: spin, Mass: mass}
	return Body{cur: k, next: k, enabled: true}, nil
}

// Position returns the committed position.
func (b *Body) Position() vmath.Vec3 { return b.cur.Position }

// Velocity returns the committed velocity.
func (b *Body) Velocity() vmath.Vec3 { return b.cur.Velocity }

// Spin returns the committed angular velocity.
func (b *Body) Spin() vmath.Vec3 { return b.cur.Spin }

// Mass returns the committed mass.
func (b *Body) Mass() float64 { return b.cur.Mass }

// Enabled reports whether the body still takes part in the simulation.
func (b *Body) Enabled() bool { return b.enabled }

// Pending returns the state that Integrate will commit, before gravity is applied.
func (b *Body) Pending() Kinematics { return b.next }

// Acceleration returns the gravity accumulated since the last Integrate.
func (b *Body) Acceleration() vmath.Vec3 { return b.accel }

// Radius derives the collision radius from mass assuming unit density.
func (b *Body) Radius() float64 {
	return RadiusForMass(b.cur.Mass)
}

// RadiusForMass returns cbrt(3m / 4π).
func RadiusForMass(m float64) float64 {
	return math.Cbrt(3 * m / (4 * math.Pi))
}

// Momentum returns m·v of the committed state.
func (b *Body) Momentum() vmath.Vec3 {
	return r3.Scale(b.cur.Mass, b.cur.Velocity)
}

// KineticEnergy returns ½·m·|v|².
func (b *Body) KineticEnergy() float64 {
	return 0.5 * b.cur.Mass * r3.Norm2(b.cur.Velocity)
}

// InertiaTensor returns the inertia tensor of a uniform solid sphere.
func (b *Body) InertiaTensor() vmath.Tensor3 {
	r := b.Radius()
	return vmath.Diagonal3(0.4 * b.cur.Mass * r * r)
}

// ApplyForceTowards accumulates the acceleration caused by a mass at otherPos.
// Only the pending buffer is written. A zero separation has no direction and
// contributes nothing.
func (b *Body) ApplyForceTowards(otherPos vmath.Vec3, otherMass float64, g Gravity) {
	delta := r3.Sub(otherPos, b.cur.Position)
	d2 := r3.Norm2(delta)
	if d2 == 0 {
		return
	}

	force := (g.G * b.cur.Mass * otherMass) / (d2 + g.Softening)
	// a = F/m along Δ/|Δ|
	b.accel = r3.Add(b.accel, r3.Scale(force/(b.cur.Mass*math.Sqrt(d2)), delta))
}

// Integrate commits the pending state, adds the accumulated acceleration to the
// velocity and advances the position. A non-finite acceleration is dropped.
func (b *Body) Integrate(dt float64) {
	if !b.enabled {
		return
	}

	k := b.next
	if vmath.IsFinite(b.accel) {
		k.Velocity = r3.Add(k.Velocity, r3.Scale(dt, b.accel))
	} else {
		assertFinite("acceleration", b.accel)
	}
	k.Position = r3.Add(k.Position, r3.Scale(dt, k.Velocity))

	b.cur = k
	b.next = k
	b.accel = vmath.Vec3{}
}

// Merge absorbs other into b (perfectly inelastic). Mass, position, velocity
// and spin are combined mass-weighted from both pending states, and other is
// disabled. Merging with a disabled body, or with itself, is a no-op.
func (b *Body) Merge(other *Body) bool {
	if b == other || !b.enabled || !other.enabled {
		return false
	}

	m1, m2 := b.next.Mass, other.next.Mass
	m := m1 + m2
	weighted := func(a, c vmath.Vec3) vmath.Vec3 {
		return vmath.Div(r3.Add(r3.Scale(m1, a), r3.Scale(m2, c)), m)
	}

	b.next = Kinematics{
		Position: weighted(b.next.Position, other.next.Position),
		Velocity: weighted(b.next.Velocity, other.next.Velocity),
		Spin:     weighted(b.next.Spin, other.next.Spin),
		Mass:     m,
	}
	other.enabled = false
	return true
}

// Bounce applies b's half of a rigid-sphere collision with other. Only b's
// pending velocity and spin change; the symmetric call on other produces the
// opposite impulse. Both halves read committed state, so call order does not
// matter. It returns false when the bodies are separating or coincident.
func (b *Body) Bounce(other *Body, c Contact) bool {
	if b == other || !b.enabled || !other.enabled {
		return false
	}

	n, ok := vmath.Normal(b.cur.Position, other.cur.Position)
	if !ok {
		return false
	}

	r1, r2 := b.Radius(), other.Radius()
	arm1 := r3.Scale(r1, n)
	arm2 := r3.Scale(-r2, n)

	// Velocity of each surface at the contact point
	v1 := r3.Add(b.cur.Velocity, r3.Cross(b.cur.Spin, arm1))
	v2 := r3.Add(other.cur.Velocity, r3.Cross(other.cur.Spin, arm2))
	vRel := r3.Sub(v1, v2)

	vn := r3.Dot(vRel, n)
	if vn <= 0 {
		return false
	}

	invMassSum := 1/b.cur.Mass + 1/other.cur.Mass
	j := (1 + c.Restitution) * vn / invMassSum
	impulse := r3.Scale(-j, n)

	// Coulomb friction along the tangential slip
	var friction vmath.Vec3
	slip := r3.Sub(vRel, r3.Scale(vn, n))
	if t, ok := vmath.Unit(slip); ok && c.Friction > 0 {
		jt := math.Min(c.Friction*j, r3.Norm(slip)/invMassSum)
		friction = r3.Scale(-jt, t)
	}
	total := r3.Add(impulse, friction)

	b.next.Velocity = r3.Add(b.next.Velocity, r3.Scale(1/b.cur.Mass, total))

	if friction != (vmath.Vec3{}) {
		dw, err := b.InertiaTensor().Solve(r3.Cross(arm1, friction))
		if err == nil && vmath.IsFinite(dw) {
			b.next.Spin = r3.Add(b.next.Spin, dw)
		} else {
			assertFinite("spin change", dw)
		}
	}
	return true
}

// Disable removes the body from the simulation without touching its state.
func (b *Body) Disable() {
	b.enabled = false
}

// BodyView is a read-only copy of a body's committed state.
type BodyView struct {
	Position vmath.Vec3
	Velocity vmath.Vec3
	Spin     vmath.Vec3
	Mass     float64
	Radius   float64
	Enabled  bool
}

// View returns a copy of the committed state.
func (b *Body) View() BodyView {
	return BodyView{
		Position: b.cur.Position,
		Velocity: b.cur.Velocity,
		Spin:     b.cur.Spin,
		Mass:     b.cur.Mass,
		Radius:   b.Radius(),
		Enabled:  b.enabled,
	}
}
