package systems

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/pthm-cable/orrery/components"
	"github.com/pthm-cable/orrery/vmath"
)

// Outcome is the result of resolving one colliding pair.
type Outcome uint8

const (
	// Ignored means nothing changed: a body was already disabled, or the pair was separating.
	Ignored Outcome = iota
	Merged
	Bounced
)

func (o Outcome) String() string {
	switch o {
	case Merged:
		return "merged"
	case Bounced:
		return "bounced"
	default:
		return "ignored"
	}
}

// DefaultMergeAngle is the velocity angle above which colliding bodies bounce.
const DefaultMergeAngle = math.Pi / 2

// Resolver applies the collision policy to pairs reported by the force pass.
// It owns one lock per body; pairs are locked in index order so two workers
// resolving the same pair from opposite ends cannot deadlock.
type Resolver struct {
	contact    components.Contact
	mergeAngle float64

	locks []sync.Mutex
	// bounced[lo] lists the hi partners of lo already counted this pass,
	// guarded by locks[lo].
	bounced [][]int32

	merges  atomic.Int64
	bounces atomic.Int64
}

// NewResolver creates a resolver. Bodies whose velocities differ by more than
// mergeAngle radians bounce, the rest merge.
func NewResolver(contact components.Contact, mergeAngle float64) *Resolver {
	return &Resolver{contact: contact, mergeAngle: mergeAngle}
}

// Reset sizes the lock table for n bodies and clears the counters.
// Must not be called while a pass is running.
func (r *Resolver) Reset(n int) {
	if cap(r.locks) < n {
		r.locks = make([]sync.Mutex, n)
	}
	if len(r.bounced) < n {
		r.bounced = append(r.bounced, make([][]int32, n-len(r.bounced))...)
	}
	r.locks = r.locks[:n]
	for i := range r.bounced[:n] {
		r.bounced[i] = r.bounced[i][:0]
	}
	r.merges.Store(0)
	r.bounces.Store(0)
}

// Collide resolves a collision between bodies i and j. Either index may be
// the caller; the pair is re-checked under both locks, so a body merged away
// by another worker is never touched again.
func (r *Resolver) Collide(bodies []components.Body, i, j int) Outcome {
	if i == j {
		return Ignored
	}

	lo, hi := min(i, j), max(i, j)
	r.locks[lo].Lock()
	defer r.locks[lo].Unlock()
	r.locks[hi].Lock()
	defer r.locks[hi].Unlock()

	a, b := &bodies[i], &bodies[j]
	if !a.Enabled() || !b.Enabled() {
		return Ignored
	}

	if vmath.AngleBetween(a.Velocity(), b.Velocity()) > r.mergeAngle {
		if !a.Bounce(b, r.contact) {
			return Ignored
		}
		// Each side of a bounce is resolved separately, and the tree may
		// report only one side; count the pair the first time it is seen
		if r.markBounced(lo, hi) {
			r.bounces.Add(1)
		}
		return Bounced
	}

	// The lower index absorbs so the survivor does not depend on scheduling
	if !bodies[lo].Merge(&bodies[hi]) {
		return Ignored
	}
	r.merges.Add(1)
	return Merged
}

// markBounced records the pair and reports whether it was new.
// Callers hold locks[lo].
func (r *Resolver) markBounced(lo, hi int) bool {
	for _, seen := range r.bounced[lo] {
		if int(seen) == hi {
			return false
		}
	}
	r.bounced[lo] = append(r.bounced[lo], int32(hi))
	return true
}

// Func adapts the resolver to a CollideFunc over bodies.
func (r *Resolver) Func(bodies []components.Body) CollideFunc {
	return func(i, j int) {
		r.Collide(bodies, i, j)
	}
}

// Merges returns the number of merges since the last reset.
func (r *Resolver) Merges() int64 {
	return r.merges.Load()
}

// Bounces returns the number of bouncing pairs since the last reset.
func (r *Resolver) Bounces() int64 {
	return r.bounces.Load()
}
