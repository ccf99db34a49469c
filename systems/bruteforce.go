package systems

import (
	"github.com/pthm-cable/orrery/components"
	"github.com/pthm-cable/orrery/vmath"
)

// BruteForceOn accumulates the exact pairwise force on bodies[i], with the
// same collision handling as a tree leaf. It returns the number of pairs
// examined. O(n) per body; meant for validation and small systems.
func BruteForceOn(bodies []components.Body, i int, q Query) int {
	b := &bodies[i]
	pos, r := b.Position(), b.Radius()

	pairs := 0
	for j := range bodies {
		if j == i {
			continue
		}
		other := &bodies[j]
		pairs++
		if vmath.Distance(pos, other.Position()) > r+other.Radius() {
			b.ApplyForceTowards(other.Position(), other.Mass(), q.Gravity)
		} else if q.Collide != nil {
			q.Collide(i, j)
		}
	}
	return pairs
}
