//go:build debug

package systems

import (
	"fmt"

	"github.com/pthm-cable/orrery/vmath"
)

// assertInNode panics when a body being inserted or queried lies outside n.
func assertInNode(n *node, pos vmath.Vec3) {
	if !contains(n.from, n.to, pos) {
		panic(fmt.Sprintf("systems: body at %v not in node [%v, %v)", pos, n.from, n.to))
	}
}
