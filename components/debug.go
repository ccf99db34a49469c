//go:build debug

package components

import (
	"fmt"

	"github.com/pthm-cable/orrery/vmath"
)

// assertFinite panics on non-finite values in debug builds.
func assertFinite(what string, v vmath.Vec3) {
	if !vmath.IsFinite(v) {
		panic(fmt.Sprintf("components: non-finite %s %v", what, v))
	}
}
