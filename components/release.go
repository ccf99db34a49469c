//go:build !debug

package components

import "github.com/pthm-cable/orrery/vmath"

// assertFinite is a no-op outside debug builds; callers already skip the value.
func assertFinite(string, vmath.Vec3) {}
