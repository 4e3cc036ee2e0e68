package geomath

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// MinArcSteps is the minimum number of arc samples for a view cone.
// Fewer samples under-approximates the sector badly at wide half-angles.
const MinArcSteps = 12

// ViewCone approximates the circular sector a viewer can see: the viewer
// location bracketing an arc of sampled destination points. The ring is
// closed and convex for half-angles below 90 degrees, so it can never
// self-intersect, including when the bearing range wraps through north.
func ViewCone(p Pose, distanceM, halfAngleDeg float64, arcSteps int) orb.Polygon {
	if arcSteps < MinArcSteps {
		arcSteps = MinArcSteps
	}

	apex := p.Point()
	ring := make(orb.Ring, 0, arcSteps+3)
	ring = append(ring, apex)

	// Sweep the arc from the left edge to the right edge. Bearings
	// passed to the destination-point formula need no normalization;
	// sin/cos are periodic, so bearing-halfAngle may go negative or
	// beyond 360 without harm.
	start := p.BearingDeg - halfAngleDeg
	step := (2 * halfAngleDeg) / float64(arcSteps)
	for i := 0; i <= arcSteps; i++ {
		bearing := start + float64(i)*step
		ring = append(ring, geo.PointAtBearingAndDistance(apex, bearing, distanceM))
	}

	ring = append(ring, apex) // close the ring
	return orb.Polygon{ring}
}
