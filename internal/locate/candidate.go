// Package locate implements the building identification engine: scoring
// footprint candidates against a camera pose, classifying the outcome,
// and breaking geometric ties with visual embeddings.
package locate

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/sightline-data/buildsight/internal/footprint"
	"github.com/sightline-data/buildsight/internal/geomath"
)

// ScoredCandidate is one footprint under consideration for a single
// request, with its derived geometry and visibility score. Created fresh
// per request and discarded with the response.
type ScoredCandidate struct {
	Building        *footprint.Footprint
	DistanceM       float64 // viewer to centroid
	BearingDeg      float64 // viewer to centroid, [0, 360)
	BearingDevDeg   float64 // absolute deviation from the pose bearing
	VisibleFraction float64 // fraction of footprint area inside the cone
	Score           float64 // composite visibility score, 0-100
}

// NewCandidate derives the per-request geometry for one matched footprint.
func NewCandidate(match footprint.Candidate, pose geomath.Pose) *ScoredCandidate {
	viewer := pose.Point()
	centroid := match.Footprint.Centroid

	bearing := geomath.NormalizeBearing(geo.Bearing(viewer, centroid))
	dev := math.Abs(geomath.BearingDelta(pose.BearingDeg, bearing))

	return &ScoredCandidate{
		Building:        match.Footprint,
		DistanceM:       geo.DistanceHaversine(viewer, centroid),
		BearingDeg:      bearing,
		BearingDevDeg:   dev,
		VisibleFraction: match.VisibleFraction,
	}
}

// NumViewpointBuckets is the number of approach-bearing sectors used to
// key cached embeddings around a building.
const NumViewpointBuckets = 8

// ViewpointBucket maps an approach direction onto one of the sectors
// around a building. The bucket is derived from the bearing looking out
// from the building centroid toward the viewer, with sector 0 centred on
// north. A bucket always resolves to exactly one building because it is
// only ever used alongside the building id.
func ViewpointBucket(centroid, viewer orb.Point) int {
	out := geomath.NormalizeBearing(geo.Bearing(centroid, viewer))
	sector := int(math.Floor(geomath.NormalizeBearing(out+22.5) / 45.0))
	if sector >= NumViewpointBuckets {
		sector = 0 // bearing of exactly 337.5+22.5 wraps
	}
	return sector
}
