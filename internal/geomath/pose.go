// Package geomath provides the pure geometry underpinning the
// identification engine: camera pose validation, bearing arithmetic, and
// view-cone construction. Nothing in this package performs I/O.
package geomath

import (
	"math"

	"github.com/paulmach/orb"
)

// Pose is a single camera fix: where the user stands and where the phone
// points. Ephemeral, never persisted beyond the request.
type Pose struct {
	Latitude   float64 `json:"latitude"`    // WGS84 degrees
	Longitude  float64 `json:"longitude"`   // WGS84 degrees
	BearingDeg float64 `json:"bearing_deg"` // compass bearing, 0 = north, clockwise
	PitchDeg   float64 `json:"pitch_deg"`   // degrees from horizontal, positive = looking up
	AccuracyM  float64 `json:"accuracy_m"`  // optional GPS accuracy radius, 0 = unknown
}

// PoseValidationResult contains the result of pose validation.
type PoseValidationResult struct {
	Valid  bool
	Issues []string
}

// ValidatePose checks that a pose is physically plausible. Poses that
// fail validation are rejected before any spatial lookup.
func ValidatePose(p Pose) PoseValidationResult {
	result := PoseValidationResult{Issues: make([]string, 0)}

	if math.IsNaN(p.Latitude) || p.Latitude < -90 || p.Latitude > 90 {
		result.Issues = append(result.Issues, "latitude out of range [-90, 90]")
	}
	if math.IsNaN(p.Longitude) || p.Longitude < -180 || p.Longitude > 180 {
		result.Issues = append(result.Issues, "longitude out of range [-180, 180]")
	}
	if math.IsNaN(p.BearingDeg) || p.BearingDeg < 0 || p.BearingDeg >= 360 {
		result.Issues = append(result.Issues, "bearing out of range [0, 360)")
	}
	if math.IsNaN(p.PitchDeg) || p.PitchDeg < -90 || p.PitchDeg > 90 {
		result.Issues = append(result.Issues, "pitch out of range [-90, 90]")
	}
	if math.IsNaN(p.AccuracyM) || p.AccuracyM < 0 {
		result.Issues = append(result.Issues, "accuracy must be non-negative")
	}

	result.Valid = len(result.Issues) == 0
	return result
}

// Point returns the pose location as an orb point (lon, lat order).
func (p Pose) Point() orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}

// NormalizeBearing maps any angle in degrees onto [0, 360).
func NormalizeBearing(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// BearingDelta returns the signed smallest rotation from one bearing to
// another, in degrees within (-180, 180].
func BearingDelta(fromDeg, toDeg float64) float64 {
	d := math.Mod(toDeg-fromDeg, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}
