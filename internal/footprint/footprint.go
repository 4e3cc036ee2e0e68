// Package footprint holds the building footprint dataset and answers
// spatial queries against it. The dataset is bulk-loaded once at startup
// and treated as immutable at request time.
package footprint

import (
	"github.com/paulmach/orb"
)

// Footprint is one building's ground plan plus derived attributes.
// BuildingID is unique across the dataset. LotID is NOT unique: several
// footprints may share a lot, so lot identity must never be used as a
// stand-in for building identity.
type Footprint struct {
	BuildingID string
	LotID      string // optional, many footprints per lot
	Geometry   orb.MultiPolygon
	Centroid   orb.Point
	AreaM2     float64
	HeightM    float64 // roof height; 0 = unknown
}

// Point returns the footprint centroid, satisfying orb.Pointer so
// footprints can live directly in a quadtree.
func (f *Footprint) Point() orb.Point {
	return f.Centroid
}

// Candidate is a footprint matched by a spatial query, annotated with
// how much of it falls inside the query polygon.
type Candidate struct {
	Footprint       *Footprint
	VisibleFraction float64 // fraction of footprint area inside the query polygon, [0, 1]
	VisibleAreaM2   float64
}
