package footprint

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/quadtree"

	"github.com/sightline-data/buildsight/internal/monitoring"
)

// ErrIndexUnavailable is returned when a query arrives before the
// spatial index has been populated. Callers must propagate it; answering
// from a missing index would silently return wrong buildings.
var ErrIndexUnavailable = errors.New("footprint: spatial index unavailable")

// ErrDuplicateBuildingID is returned when the dataset violates the
// unique-building-identifier invariant.
var ErrDuplicateBuildingID = errors.New("footprint: duplicate building id")

// fractionGridSize is the per-axis resolution of the deterministic grid
// used to estimate the footprint area inside a query polygon.
const fractionGridSize = 8

const metersPerDegreeLat = 111320.0

// Store is a quadtree-indexed collection of building footprints. It is
// written once by a loader and read-only afterwards, so concurrent
// queries need no locking beyond the build/ready handoff.
type Store struct {
	mu       sync.RWMutex
	tree     *quadtree.Quadtree
	byID     map[string]*Footprint
	maxSpanM float64 // largest footprint diagonal, used to pad query bounds
}

// NewStore creates an empty, not-yet-ready store.
func NewStore() *Store {
	return &Store{byID: make(map[string]*Footprint)}
}

// Add inserts one footprint during the load phase.
func (s *Store) Add(f *Footprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[f.BuildingID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateBuildingID, f.BuildingID)
	}

	if s.tree == nil {
		s.tree = quadtree.New(orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}})
	}
	if err := s.tree.Add(f); err != nil {
		return fmt.Errorf("index footprint %s: %w", f.BuildingID, err)
	}
	s.byID[f.BuildingID] = f

	if span := boundDiagonalMeters(f.Geometry.Bound()); span > s.maxSpanM {
		s.maxSpanM = span
	}
	return nil
}

// Len returns the number of indexed footprints.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Get returns the footprint with the given building id, or nil.
func (s *Store) Get(buildingID string) *Footprint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[buildingID]
}

// Each calls fn for every footprint in building id order.
func (s *Store) Each(fn func(*Footprint)) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	for _, id := range ids {
		if f := s.Get(id); f != nil {
			fn(f)
		}
	}
}

// Query returns every footprint whose geometry intersects the given
// polygon, annotated with the visible area fraction. An empty result is
// a valid outcome (open sky, park, GPS drift), not an error.
func (s *Store) Query(poly orb.Polygon) ([]Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.tree == nil {
		return nil, ErrIndexUnavailable
	}

	// The quadtree indexes centroids, so pad the query bound far enough
	// that a footprint whose centroid sits outside the polygon's bound
	// but whose walls reach into it is still examined.
	bound := padBoundMeters(poly.Bound(), s.maxSpanM/2+1)

	var candidates []Candidate
	for _, ptr := range s.tree.InBound(nil, bound) {
		f := ptr.(*Footprint)
		frac := visibleFraction(f, poly)
		if frac <= 0 && !touchesPolygon(f, poly) {
			continue
		}
		candidates = append(candidates, Candidate{
			Footprint:       f,
			VisibleFraction: frac,
			VisibleAreaM2:   frac * f.AreaM2,
		})
	}

	// Deterministic order for identical inputs.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Footprint.BuildingID < candidates[j].Footprint.BuildingID
	})

	monitoring.Logf("footprint: query matched %d of %d footprints", len(candidates), len(s.byID))
	return candidates, nil
}

// visibleFraction estimates how much of a footprint lies inside the
// query polygon by sampling a fixed grid over the footprint's bound.
// orb has no polygon-polygon clipping, and an exact clip is overkill for
// a heuristic input; the grid is deterministic so repeated queries agree.
func visibleFraction(f *Footprint, poly orb.Polygon) float64 {
	b := f.Geometry.Bound()
	w := b.Max[0] - b.Min[0]
	h := b.Max[1] - b.Min[1]

	if w == 0 && h == 0 {
		// Degenerate point footprint.
		if planar.PolygonContains(poly, b.Min) {
			return 1
		}
		return 0
	}

	inFootprint, inBoth := 0, 0
	for i := 0; i < fractionGridSize; i++ {
		for j := 0; j < fractionGridSize; j++ {
			pt := orb.Point{
				b.Min[0] + w*(float64(i)+0.5)/fractionGridSize,
				b.Min[1] + h*(float64(j)+0.5)/fractionGridSize,
			}
			if !planar.MultiPolygonContains(f.Geometry, pt) {
				continue
			}
			inFootprint++
			if planar.PolygonContains(poly, pt) {
				inBoth++
			}
		}
	}
	if inFootprint == 0 {
		return 0
	}
	return float64(inBoth) / float64(inFootprint)
}

// touchesPolygon catches intersections the sampling grid can miss: a
// footprint clipped only at a corner, or a polygon entirely inside the
// footprint.
func touchesPolygon(f *Footprint, poly orb.Polygon) bool {
	for _, p := range f.Geometry {
		for _, ring := range p {
			for _, v := range ring {
				if planar.PolygonContains(poly, v) {
					return true
				}
			}
		}
	}
	for _, ring := range poly {
		for _, v := range ring {
			if planar.MultiPolygonContains(f.Geometry, v) {
				return true
			}
		}
	}
	return false
}

// padBoundMeters grows a lon/lat bound by the given distance in meters.
func padBoundMeters(b orb.Bound, meters float64) orb.Bound {
	latMid := (b.Min[1] + b.Max[1]) / 2
	dLat := meters / metersPerDegreeLat
	cos := math.Cos(latMid * math.Pi / 180)
	if cos < 0.01 {
		cos = 0.01 // polar guard
	}
	dLon := meters / (metersPerDegreeLat * cos)
	return orb.Bound{
		Min: orb.Point{b.Min[0] - dLon, b.Min[1] - dLat},
		Max: orb.Point{b.Max[0] + dLon, b.Max[1] + dLat},
	}
}

func boundDiagonalMeters(b orb.Bound) float64 {
	return geo.DistanceHaversine(b.Min, b.Max)
}
