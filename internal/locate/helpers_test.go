package locate

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"

	"github.com/sightline-data/buildsight/internal/footprint"
	"github.com/sightline-data/buildsight/internal/geomath"
	"github.com/sightline-data/buildsight/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

var testOrigin = orb.Point{-0.1276, 51.5072}

func testPoseAt(bearing float64) geomath.Pose {
	return geomath.Pose{Latitude: testOrigin[1], Longitude: testOrigin[0], BearingDeg: bearing}
}

// buildingAt creates a square footprint centred bearing/distance away
// from the test origin.
func buildingAt(id string, bearingDeg, distanceM, sizeM, heightM float64) *footprint.Footprint {
	c := geo.PointAtBearingAndDistance(testOrigin, bearingDeg, distanceM)
	half := sizeM / 2
	nw := geo.PointAtBearingAndDistance(geo.PointAtBearingAndDistance(c, 0, half), 270, half)
	ne := geo.PointAtBearingAndDistance(geo.PointAtBearingAndDistance(c, 0, half), 90, half)
	se := geo.PointAtBearingAndDistance(geo.PointAtBearingAndDistance(c, 180, half), 90, half)
	sw := geo.PointAtBearingAndDistance(geo.PointAtBearingAndDistance(c, 180, half), 270, half)
	mp := orb.MultiPolygon{orb.Polygon{orb.Ring{nw, ne, se, sw, nw}}}
	centroid, _ := planar.CentroidArea(mp)
	return &footprint.Footprint{
		BuildingID: id,
		Geometry:   mp,
		Centroid:   centroid,
		AreaM2:     math.Abs(geo.Area(mp)),
		HeightM:    heightM,
	}
}

func storeWith(t *testing.T, footprints ...*footprint.Footprint) *footprint.Store {
	t.Helper()
	s := footprint.NewStore()
	for _, f := range footprints {
		if err := s.Add(f); err != nil {
			t.Fatalf("Add(%s): %v", f.BuildingID, err)
		}
	}
	return s
}

// fakeSource is an EmbeddingSource serving canned vectors by building id.
type fakeSource struct {
	mu      sync.Mutex
	name    string
	vectors map[string][]float64
	err     error
	calls   []string // building ids in resolution order
}

func newFakeSource(name string, vectors map[string][]float64) *fakeSource {
	return &fakeSource{name: name, vectors: vectors}
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Resolve(_ context.Context, req ResolveRequest) ([]float64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.Building.Building.BuildingID)
	if f.err != nil {
		return nil, false, f.err
	}
	vec, ok := f.vectors[req.Building.Building.BuildingID]
	return vec, ok, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// embedderFunc adapts a function to the vision.Embedder interface.
type embedderFunc func(ctx context.Context, image []byte) ([]float64, error)

func (f embedderFunc) Embed(ctx context.Context, image []byte) ([]float64, error) {
	return f(ctx, image)
}

// providerFunc adapts a function to the imagery.Provider interface.
type providerFunc func(ctx context.Context, lat, lng, headingDeg float64) ([]byte, error)

func (f providerFunc) FetchImage(ctx context.Context, lat, lng, headingDeg float64) ([]byte, error) {
	return f(ctx, lat, lng, headingDeg)
}
