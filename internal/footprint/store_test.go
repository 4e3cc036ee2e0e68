package footprint

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"

	"github.com/sightline-data/buildsight/internal/geomath"
	"github.com/sightline-data/buildsight/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

var testOrigin = orb.Point{-0.1276, 51.5072}

// squareAt builds a sizeM x sizeM square footprint centred at the point
// bearing/distance away from the test origin.
func squareAt(id string, bearingDeg, distanceM, sizeM, heightM float64) *Footprint {
	c := geo.PointAtBearingAndDistance(testOrigin, bearingDeg, distanceM)
	half := sizeM / 2
	nw := geo.PointAtBearingAndDistance(geo.PointAtBearingAndDistance(c, 0, half), 270, half)
	ne := geo.PointAtBearingAndDistance(geo.PointAtBearingAndDistance(c, 0, half), 90, half)
	se := geo.PointAtBearingAndDistance(geo.PointAtBearingAndDistance(c, 180, half), 90, half)
	sw := geo.PointAtBearingAndDistance(geo.PointAtBearingAndDistance(c, 180, half), 270, half)
	ring := orb.Ring{nw, ne, se, sw, nw}
	mp := orb.MultiPolygon{orb.Polygon{ring}}
	centroid, _ := planar.CentroidArea(mp)
	return &Footprint{
		BuildingID: id,
		Geometry:   mp,
		Centroid:   centroid,
		AreaM2:     math.Abs(geo.Area(mp)),
		HeightM:    heightM,
	}
}

func testCone(bearingDeg, distanceM float64) orb.Polygon {
	pose := geomath.Pose{Latitude: testOrigin[1], Longitude: testOrigin[0], BearingDeg: bearingDeg}
	return geomath.ViewCone(pose, distanceM, 30, 16)
}

func TestQueryBeforeLoadFails(t *testing.T) {
	s := NewStore()
	if _, err := s.Query(testCone(0, 100)); !errors.Is(err, ErrIndexUnavailable) {
		t.Errorf("Query on empty store = %v, want ErrIndexUnavailable", err)
	}
}

func TestAddRejectsDuplicateBuildingID(t *testing.T) {
	s := NewStore()
	if err := s.Add(squareAt("b1", 0, 40, 10, 20)); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if err := s.Add(squareAt("b1", 90, 40, 10, 20)); !errors.Is(err, ErrDuplicateBuildingID) {
		t.Errorf("duplicate Add = %v, want ErrDuplicateBuildingID", err)
	}
}

func TestQueryFindsBuildingInCone(t *testing.T) {
	s := NewStore()
	inCone := squareAt("target", 0, 40, 12, 25)     // due north, inside
	offCone := squareAt("offside", 120, 40, 12, 25) // well outside the cone
	for _, f := range []*Footprint{inCone, offCone} {
		if err := s.Add(f); err != nil {
			t.Fatalf("Add(%s): %v", f.BuildingID, err)
		}
	}

	got, err := s.Query(testCone(0, 100))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0].Footprint.BuildingID != "target" {
		t.Fatalf("Query returned %d candidates, want exactly [target]", len(got))
	}
	if got[0].VisibleFraction < 0.9 {
		t.Errorf("fully-contained footprint fraction = %v, want >= 0.9", got[0].VisibleFraction)
	}
	if got[0].VisibleAreaM2 <= 0 {
		t.Errorf("VisibleAreaM2 = %v, want positive", got[0].VisibleAreaM2)
	}
}

func TestQueryPartialOverlapFraction(t *testing.T) {
	s := NewStore()
	// A wide building straddling the cone edge: centred at bearing 30
	// (the cone boundary), so roughly half of it should be visible.
	straddler := squareAt("straddler", 30, 50, 30, 15)
	if err := s.Add(straddler); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, err := s.Query(testCone(0, 100))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Query returned %d candidates, want 1", len(got))
	}
	frac := got[0].VisibleFraction
	if frac <= 0.05 || frac >= 0.95 {
		t.Errorf("straddling footprint fraction = %v, want partial overlap", frac)
	}
}

func TestQueryEmptyResultIsNotError(t *testing.T) {
	s := NewStore()
	if err := s.Add(squareAt("far", 180, 90, 10, 10)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Point north; the only building is due south.
	got, err := s.Query(testCone(0, 100))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Query returned %d candidates, want 0", len(got))
	}
}

func TestQueryDeterministicOrder(t *testing.T) {
	s := NewStore()
	for _, f := range []*Footprint{
		squareAt("delta", 10, 60, 10, 10),
		squareAt("alpha", 350, 60, 10, 10),
		squareAt("charlie", 0, 30, 10, 10),
	} {
		if err := s.Add(f); err != nil {
			t.Fatalf("Add(%s): %v", f.BuildingID, err)
		}
	}

	first, err := s.Query(testCone(0, 100))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("Query returned %d candidates, want 3", len(first))
	}
	for i, want := range []string{"alpha", "charlie", "delta"} {
		if first[i].Footprint.BuildingID != want {
			t.Errorf("candidate[%d] = %s, want %s", i, first[i].Footprint.BuildingID, want)
		}
	}
}

func TestGetAndLen(t *testing.T) {
	s := NewStore()
	f := squareAt("b9", 45, 30, 8, 12)
	if err := s.Add(f); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
	if got := s.Get("b9"); got != f {
		t.Errorf("Get returned %+v, want the inserted footprint", got)
	}
	if got := s.Get("missing"); got != nil {
		t.Errorf("Get(missing) = %+v, want nil", got)
	}
}

func TestEachVisitsAllInIDOrder(t *testing.T) {
	s := NewStore()
	for _, f := range []*Footprint{
		squareAt("c", 0, 30, 8, 12),
		squareAt("a", 90, 30, 8, 12),
		squareAt("b", 180, 30, 8, 12),
	} {
		if err := s.Add(f); err != nil {
			t.Fatalf("Add(%s): %v", f.BuildingID, err)
		}
	}

	var visited []string
	s.Each(func(f *Footprint) { visited = append(visited, f.BuildingID) })
	want := []string{"a", "b", "c"}
	if len(visited) != len(want) {
		t.Fatalf("Each visited %d footprints, want %d", len(visited), len(want))
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Errorf("visited[%d] = %s, want %s", i, visited[i], want[i])
		}
	}
}
