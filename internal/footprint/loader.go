package footprint

import (
	"fmt"
	"math"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/sightline-data/buildsight/internal/monitoring"
)

// LoadGeoJSON bulk-loads a footprint dataset from a GeoJSON feature
// collection. Recognized feature properties:
//
//	building_id (required, unique), lot_id (optional), height_m (optional)
//
// Features without a polygonal geometry or a building_id are skipped
// with a log line rather than failing the whole load.
func LoadGeoJSON(store *Store, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read footprint dataset: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return 0, fmt.Errorf("parse footprint dataset %s: %w", path, err)
	}

	loaded := 0
	for i, feat := range fc.Features {
		f, err := FromFeature(feat)
		if err != nil {
			monitoring.Logf("footprint: skipping feature %d: %v", i, err)
			continue
		}
		if err := store.Add(f); err != nil {
			return loaded, err
		}
		loaded++
	}

	monitoring.Logf("footprint: loaded %d footprints from %s", loaded, path)
	return loaded, nil
}

// FromFeature converts one GeoJSON feature into a Footprint, deriving
// centroid and spherical area.
func FromFeature(feat *geojson.Feature) (*Footprint, error) {
	buildingID, _ := feat.Properties["building_id"].(string)
	if buildingID == "" {
		return nil, fmt.Errorf("missing building_id")
	}

	var mp orb.MultiPolygon
	switch g := feat.Geometry.(type) {
	case orb.Polygon:
		mp = orb.MultiPolygon{g}
	case orb.MultiPolygon:
		mp = g
	default:
		return nil, fmt.Errorf("geometry of %s is %T, want polygon", buildingID, feat.Geometry)
	}

	centroid, _ := planar.CentroidArea(mp)

	f := &Footprint{
		BuildingID: buildingID,
		Geometry:   mp,
		Centroid:   centroid,
		AreaM2:     math.Abs(geo.Area(mp)),
	}
	if lot, ok := feat.Properties["lot_id"].(string); ok {
		f.LotID = lot
	}
	if h, ok := feat.Properties["height_m"].(float64); ok && h > 0 {
		f.HeightM = h
	}
	return f, nil
}
