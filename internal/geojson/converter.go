// Package geojson exports assembled features and node samples as GeoJSON
// for inspection in other GIS tools.
package geojson

import (
	"encoding/json"
	"fmt"

	"github.com/MeKo-Tech/osmtile/internal/route"
	"github.com/MeKo-Tech/osmtile/internal/style"
	"github.com/MeKo-Tech/osmtile/internal/types"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Geometry returns the orb geometry a feature is drawn as: a closed polygon
// for enclosed features with at least three points, otherwise a line string,
// or a point when only one coordinate is left.
func Geometry(f types.Feature) orb.Geometry {
	switch len(f.Coordinates) {
	case 0:
		return nil
	case 1:
		c := f.Coordinates[0]
		return orb.Point{c.Lon, c.Lat}
	}

	ls := make(orb.LineString, len(f.Coordinates))
	for i, c := range f.Coordinates {
		ls[i] = orb.Point{c.Lon, c.Lat}
	}

	if style.IsEnclosed(f.Tags) && len(ls) >= 3 {
		ring := orb.Ring(ls)
		if !ring.Closed() {
			ring = append(ring, ring[0])
		}
		return orb.Polygon{ring}
	}
	return ls
}

// ToGeoJSON converts features to a FeatureCollection. Tags become
// properties; osm_id is always set. With a style table, the resolved color
// is added as simplestyle "stroke" (and "fill" for polygons).
func ToGeoJSON(features []types.Feature, styles *style.Table) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, f := range features {
		g := Geometry(f)
		if g == nil {
			continue
		}

		gf := geojson.NewFeature(g)
		gf.ID = f.ID
		for k, v := range f.Tags {
			gf.Properties[k] = v
		}
		gf.Properties["osm_id"] = f.ID

		if styles != nil {
			if c, ok := colorful.MakeColor(styles.Resolve(f.Tags)); ok {
				gf.Properties["stroke"] = c.Hex()
				if _, isPoly := g.(orb.Polygon); isPoly {
					gf.Properties["fill"] = c.Hex()
				}
			}
		}

		fc.Append(gf)
	}

	return fc
}

// SamplesToGeoJSON converts point-density samples to point features.
func SamplesToGeoJSON(samples []types.NodeSample) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, s := range samples {
		gf := geojson.NewFeature(orb.Point{s.Lon, s.Lat})
		for k, v := range s.Tags {
			gf.Properties[k] = v
		}
		fc.Append(gf)
	}
	return fc
}

// RouteToGeoJSON converts a found route to a line feature carrying its
// length and node ids, followed by one point per requested waypoint.
func RouteToGeoJSON(p route.Path, waypoints []types.LatLon) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	ls := make(orb.LineString, len(p.Coordinates))
	for i, c := range p.Coordinates {
		ls[i] = orb.Point{c.Lon, c.Lat}
	}
	line := geojson.NewFeature(ls)
	line.Properties["distance_m"] = p.Distance
	line.Properties["node_ids"] = p.NodeIDs
	line.Properties["stroke"] = "#d7263d"
	fc.Append(line)

	for i, w := range waypoints {
		pt := geojson.NewFeature(orb.Point{w.Lon, w.Lat})
		pt.Properties["waypoint"] = i
		fc.Append(pt)
	}
	return fc
}

// Marshal encodes fc as indented JSON.
func Marshal(fc *geojson.FeatureCollection) ([]byte, error) {
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}
	return data, nil
}
