package raster

import (
	"github.com/MeKo-Tech/osmtile/internal/geometry"
	"github.com/MeKo-Tech/osmtile/internal/types"
)

// Projector maps geographic coordinates linearly into a width x height scene
// with the y axis pointing down.
type Projector struct {
	bbox   types.BoundingBox
	width  int
	height int
}

// NewProjector creates a projector for bbox.
func NewProjector(bbox types.BoundingBox, width, height int) Projector {
	return Projector{bbox: bbox, width: width, height: height}
}

// Project converts one coordinate. Scaled values are truncated toward zero
// before the y flip.
func (p Projector) Project(lat, lon float64) geometry.Point {
	x := int((lon - p.bbox.MinLon) / p.bbox.Width() * float64(p.width))
	y := int((lat - p.bbox.MinLat) / p.bbox.Height() * float64(p.height))
	return geometry.Point{X: x, Y: p.height - y}
}

// ProjectAll converts a coordinate sequence, preserving order.
func (p Projector) ProjectAll(coords []types.LatLon) []geometry.Point {
	pts := make([]geometry.Point, len(coords))
	for i, c := range coords {
		pts[i] = p.Project(c.Lat, c.Lon)
	}
	return pts
}
