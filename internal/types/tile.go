package types

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// TileCoordinate represents a tile in the Web Mercator tile pyramid
type TileCoordinate struct {
	Zoom int // Zoom level (>= 0)
	X    int // Tile column (west to east)
	Y    int // Tile row (north to south)
}

// TileXY is a tile column/row pair without a zoom level.
type TileXY struct {
	X int
	Y int
}

// BoundingBox represents a geographic bounding box in WGS84 (EPSG:4326)
type BoundingBox struct {
	MinLon float64 // Western edge (degrees)
	MinLat float64 // Southern edge (degrees)
	MaxLon float64 // Eastern edge (degrees)
	MaxLat float64 // Northern edge (degrees)
}

// TileToLatLon converts the north-west corner of tile (x, y) at the given zoom
// to latitude and longitude. Any integer input is accepted; no range checks.
func TileToLatLon(x, y, zoom int) (lat, lon float64) {
	n := math.Pow(2, float64(zoom))
	lon = float64(x)/n*360.0 - 180.0
	lat = mercatorToLat(math.Pi * (1 - 2*float64(y)/n))
	return lat, lon
}

// LatLonToTile returns the tile containing the given point at zoom.
func LatLonToTile(lat, lon float64, zoom int) (x, y int) {
	n := math.Pow(2, float64(zoom))
	latRad := lat * math.Pi / 180.0
	x = int(math.Floor((lon + 180.0) / 360.0 * n))
	y = int(math.Floor((1.0 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2.0 * n))
	return x, y
}

// mercatorToLat converts Web Mercator Y coordinate to latitude
func mercatorToLat(mercatorY float64) float64 {
	return 180.0 / math.Pi * math.Atan(math.Sinh(mercatorY))
}

// TileBBox computes the geographic box of a tile from its two diagonal
// corners (x, y+1) and (x+1, y). Lat and lon are normalized independently so
// the result always satisfies Min <= Max.
func TileBBox(coord TileCoordinate) BoundingBox {
	lat1, lon1 := TileToLatLon(coord.X, coord.Y+1, coord.Zoom)
	lat2, lon2 := TileToLatLon(coord.X+1, coord.Y, coord.Zoom)

	return BoundingBox{
		MinLon: math.Min(lon1, lon2),
		MinLat: math.Min(lat1, lat2),
		MaxLon: math.Max(lon1, lon2),
		MaxLat: math.Max(lat1, lat2),
	}
}

// IsPointInTile reports whether (lat, lon) lies inside the tile, edges included.
func IsPointInTile(lat, lon float64, coord TileCoordinate) bool {
	return TileBBox(coord).Contains(lat, lon)
}

// SurroundingTiles returns the 3x3 neighborhood of (x, y), the tile itself included.
func SurroundingTiles(x, y int) []TileXY {
	tiles := make([]TileXY, 0, 9)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			tiles = append(tiles, TileXY{X: x + dx, Y: y + dy})
		}
	}
	return tiles
}

// String returns a human-readable representation of the tile coordinate
func (t TileCoordinate) String() string {
	return fmt.Sprintf("z%d_x%d_y%d", t.Zoom, t.X, t.Y)
}

// XY drops the zoom level.
func (t TileCoordinate) XY() TileXY {
	return TileXY{X: t.X, Y: t.Y}
}

// String returns a human-readable representation of the bounding box
func (b BoundingBox) String() string {
	return fmt.Sprintf("bbox(%.6f,%.6f,%.6f,%.6f)", b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
}

// Contains reports whether the point lies inside the box, edges included.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Intersects reports whether two boxes overlap, touching edges included.
func (b BoundingBox) Intersects(other BoundingBox) bool {
	return other.MaxLat >= b.MinLat && other.MinLat <= b.MaxLat &&
		other.MaxLon >= b.MinLon && other.MinLon <= b.MaxLon
}

// Center returns the center point of the bounding box
func (b BoundingBox) Center() (lat, lon float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLon + b.MaxLon) / 2
}

// Width returns the width of the bounding box in degrees
func (b BoundingBox) Width() float64 {
	return b.MaxLon - b.MinLon
}

// Height returns the height of the bounding box in degrees
func (b BoundingBox) Height() float64 {
	return b.MaxLat - b.MinLat
}

// Bound converts the box to an orb.Bound (lon/lat ordering).
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLon, b.MinLat},
		Max: orb.Point{b.MaxLon, b.MaxLat},
	}
}
