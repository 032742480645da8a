package tile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/osmtile/internal/types"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// Coords represents a tile coordinate in the Web Mercator tile system (z/x/y).
// It is the key used by batch rendering and the worker pool.
type Coords struct {
	Z uint32 // Zoom level
	X uint32 // X coordinate (column)
	Y uint32 // Y coordinate (row)
}

// String returns the tile coordinate as a string in format "z{zoom}_x{x}_y{y}"
func (c Coords) String() string {
	return fmt.Sprintf("z%d_x%d_y%d", c.Z, c.X, c.Y)
}

// Tile returns the maptile.Tile for this coordinate
func (c Coords) Tile() maptile.Tile {
	return maptile.New(c.X, c.Y, maptile.Zoom(c.Z))
}

// TileCoordinate converts to the signed representation used by rendering.
func (c Coords) TileCoordinate() types.TileCoordinate {
	return types.TileCoordinate{Zoom: int(c.Z), X: int(c.X), Y: int(c.Y)}
}

// NewCoords creates a new Coords from zoom, x, y values
func NewCoords(z, x, y uint32) Coords {
	return Coords{Z: z, X: x, Y: y}
}

// FromTileCoordinate validates and converts a signed tile coordinate.
func FromTileCoordinate(tc types.TileCoordinate) (Coords, error) {
	if tc.Zoom < 0 || tc.X < 0 || tc.Y < 0 {
		return Coords{}, fmt.Errorf("invalid coordinates: zoom/x/y must be non-negative, got %s", tc)
	}
	if tc.Zoom > 30 {
		return Coords{}, fmt.Errorf("invalid zoom %d: must be <= 30", tc.Zoom)
	}
	n := 1 << tc.Zoom
	if tc.X >= n || tc.Y >= n {
		return Coords{}, fmt.Errorf("tile %s is outside the %dx%d grid", tc, n, n)
	}
	return NewCoords(uint32(tc.Zoom), uint32(tc.X), uint32(tc.Y)), nil
}

// ParseCoords parses "z13_x4297_y2754", "13/4297/2754" or "13 4297 2754".
func ParseCoords(s string) (Coords, error) {
	s = strings.TrimSpace(s)

	var c Coords
	if strings.HasPrefix(s, "z") {
		var z, x, y int
		if _, err := fmt.Sscanf(s, "z%d_x%d_y%d", &z, &x, &y); err != nil {
			return c, fmt.Errorf("invalid tile coordinate format: %s", s)
		}
		return FromTileCoordinate(types.TileCoordinate{Zoom: z, X: x, Y: y})
	}

	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == ' ' || r == '\t' })
	if len(parts) != 3 {
		return c, fmt.Errorf("invalid tile coordinate format: %s", s)
	}

	var vals [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return c, fmt.Errorf("invalid tile coordinate format: %s", s)
		}
		vals[i] = v
	}

	return FromTileCoordinate(types.TileCoordinate{Zoom: vals[0], X: vals[1], Y: vals[2]})
}

// TilesInBBox returns all tile coordinates within a bounding box across a zoom range.
// bbox: [minLon, minLat, maxLon, maxLat] in WGS84
// Calculates correct tile coordinates at each zoom level independently.
func TilesInBBox(bbox [4]float64, zoomMin, zoomMax int) []Coords {
	tiles := make([]Coords, 0, TileCount(bbox, zoomMin, zoomMax))

	for z := zoomMin; z <= zoomMax; z++ {
		minX, minY, maxX, maxY := tileSpan(bbox, z)
		for x := minX; x <= maxX; x++ {
			for y := minY; y <= maxY; y++ {
				tiles = append(tiles, NewCoords(uint32(z), x, y))
			}
		}
	}

	return tiles
}

// TileCount returns the number of tiles in a bounding box across a zoom range.
// This is useful for progress estimation without allocating the full tile list.
func TileCount(bbox [4]float64, zoomMin, zoomMax int) int {
	count := 0
	for z := zoomMin; z <= zoomMax; z++ {
		minX, minY, maxX, maxY := tileSpan(bbox, z)
		count += int(maxX-minX+1) * int(maxY-minY+1)
	}
	return count
}

// tileSpan returns the inclusive tile column/row range covering bbox at zoom z.
func tileSpan(bbox [4]float64, z int) (minX, minY, maxX, maxY uint32) {
	zoom := maptile.Zoom(z)
	minTile := maptile.At(orb.Point{bbox[0], bbox[1]}, zoom)
	maxTile := maptile.At(orb.Point{bbox[2], bbox[3]}, zoom)

	// Y grows southwards, so the min corner may map to the larger row.
	minX, maxX = minTile.X, maxTile.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY = minTile.Y, maxTile.Y
	if minY > maxY {
		minY, maxY = maxY, minY
	}
	return minX, minY, maxX, maxY
}
