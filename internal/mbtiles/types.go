// Package mbtiles packs rendered tiles into an MBTiles database.
package mbtiles

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/osmtile/internal/types"
)

// ErrTileNotFound is returned by Reader.ReadTile for a missing tile.
var ErrTileNotFound = errors.New("tile not found")

// Metadata contains MBTiles metadata fields.
type Metadata struct {
	Name        string // Human-readable tileset identifier
	Format      string // Tile data type (png, jpg, webp)
	Attribution string
	Description string
	Type        string // "baselayer" or "overlay"
	Version     string
	Bounds      [4]float64 // minLon, minLat, maxLon, maxLat
	Center      [3]float64 // lon, lat, zoom
	MinZoom     int
	MaxZoom     int
}

// ToMap converts Metadata to name/value rows.
func (m Metadata) ToMap() map[string]string {
	result := make(map[string]string)

	set := func(k, v string) {
		if v != "" {
			result[k] = v
		}
	}
	set("name", m.Name)
	set("format", m.Format)
	set("attribution", m.Attribution)
	set("description", m.Description)
	set("type", m.Type)
	set("version", m.Version)

	if m.MinZoom > 0 || m.MaxZoom > 0 {
		result["minzoom"] = strconv.Itoa(m.MinZoom)
		result["maxzoom"] = strconv.Itoa(m.MaxZoom)
	}
	if m.Bounds != [4]float64{} {
		result["bounds"] = fmt.Sprintf("%.6f,%.6f,%.6f,%.6f",
			m.Bounds[0], m.Bounds[1], m.Bounds[2], m.Bounds[3])
	}
	if m.Center != [3]float64{} {
		result["center"] = fmt.Sprintf("%.6f,%.6f,%d",
			m.Center[0], m.Center[1], int(m.Center[2]))
	}

	return result
}

// metadataFromMap is the inverse of ToMap. Unparsable numbers are left zero.
func metadataFromMap(rows map[string]string) Metadata {
	m := Metadata{
		Name:        rows["name"],
		Format:      rows["format"],
		Attribution: rows["attribution"],
		Description: rows["description"],
		Type:        rows["type"],
		Version:     rows["version"],
	}
	m.MinZoom, _ = strconv.Atoi(rows["minzoom"])
	m.MaxZoom, _ = strconv.Atoi(rows["maxzoom"])
	parseFloats(rows["bounds"], m.Bounds[:])
	parseFloats(rows["center"], m.Center[:])
	return m
}

func parseFloats(s string, dst []float64) {
	parts := strings.Split(s, ",")
	if len(parts) != len(dst) {
		return
	}
	for i, p := range parts {
		if f, err := strconv.ParseFloat(strings.TrimSpace(p), 64); err == nil {
			dst[i] = f
		}
	}
}

// tmsRow converts an XYZ row to the flipped TMS row MBTiles stores.
func tmsRow(coord types.TileCoordinate) int {
	return (1 << coord.Zoom) - 1 - coord.Y
}

// CoverMetadata fills zoom range, bounds and center from the given tiles.
func CoverMetadata(m Metadata, tiles []types.TileCoordinate) Metadata {
	if len(tiles) == 0 {
		return m
	}

	box := types.TileBBox(tiles[0])
	m.MinZoom, m.MaxZoom = tiles[0].Zoom, tiles[0].Zoom
	for _, t := range tiles[1:] {
		b := types.TileBBox(t)
		box.MinLon = min(box.MinLon, b.MinLon)
		box.MinLat = min(box.MinLat, b.MinLat)
		box.MaxLon = max(box.MaxLon, b.MaxLon)
		box.MaxLat = max(box.MaxLat, b.MaxLat)
		m.MinZoom = min(m.MinZoom, t.Zoom)
		m.MaxZoom = max(m.MaxZoom, t.Zoom)
	}

	lat, lon := box.Center()
	m.Bounds = [4]float64{box.MinLon, box.MinLat, box.MaxLon, box.MaxLat}
	m.Center = [3]float64{lon, lat, float64(m.MinZoom)}
	return m
}
