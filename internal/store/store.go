// Package store retrieves OSM ways and node samples from a relational
// feature store. SQLite and PostgreSQL backends share one schema and one
// query contract.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MeKo-Tech/osmtile/internal/types"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// FeatureStore is the read side used by rendering.
type FeatureStore interface {
	// QueryWays returns every way whose precomputed box overlaps bbox, with
	// coordinates restricted to the nodes inside bbox.
	QueryWays(ctx context.Context, bbox types.BoundingBox) ([]types.Feature, error)

	// QueryNodes returns rounded node samples for each tile in tiles at zoom,
	// decimated when the combined result is large.
	QueryNodes(ctx context.Context, zoom int, tiles []types.TileXY) ([]types.NodeSample, error)

	Close() error
}

// Open opens a read-only feature store for the given driver.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (FeatureStore, error) {
	switch strings.ToLower(driver) {
	case "", DriverSQLite, "sqlite3":
		return OpenSQLite(ctx, dsn, logger)
	case DriverPostgres, "postgresql", "pgx":
		return OpenPostgres(ctx, dsn, logger)
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", ErrConnection, driver)
	}
}

// wayNodeRow is one row of the bulk coordinate query, in way_nodes.seq order.
type wayNodeRow struct {
	wayID  int64
	nodeID int64
	lat    float64
	lon    float64
}

// wayTagRow is one row of the bulk tag query.
type wayTagRow struct {
	wayID int64
	k     string
	v     string
}

// assembleFeatures groups the bulk query rows by way and emits features in
// candidate order. Coordinates outside bbox are dropped; ways left without
// coordinates are omitted.
func assembleFeatures(candidates []int64, bbox types.BoundingBox, nodes []wayNodeRow, tags []wayTagRow) []types.Feature {
	coords := make(map[int64][]types.LatLon, len(candidates))
	nodeIDs := make(map[int64][]int64, len(candidates))
	for _, n := range nodes {
		if !bbox.Contains(n.lat, n.lon) {
			continue
		}
		coords[n.wayID] = append(coords[n.wayID], types.LatLon{Lat: n.lat, Lon: n.lon})
		nodeIDs[n.wayID] = append(nodeIDs[n.wayID], n.nodeID)
	}

	tagMap := make(map[int64]map[string]string, len(candidates))
	for _, t := range tags {
		m, ok := tagMap[t.wayID]
		if !ok {
			m = make(map[string]string)
			tagMap[t.wayID] = m
		}
		m[t.k] = t.v
	}

	features := make([]types.Feature, 0, len(coords))
	for _, id := range candidates {
		c := coords[id]
		if len(c) == 0 {
			continue
		}
		t := tagMap[id]
		if t == nil {
			t = map[string]string{}
		}
		features = append(features, types.Feature{ID: id, Coordinates: c, NodeIDs: nodeIDs[id], Tags: t})
	}
	return features
}
