package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/osmtile/internal/types"
	_ "modernc.org/sqlite" // SQLite driver
)

const (
	sqliteCandidateQuery = `
		SELECT id FROM ways
		WHERE max_lat >= ? AND min_lat <= ? AND max_lon >= ? AND min_lon <= ?
		ORDER BY id`

	// The candidate set travels as one JSON array parameter.
	sqliteWayNodesQuery = `
		SELECT wn.way_id, wn.node_id, n.lat, n.lon
		FROM way_nodes wn
		JOIN nodes n ON n.id = wn.node_id
		WHERE wn.way_id IN (SELECT value FROM json_each(?))
		ORDER BY wn.way_id, wn.seq`

	sqliteWayTagsQuery = `
		SELECT way_id, k, COALESCE(v, '')
		FROM way_tags
		WHERE way_id IN (SELECT value FROM json_each(?))`

	sqliteNodeSampleQuery = `
		SELECT ROUND(n.lat / ?) * ? AS lat_approx,
		       ROUND(n.lon / ?) * ? AS lon_approx,
		       group_concat(t.k || '=' || t.v, char(31)) AS tags
		FROM nodes n
		LEFT JOIN node_tags t ON t.node_id = n.id
		WHERE n.lat BETWEEN ? AND ? AND n.lon BETWEEN ? AND ?
		GROUP BY lat_approx, lon_approx
		ORDER BY lat_approx, lon_approx`
)

// SQLite is a read-only feature store backed by a SQLite database file.
type SQLite struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// OpenSQLite opens the database at path read-only and verifies it is reachable.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLite, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: failed to stat database %s: %w", ErrConnection, path, err)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database %s: %w", ErrConnection, path, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to ping database %s: %w", ErrConnection, path, err)
	}

	return &SQLite{db: db, path: path, logger: logger}, nil
}

func (s *SQLite) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// QueryWays implements FeatureStore.
func (s *SQLite) QueryWays(ctx context.Context, bbox types.BoundingBox) ([]types.Feature, error) {
	candidates, err := s.candidateWays(ctx, bbox)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		s.log().Debug("No candidate ways", "bbox", bbox.String())
		return nil, nil
	}

	ids, err := json.Marshal(candidates)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode candidate ids: %w", ErrQuery, err)
	}

	nodes, err := s.wayNodes(ctx, string(ids))
	if err != nil {
		return nil, err
	}
	tags, err := s.wayTags(ctx, string(ids))
	if err != nil {
		return nil, err
	}

	features := assembleFeatures(candidates, bbox, nodes, tags)
	s.log().Debug("Queried ways",
		"bbox", bbox.String(),
		"candidates", len(candidates),
		"features", len(features))
	return features, nil
}

func (s *SQLite) candidateWays(ctx context.Context, bbox types.BoundingBox) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, sqliteCandidateQuery, bbox.MinLat, bbox.MaxLat, bbox.MinLon, bbox.MaxLon)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to select candidate ways: %w", ErrQuery, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: failed to scan way id: %w", ErrQuery, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read candidate ways: %w", ErrQuery, err)
	}
	return ids, nil
}

func (s *SQLite) wayNodes(ctx context.Context, ids string) ([]wayNodeRow, error) {
	rows, err := s.db.QueryContext(ctx, sqliteWayNodesQuery, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to select way nodes: %w", ErrQuery, err)
	}
	defer rows.Close()

	var out []wayNodeRow
	for rows.Next() {
		var r wayNodeRow
		if err := rows.Scan(&r.wayID, &r.nodeID, &r.lat, &r.lon); err != nil {
			return nil, fmt.Errorf("%w: failed to scan way node: %w", ErrQuery, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read way nodes: %w", ErrQuery, err)
	}
	return out, nil
}

func (s *SQLite) wayTags(ctx context.Context, ids string) ([]wayTagRow, error) {
	rows, err := s.db.QueryContext(ctx, sqliteWayTagsQuery, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to select way tags: %w", ErrQuery, err)
	}
	defer rows.Close()

	var out []wayTagRow
	for rows.Next() {
		var r wayTagRow
		if err := rows.Scan(&r.wayID, &r.k, &r.v); err != nil {
			return nil, fmt.Errorf("%w: failed to scan way tag: %w", ErrQuery, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read way tags: %w", ErrQuery, err)
	}
	return out, nil
}

// QueryNodes implements FeatureStore.
func (s *SQLite) QueryNodes(ctx context.Context, zoom int, tiles []types.TileXY) ([]types.NodeSample, error) {
	rate := ApproximationRate(zoom)

	var samples []types.NodeSample
	for _, t := range tiles {
		bbox := types.TileBBox(types.TileCoordinate{Zoom: zoom, X: t.X, Y: t.Y})

		rows, err := s.db.QueryContext(ctx, sqliteNodeSampleQuery,
			rate, rate, rate, rate,
			bbox.MinLat, bbox.MaxLat, bbox.MinLon, bbox.MaxLon)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to sample nodes for tile %d/%d: %w", ErrQuery, t.X, t.Y, err)
		}

		n := 0
		for rows.Next() {
			var (
				sample types.NodeSample
				tags   sql.NullString
			)
			if err := rows.Scan(&sample.Lat, &sample.Lon, &tags); err != nil {
				rows.Close()
				return nil, fmt.Errorf("%w: failed to scan node sample: %w", ErrQuery, err)
			}
			sample.Tags = parseNodeTags(tags.String)
			samples = append(samples, sample)
			n++
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read node samples: %w", ErrQuery, err)
		}

		s.log().Debug("Sampled nodes", "zoom", zoom, "x", t.X, "y", t.Y, "samples", n)
	}

	return Decimate(samples), nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}
