package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/osmtile/internal/types"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgCandidateQuery = `
		SELECT id FROM ways
		WHERE max_lat >= $1 AND min_lat <= $2 AND max_lon >= $3 AND min_lon <= $4
		ORDER BY id`

	pgWayNodesQuery = `
		SELECT wn.way_id, wn.node_id, n.lat, n.lon
		FROM way_nodes wn
		JOIN nodes n ON n.id = wn.node_id
		WHERE wn.way_id = ANY($1)
		ORDER BY wn.way_id, wn.seq`

	pgWayTagsQuery = `
		SELECT way_id, k, COALESCE(v, '')
		FROM way_tags
		WHERE way_id = ANY($1)`

	pgNodeSampleQuery = `
		SELECT ROUND(n.lat / $1) * $1 AS lat_approx,
		       ROUND(n.lon / $1) * $1 AS lon_approx,
		       string_agg(t.k || '=' || t.v, chr(31)) AS tags
		FROM nodes n
		LEFT JOIN node_tags t ON t.node_id = n.id
		WHERE n.lat BETWEEN $2 AND $3 AND n.lon BETWEEN $4 AND $5
		GROUP BY lat_approx, lon_approx
		ORDER BY lat_approx, lon_approx`
)

// Postgres is a feature store backed by a PostgreSQL connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse dsn: %w", ErrConnection, err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect: %w", ErrConnection, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to ping: %w", ErrConnection, err)
	}

	return &Postgres{pool: pool, logger: logger}, nil
}

func (p *Postgres) log() *slog.Logger {
	if p.logger != nil {
		return p.logger
	}
	return slog.Default()
}

// QueryWays implements FeatureStore.
func (p *Postgres) QueryWays(ctx context.Context, bbox types.BoundingBox) ([]types.Feature, error) {
	rows, err := p.pool.Query(ctx, pgCandidateQuery, bbox.MinLat, bbox.MaxLat, bbox.MinLon, bbox.MaxLon)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to select candidate ways: %w", ErrQuery, err)
	}
	var candidates []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: failed to scan way id: %w", ErrQuery, err)
		}
		candidates = append(candidates, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read candidate ways: %w", ErrQuery, err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	rows, err = p.pool.Query(ctx, pgWayNodesQuery, candidates)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to select way nodes: %w", ErrQuery, err)
	}
	var nodes []wayNodeRow
	for rows.Next() {
		var r wayNodeRow
		if err := rows.Scan(&r.wayID, &r.nodeID, &r.lat, &r.lon); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: failed to scan way node: %w", ErrQuery, err)
		}
		nodes = append(nodes, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read way nodes: %w", ErrQuery, err)
	}

	rows, err = p.pool.Query(ctx, pgWayTagsQuery, candidates)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to select way tags: %w", ErrQuery, err)
	}
	var tags []wayTagRow
	for rows.Next() {
		var r wayTagRow
		if err := rows.Scan(&r.wayID, &r.k, &r.v); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: failed to scan way tag: %w", ErrQuery, err)
		}
		tags = append(tags, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read way tags: %w", ErrQuery, err)
	}

	features := assembleFeatures(candidates, bbox, nodes, tags)
	p.log().Debug("Queried ways",
		"bbox", bbox.String(),
		"candidates", len(candidates),
		"features", len(features))
	return features, nil
}

// QueryNodes implements FeatureStore.
func (p *Postgres) QueryNodes(ctx context.Context, zoom int, tiles []types.TileXY) ([]types.NodeSample, error) {
	rate := ApproximationRate(zoom)

	var samples []types.NodeSample
	for _, t := range tiles {
		bbox := types.TileBBox(types.TileCoordinate{Zoom: zoom, X: t.X, Y: t.Y})

		rows, err := p.pool.Query(ctx, pgNodeSampleQuery, rate, bbox.MinLat, bbox.MaxLat, bbox.MinLon, bbox.MaxLon)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to sample nodes for tile %d/%d: %w", ErrQuery, t.X, t.Y, err)
		}
		for rows.Next() {
			var (
				sample types.NodeSample
				tags   *string
			)
			if err := rows.Scan(&sample.Lat, &sample.Lon, &tags); err != nil {
				rows.Close()
				return nil, fmt.Errorf("%w: failed to scan node sample: %w", ErrQuery, err)
			}
			if tags != nil {
				sample.Tags = parseNodeTags(*tags)
			} else {
				sample.Tags = map[string]string{}
			}
			samples = append(samples, sample)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("%w: failed to read node samples: %w", ErrQuery, err)
		}
	}

	return Decimate(samples), nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
