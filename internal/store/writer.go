package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"
)

// DefaultWriterBatchSize is the number of elements written per transaction.
const DefaultWriterBatchSize = 10000

// Node is one OSM node as written by ingest.
type Node struct {
	ID        int64
	Lat       float64
	Lon       float64
	Version   int
	Timestamp time.Time
	Changeset int64
	UID       int64
	User      string
	Tags      map[string]string
}

// Way is one OSM way as written by ingest. NodeIDs are in way order and must
// refer to nodes written earlier.
type Way struct {
	ID      int64
	NodeIDs []int64
	Tags    map[string]string
}

// WriterStats counts what a Writer has stored.
type WriterStats struct {
	Nodes       int
	Ways        int
	SkippedWays int
}

// Writer builds a SQLite feature store. Nodes must be added before the ways
// that reference them, as in OSM XML and PBF files.
type Writer struct {
	db        *sql.DB
	tx        *sql.Tx
	path      string
	created   bool
	logger    *slog.Logger
	batchSize int
	pending   int
	stats     WriterStats

	insertNode    *sql.Stmt
	insertNodeTag *sql.Stmt
	insertWay     *sql.Stmt
	insertWayNode *sql.Stmt
	insertWayTag  *sql.Stmt
	wayBounds     *sql.Stmt
}

// Create opens (or creates) the database at path for writing and ensures the schema.
func Create(ctx context.Context, path string, logger *slog.Logger) (*Writer, error) {
	_, statErr := os.Stat(path)
	created := errors.Is(statErr, fs.ErrNotExist)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database %s: %w", ErrConnection, path, err)
	}
	// A single connection keeps the transaction and lookups on one handle.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = 50000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: failed to set pragma %q: %w", ErrConnection, pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to create schema: %w", ErrQuery, err)
	}

	w := &Writer{db: db, path: path, created: created, logger: logger, batchSize: DefaultWriterBatchSize}
	if err := w.prepare(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) log() *slog.Logger {
	if w.logger != nil {
		return w.logger
	}
	return slog.Default()
}

func (w *Writer) prepare(ctx context.Context) error {
	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&w.insertNode, `INSERT OR IGNORE INTO nodes (id, lat, lon, version, timestamp, changeset, uid, user) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`},
		{&w.insertNodeTag, `INSERT INTO node_tags (node_id, k, v) VALUES (?, ?, ?)`},
		{&w.insertWay, `INSERT OR IGNORE INTO ways (id, min_lat, max_lat, min_lon, max_lon) VALUES (?, ?, ?, ?, ?)`},
		{&w.insertWayNode, `INSERT INTO way_nodes (way_id, node_id, seq) VALUES (?, ?, ?)`},
		{&w.insertWayTag, `INSERT INTO way_tags (way_id, k, v) VALUES (?, ?, ?)`},
		{&w.wayBounds, `SELECT MIN(lat), MAX(lat), MIN(lon), MAX(lon) FROM nodes WHERE id IN (SELECT value FROM json_each(?))`},
	}
	for _, s := range stmts {
		stmt, err := w.db.PrepareContext(ctx, s.query)
		if err != nil {
			return fmt.Errorf("%w: failed to prepare statement: %w", ErrQuery, err)
		}
		*s.dst = stmt
	}
	return nil
}

// SetBatchSize sets how many elements are written per transaction.
func (w *Writer) SetBatchSize(size int) {
	if size > 0 {
		w.batchSize = size
	}
}

func (w *Writer) begin(ctx context.Context) (*sql.Tx, error) {
	if w.tx != nil {
		return w.tx, nil
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %w", ErrQuery, err)
	}
	w.tx = tx
	return tx, nil
}

func (w *Writer) step(ctx context.Context) error {
	w.pending++
	if w.pending < w.batchSize {
		return nil
	}
	return w.flush(ctx)
}

func (w *Writer) flush(_ context.Context) error {
	if w.tx == nil {
		return nil
	}
	err := w.tx.Commit()
	w.tx = nil
	w.pending = 0
	if err != nil {
		return fmt.Errorf("%w: failed to commit batch: %w", ErrQuery, err)
	}
	return nil
}

// AddNode stores a node and its tags. A node id already present is ignored.
func (w *Writer) AddNode(ctx context.Context, n Node) error {
	tx, err := w.begin(ctx)
	if err != nil {
		return err
	}

	var ts any
	if !n.Timestamp.IsZero() {
		ts = n.Timestamp.UTC().Format(time.RFC3339)
	}
	res, err := tx.StmtContext(ctx, w.insertNode).ExecContext(ctx,
		n.ID, n.Lat, n.Lon, n.Version, ts, n.Changeset, n.UID, n.User)
	if err != nil {
		return fmt.Errorf("%w: failed to insert node %d: %w", ErrQuery, n.ID, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil
	}

	for k, v := range n.Tags {
		if _, err := tx.StmtContext(ctx, w.insertNodeTag).ExecContext(ctx, n.ID, k, v); err != nil {
			return fmt.Errorf("%w: failed to insert tag for node %d: %w", ErrQuery, n.ID, err)
		}
	}

	w.stats.Nodes++
	return w.step(ctx)
}

// AddWay stores a way, its node sequence and its tags. The way box is
// computed from the referenced nodes already in the store; a way none of
// whose nodes are known is skipped.
func (w *Writer) AddWay(ctx context.Context, way Way) error {
	tx, err := w.begin(ctx)
	if err != nil {
		return err
	}

	ids, err := json.Marshal(way.NodeIDs)
	if err != nil {
		return fmt.Errorf("%w: failed to encode node ids of way %d: %w", ErrQuery, way.ID, err)
	}

	var minLat, maxLat, minLon, maxLon sql.NullFloat64
	if err := tx.StmtContext(ctx, w.wayBounds).QueryRowContext(ctx, string(ids)).
		Scan(&minLat, &maxLat, &minLon, &maxLon); err != nil {
		return fmt.Errorf("%w: failed to compute bounds of way %d: %w", ErrQuery, way.ID, err)
	}
	if !minLat.Valid {
		w.stats.SkippedWays++
		w.log().Debug("Skipping way without known nodes", "way_id", way.ID)
		return nil
	}

	res, err := tx.StmtContext(ctx, w.insertWay).ExecContext(ctx,
		way.ID, minLat.Float64, maxLat.Float64, minLon.Float64, maxLon.Float64)
	if err != nil {
		return fmt.Errorf("%w: failed to insert way %d: %w", ErrQuery, way.ID, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil
	}

	for seq, nodeID := range way.NodeIDs {
		if _, err := tx.StmtContext(ctx, w.insertWayNode).ExecContext(ctx, way.ID, nodeID, seq); err != nil {
			return fmt.Errorf("%w: failed to insert node %d of way %d: %w", ErrQuery, nodeID, way.ID, err)
		}
	}
	for k, v := range way.Tags {
		if _, err := tx.StmtContext(ctx, w.insertWayTag).ExecContext(ctx, way.ID, k, v); err != nil {
			return fmt.Errorf("%w: failed to insert tag for way %d: %w", ErrQuery, way.ID, err)
		}
	}

	w.stats.Ways++
	return w.step(ctx)
}

// Stats returns what has been written so far.
func (w *Writer) Stats() WriterStats {
	return w.stats
}

// Close commits pending writes, builds the query indexes and closes the database.
func (w *Writer) Close(ctx context.Context) error {
	if err := w.flush(ctx); err != nil {
		w.db.Close()
		return err
	}

	w.closeStatements()

	if _, err := w.db.ExecContext(ctx, sqliteIndexes); err != nil {
		w.db.Close()
		return fmt.Errorf("%w: failed to create indexes: %w", ErrQuery, err)
	}
	if _, err := w.db.ExecContext(ctx, "ANALYZE"); err != nil {
		w.log().Warn("Failed to analyze database", "path", w.path, "error", err)
	}
	// Readers open the file read-only, which WAL mode would complicate.
	if _, err := w.db.ExecContext(ctx, "PRAGMA journal_mode = DELETE"); err != nil {
		w.db.Close()
		return fmt.Errorf("%w: failed to leave WAL mode: %w", ErrQuery, err)
	}

	w.log().Info("Feature store written",
		"path", w.path,
		"nodes", w.stats.Nodes,
		"ways", w.stats.Ways,
		"skipped_ways", w.stats.SkippedWays)

	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func (w *Writer) closeStatements() {
	for _, stmt := range []*sql.Stmt{w.insertNode, w.insertNodeTag, w.insertWay, w.insertWayNode, w.insertWayTag, w.wayBounds} {
		if stmt != nil {
			stmt.Close()
		}
	}
}

// Abort discards an unfinished import. The open batch is rolled back and,
// when Create made the database, the file and its WAL companions are
// removed so no partial store is left for readers. Batches already
// committed to a pre-existing database stay in it.
func (w *Writer) Abort() error {
	if w.tx != nil {
		if err := w.tx.Rollback(); err != nil {
			w.log().Warn("Failed to roll back batch", "path", w.path, "error", err)
		}
		w.tx = nil
		w.pending = 0
	}
	w.closeStatements()

	if !w.created {
		if _, err := w.db.Exec("PRAGMA journal_mode = DELETE"); err != nil {
			w.log().Warn("Failed to leave WAL mode", "path", w.path, "error", err)
		}
		if err := w.db.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
		w.log().Warn("Import aborted; earlier batches remain in existing database", "path", w.path)
		return nil
	}

	if err := w.db.Close(); err != nil {
		w.log().Warn("Failed to close database", "path", w.path, "error", err)
	}

	var errs []error
	for _, p := range []string{w.path, w.path + "-wal", w.path + "-shm", w.path + "-journal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to remove aborted database %s: %w", w.path, err)
	}
	w.log().Info("Import aborted; partial database removed", "path", w.path)
	return nil
}
