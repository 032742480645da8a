package mbtiles

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/MeKo-Tech/osmtile/internal/types"
	_ "modernc.org/sqlite" // SQLite driver
)

// DefaultBatchSize is the number of tiles buffered before a flush.
const DefaultBatchSize = 100

const schema = `
CREATE TABLE IF NOT EXISTS metadata (
	name TEXT NOT NULL,
	value TEXT
);

CREATE TABLE IF NOT EXISTS tiles (
	zoom_level INTEGER NOT NULL,
	tile_column INTEGER NOT NULL,
	tile_row INTEGER NOT NULL,
	tile_data BLOB NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS tile_index ON tiles (zoom_level, tile_column, tile_row);
`

type pendingTile struct {
	coord types.TileCoordinate
	data  []byte
}

// Writer writes PNG tiles to an MBTiles database. It is safe for concurrent use.
type Writer struct {
	db        *sql.DB
	path      string
	batch     []pendingTile
	batchSize int
	written   int
	mu        sync.Mutex
}

// Create opens path (creating it if needed), ensures the schema and replaces
// the metadata table with meta.
func Create(ctx context.Context, path string, meta Metadata) (*Writer, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = 50000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	w := &Writer{
		db:        db,
		path:      path,
		batch:     make([]pendingTile, 0, DefaultBatchSize),
		batchSize: DefaultBatchSize,
	}
	if err := w.SetMetadata(ctx, meta); err != nil {
		db.Close()
		return nil, err
	}
	return w, nil
}

// SetMetadata replaces all metadata rows.
func (w *Writer) SetMetadata(ctx context.Context, meta Metadata) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM metadata"); err != nil {
		return fmt.Errorf("failed to clear metadata: %w", err)
	}
	for k, v := range meta.ToMap() {
		if _, err := tx.ExecContext(ctx, "INSERT INTO metadata (name, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("failed to insert metadata %q: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit metadata: %w", err)
	}
	return nil
}

// WriteTile buffers one tile and flushes when the batch is full. The y
// coordinate is XYZ; it is flipped to TMS on insert.
func (w *Writer) WriteTile(ctx context.Context, coord types.TileCoordinate, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.batch = append(w.batch, pendingTile{coord: coord, data: data})
	if len(w.batch) >= w.batchSize {
		return w.flushLocked(ctx)
	}
	return nil
}

// Flush writes any buffered tiles.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx)
}

func (w *Writer) flushLocked(ctx context.Context) error {
	if len(w.batch) == 0 {
		return nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range w.batch {
		if _, err := stmt.ExecContext(ctx, t.coord.Zoom, t.coord.X, tmsRow(t.coord), t.data); err != nil {
			return fmt.Errorf("failed to insert tile %s: %w", t.coord, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	w.written += len(w.batch)
	w.batch = w.batch[:0]
	return nil
}

// Written returns the number of tiles flushed so far.
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Close flushes remaining tiles and closes the database.
func (w *Writer) Close(ctx context.Context) error {
	if err := w.Flush(ctx); err != nil {
		w.db.Close()
		return err
	}
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
