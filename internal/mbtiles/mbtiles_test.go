package mbtiles

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/osmtile/internal/cache"
	"github.com/MeKo-Tech/osmtile/internal/types"
)

func testMetadata() Metadata {
	return Metadata{
		Name:        "Test Tileset",
		Format:      "png",
		MinZoom:     10,
		MaxZoom:     14,
		Bounds:      [4]float64{9.5, 51.8, 9.9, 52.1},
		Center:      [3]float64{9.7, 51.95, 12},
		Attribution: "© OpenStreetMap contributors",
		Description: "Test description",
		Type:        "baselayer",
		Version:     "1.0",
	}
}

func TestWriterReader_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.mbtiles")

	w, err := Create(ctx, dbPath, testMetadata())
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}

	tiles := []types.TileCoordinate{
		{Zoom: 13, X: 4317, Y: 2692},
		{Zoom: 13, X: 4318, Y: 2692},
		{Zoom: 14, X: 8634, Y: 5384},
	}
	for _, tc := range tiles {
		if err := w.WriteTile(ctx, tc, []byte("png "+tc.String())); err != nil {
			t.Fatalf("Failed to write tile %s: %v", tc, err)
		}
	}
	if err := w.Close(ctx); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	r, err := OpenReader(ctx, dbPath)
	if err != nil {
		t.Fatalf("Failed to open reader: %v", err)
	}
	defer r.Close()

	for _, tc := range tiles {
		data, err := r.ReadTile(ctx, tc)
		if err != nil {
			t.Fatalf("Failed to read tile %s: %v", tc, err)
		}
		if string(data) != "png "+tc.String() {
			t.Errorf("Tile %s data mismatch: got %q", tc, data)
		}
	}

	n, err := r.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(tiles) {
		t.Errorf("Count = %d, want %d", n, len(tiles))
	}
}

func TestWriter_StoresTMSRows(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.mbtiles")

	w, err := Create(ctx, dbPath, Metadata{Name: "t"})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteTile(ctx, types.TileCoordinate{Zoom: 2, X: 1, Y: 0}, []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	var row int
	if err := w.db.QueryRow("SELECT tile_row FROM tiles").Scan(&row); err != nil {
		t.Fatal(err)
	}
	if row != 3 {
		t.Errorf("tile_row = %d, want 3", row)
	}
	if w.Written() != 1 {
		t.Errorf("Written = %d, want 1", w.Written())
	}
	if err := w.Close(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestWriter_ReplaceExisting(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.mbtiles")
	tc := types.TileCoordinate{Zoom: 13, X: 1, Y: 2}

	w, err := Create(ctx, dbPath, Metadata{Name: "t"})
	if err != nil {
		t.Fatal(err)
	}
	for _, data := range []string{"old", "new"} {
		if err := w.WriteTile(ctx, tc, []byte(data)); err != nil {
			t.Fatal(err)
		}
		if err := w.Flush(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(ctx); err != nil {
		t.Fatal(err)
	}

	r, err := OpenReader(ctx, dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	data, err := r.ReadTile(ctx, tc)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "new" {
		t.Errorf("got %q, want %q", data, "new")
	}
}

func TestReader_Metadata(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.mbtiles")
	want := testMetadata()

	w, err := Create(ctx, dbPath, want)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(ctx); err != nil {
		t.Fatal(err)
	}

	r, err := OpenReader(ctx, dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	got, err := r.Metadata(ctx)
	if err != nil {
		t.Fatalf("Failed to read metadata: %v", err)
	}
	if got != want {
		t.Errorf("metadata mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestReader_TileNotFound(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.mbtiles")

	w, err := Create(ctx, dbPath, Metadata{Name: "t"})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(ctx); err != nil {
		t.Fatal(err)
	}

	r, err := OpenReader(ctx, dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	_, err = r.ReadTile(ctx, types.TileCoordinate{Zoom: 13, X: 4317, Y: 2692})
	if !errors.Is(err, ErrTileNotFound) {
		t.Errorf("expected ErrTileNotFound, got %v", err)
	}
}

func TestReader_InvalidDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "invalid.mbtiles")
	if err := os.WriteFile(dbPath, []byte("not a database"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := OpenReader(context.Background(), dbPath); err == nil {
		t.Error("Expected error for invalid database, got nil")
	}
}

func TestCoverMetadata(t *testing.T) {
	a := types.TileCoordinate{Zoom: 14, X: 8634, Y: 5384}
	b := types.TileCoordinate{Zoom: 15, X: 17269, Y: 10769}

	m := CoverMetadata(Metadata{Name: "x"}, []types.TileCoordinate{a, b})
	if m.MinZoom != 14 || m.MaxZoom != 15 {
		t.Errorf("zoom range = %d..%d, want 14..15", m.MinZoom, m.MaxZoom)
	}

	ba, bb := types.TileBBox(a), types.TileBBox(b)
	want := [4]float64{
		min(ba.MinLon, bb.MinLon), min(ba.MinLat, bb.MinLat),
		max(ba.MaxLon, bb.MaxLon), max(ba.MaxLat, bb.MaxLat),
	}
	if m.Bounds != want {
		t.Errorf("bounds = %v, want %v", m.Bounds, want)
	}
	if m.Center[2] != 14 {
		t.Errorf("center zoom = %v, want 14", m.Center[2])
	}

	if got := CoverMetadata(Metadata{Name: "x"}, nil); got.MinZoom != 0 || got.Bounds != [4]float64{} {
		t.Errorf("empty cover changed metadata: %+v", got)
	}
}

func TestExportCache(t *testing.T) {
	ctx := context.Background()
	dir := cache.New(filepath.Join(t.TempDir(), "cache"), nil)

	tiles := []types.TileCoordinate{
		{Zoom: 15, X: 100, Y: 200},
		{Zoom: 15, X: 101, Y: 200},
		{Zoom: 16, X: 200, Y: 400},
	}
	for _, tc := range tiles {
		data := []byte("tile " + tc.String())
		if _, err := dir.Commit(tc, func(w io.Writer) error {
			_, err := io.Copy(w, bytes.NewReader(data))
			return err
		}); err != nil {
			t.Fatal(err)
		}
	}

	dbPath := filepath.Join(t.TempDir(), "out.mbtiles")
	n, err := ExportCache(ctx, dir, dbPath, Metadata{Name: "osmtile"}, nil)
	if err != nil {
		t.Fatalf("ExportCache: %v", err)
	}
	if n != len(tiles) {
		t.Errorf("exported %d tiles, want %d", n, len(tiles))
	}

	r, err := OpenReader(ctx, dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	for _, tc := range tiles {
		data, err := r.ReadTile(ctx, tc)
		if err != nil {
			t.Fatalf("read %s: %v", tc, err)
		}
		if string(data) != "tile "+tc.String() {
			t.Errorf("tile %s = %q", tc, data)
		}
	}

	meta, err := r.Metadata(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Format != "png" || meta.MinZoom != 15 || meta.MaxZoom != 16 {
		t.Errorf("unexpected metadata %+v", meta)
	}
}

func TestExportCache_Empty(t *testing.T) {
	dir := cache.New(filepath.Join(t.TempDir(), "missing"), nil)
	if _, err := ExportCache(context.Background(), dir, filepath.Join(t.TempDir(), "x.mbtiles"), Metadata{}, nil); err == nil {
		t.Error("expected error for an empty cache")
	}
}
