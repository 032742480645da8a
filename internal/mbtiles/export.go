package mbtiles

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/osmtile/internal/cache"
	"github.com/MeKo-Tech/osmtile/internal/types"
)

// ExportCache copies every tile of dir into a new MBTiles file at path.
// Zoom range, bounds and center in meta are derived from the cached tiles.
// It returns the number of tiles written.
func ExportCache(ctx context.Context, dir *cache.Dir, path string, meta Metadata, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := dir.List()
	if err != nil {
		return 0, fmt.Errorf("failed to list cache: %w", err)
	}
	if len(entries) == 0 {
		return 0, fmt.Errorf("cache %s contains no tiles", dir.Root())
	}

	coords := make([]types.TileCoordinate, len(entries))
	for i, e := range entries {
		coords[i] = e.Coord
	}
	if meta.Format == "" {
		meta.Format = "png"
	}
	meta = CoverMetadata(meta, coords)

	w, err := Create(ctx, path, meta)
	if err != nil {
		return 0, err
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			w.Close(ctx)
			return 0, err
		}
		data, err := os.ReadFile(e.Path)
		if err != nil {
			w.Close(ctx)
			return 0, fmt.Errorf("failed to read cached tile %s: %w", e.Coord, err)
		}
		if err := w.WriteTile(ctx, e.Coord, data); err != nil {
			w.Close(ctx)
			return 0, err
		}
	}

	if err := w.Close(ctx); err != nil {
		return 0, err
	}

	logger.Info("MBTiles written",
		"path", path,
		"tiles", len(entries),
		"minzoom", meta.MinZoom,
		"maxzoom", meta.MaxZoom)
	return len(entries), nil
}
