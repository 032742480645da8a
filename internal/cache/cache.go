// Package cache stores rendered tiles on disk as {root}/{zoom}/{x}_{y}.png.
package cache

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/osmtile/internal/types"
)

// ErrPersist reports that a tile artifact could not be written.
var ErrPersist = errors.New("cache persist error")

// Dir is a zoom-partitioned tile cache rooted at one directory.
type Dir struct {
	root   string
	logger *slog.Logger
}

// New returns a cache rooted at root. The directory is created on first write.
func New(root string, logger *slog.Logger) *Dir {
	return &Dir{root: root, logger: logger}
}

func (d *Dir) log() *slog.Logger {
	if d.logger != nil {
		return d.logger
	}
	return slog.Default()
}

// Root returns the cache directory.
func (d *Dir) Root() string {
	return d.root
}

// Path returns the artifact path of coord.
func (d *Dir) Path(coord types.TileCoordinate) string {
	return filepath.Join(d.root, strconv.Itoa(coord.Zoom), fmt.Sprintf("%d_%d.png", coord.X, coord.Y))
}

// Lookup reports whether coord has a cached artifact and where it is.
func (d *Dir) Lookup(coord types.TileCoordinate) (string, bool) {
	path := d.Path(coord)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return path, false
	}
	return path, true
}

// Commit writes the artifact of coord through write. Bytes go to a temporary
// file in the zoom directory which is renamed into place only after write
// succeeds, so a failed render never leaves a file at the artifact path.
// Errors from write are returned unchanged; I/O failures wrap ErrPersist.
func (d *Dir) Commit(coord types.TileCoordinate, write func(io.Writer) error) (string, error) {
	path := d.Path(coord)
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: failed to create cache directory %s: %w", ErrPersist, dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tile-*.png.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: failed to create temporary file: %w", ErrPersist, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := write(tmp); err != nil {
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("%w: failed to sync %s: %w", ErrPersist, tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: failed to close %s: %w", ErrPersist, tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("%w: failed to move tile into place: %w", ErrPersist, err)
	}
	committed = true

	d.log().Debug("Tile cached", "tile", coord.String(), "path", path)
	return path, nil
}

// CopyFile copies src to dst, replacing dst. It is used for the "latest
// render" convenience copy, whose failure callers only log.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: failed to open %s: %w", ErrPersist, src, err)
	}
	defer in.Close()

	if dir := filepath.Dir(dst); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: failed to create %s: %w", ErrPersist, dir, err)
		}
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("%w: failed to create %s: %w", ErrPersist, dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("%w: failed to copy to %s: %w", ErrPersist, dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: failed to close %s: %w", ErrPersist, dst, err)
	}
	return nil
}

// Entry is one cached tile.
type Entry struct {
	Coord types.TileCoordinate
	Path  string
}

// List returns every cached tile, sorted by zoom, x, then y. Files that do
// not follow the cache layout are skipped.
func (d *Dir) List() ([]Entry, error) {
	var entries []Entry

	err := filepath.WalkDir(d.root, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == d.root {
				return fs.SkipAll
			}
			return err
		}
		if de.IsDir() {
			return nil
		}
		coord, ok := parseEntry(d.root, path)
		if !ok {
			return nil
		}
		entries = append(entries, Entry{Coord: coord, Path: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk cache %s: %w", d.root, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Coord, entries[j].Coord
		if a.Zoom != b.Zoom {
			return a.Zoom < b.Zoom
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Y < b.Y
	})
	return entries, nil
}

func parseEntry(root, path string) (types.TileCoordinate, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return types.TileCoordinate{}, false
	}
	zoomDir, name := filepath.Split(rel)
	zoomDir = strings.TrimSuffix(zoomDir, string(filepath.Separator))
	if zoomDir == "" || strings.ContainsRune(zoomDir, filepath.Separator) {
		return types.TileCoordinate{}, false
	}

	zoom, err := strconv.Atoi(zoomDir)
	if err != nil {
		return types.TileCoordinate{}, false
	}

	base, ok := strings.CutSuffix(name, ".png")
	if !ok {
		return types.TileCoordinate{}, false
	}
	xs, ys, ok := strings.Cut(base, "_")
	if !ok {
		return types.TileCoordinate{}, false
	}
	x, errX := strconv.Atoi(xs)
	y, errY := strconv.Atoi(ys)
	if errX != nil || errY != nil {
		return types.TileCoordinate{}, false
	}

	return types.TileCoordinate{Zoom: zoom, X: x, Y: y}, true
}
