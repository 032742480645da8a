// Package pipeline renders one map tile from the feature store into the
// tile cache.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/osmtile/internal/cache"
	"github.com/MeKo-Tech/osmtile/internal/composite"
	"github.com/MeKo-Tech/osmtile/internal/geometry"
	"github.com/MeKo-Tech/osmtile/internal/label"
	"github.com/MeKo-Tech/osmtile/internal/metrics"
	"github.com/MeKo-Tech/osmtile/internal/raster"
	"github.com/MeKo-Tech/osmtile/internal/style"
	"github.com/MeKo-Tech/osmtile/internal/types"
	"golang.org/x/sync/singleflight"
)

// WayQuerier is the part of the feature store rendering needs.
type WayQuerier interface {
	QueryWays(ctx context.Context, bbox types.BoundingBox) ([]types.Feature, error)
}

// Options controls the look of rendered tiles.
type Options struct {
	Width        int
	Height       int
	StrokeWidth  float64
	FontSize     float64
	LabelMinZoom int
	// LabelCollisions drops labels overlapping an earlier one.
	LabelCollisions bool
	// LatestPath receives a copy of every freshly rendered tile. Empty disables it.
	LatestPath  string
	Supersample int
	Grain       float64
	Seed        int64
	Background  color.Color
	TextColor   color.Color
}

// DefaultOptions returns the standard 800x600 tile settings.
func DefaultOptions() Options {
	return Options{
		Width:        800,
		Height:       600,
		StrokeWidth:  2,
		FontSize:     16,
		LabelMinZoom: label.DefaultMinZoom,
		LatestPath:   "rendered_tile.png",
		Supersample:  1,
		Seed:         1337,
		Background:   raster.Background,
		TextColor:    color.Black,
	}
}

// Report describes one Render call.
type Report struct {
	Tile     types.TileCoordinate
	Path     string
	Cached   bool
	Features int
	Areas    int
	Paths    int
	Skipped  int
	Labels   int
	Query    time.Duration
	Draw     time.Duration
	Commit   time.Duration
	Total    time.Duration
}

// String formats the report as a single line.
func (r Report) String() string {
	if r.Cached {
		return fmt.Sprintf("%s: cached at %s (total %s)", r.Tile, r.Path, r.Total)
	}
	return fmt.Sprintf("%s: %d features (%d areas, %d paths, %d skipped), %d labels; query %s, draw %s, commit %s, total %s -> %s",
		r.Tile, r.Features, r.Areas, r.Paths, r.Skipped, r.Labels,
		r.Query, r.Draw, r.Commit, r.Total, r.Path)
}

// LogValue renders the report as a structured log group.
func (r Report) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("tile", r.Tile.String()),
		slog.String("path", r.Path),
		slog.Bool("cached", r.Cached),
		slog.Int("features", r.Features),
		slog.Int("areas", r.Areas),
		slog.Int("paths", r.Paths),
		slog.Int("skipped", r.Skipped),
		slog.Int("labels", r.Labels),
		slog.Duration("query", r.Query),
		slog.Duration("draw", r.Draw),
		slog.Duration("commit", r.Commit),
		slog.Duration("total", r.Total),
	)
}

// Generator renders tiles. It is safe for concurrent use; concurrent
// requests for the same tile share one render.
type Generator struct {
	store   WayQuerier
	styles  *style.Table
	cache   *cache.Dir
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Recorder
	group   singleflight.Group
}

// NewGenerator creates a generator. rec may be nil.
func NewGenerator(store WayQuerier, styles *style.Table, dir *cache.Dir, opts Options, logger *slog.Logger, rec *metrics.Recorder) (*Generator, error) {
	if store == nil {
		return nil, fmt.Errorf("feature store is required")
	}
	if dir == nil {
		return nil, fmt.Errorf("cache directory is required")
	}
	if styles == nil {
		return nil, fmt.Errorf("%w: style table is required", style.ErrConfig)
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("%w: invalid tile size %dx%d", raster.ErrRender, opts.Width, opts.Height)
	}
	if opts.StrokeWidth <= 0 {
		opts.StrokeWidth = 2
	}
	if opts.FontSize <= 0 {
		opts.FontSize = 16
	}
	if opts.Supersample < 1 {
		opts.Supersample = 1
	}
	if opts.Background == nil {
		opts.Background = raster.Background
	}
	if opts.TextColor == nil {
		opts.TextColor = color.Black
	}

	return &Generator{
		store:   store,
		styles:  styles,
		cache:   dir,
		opts:    opts,
		logger:  logger,
		metrics: rec,
	}, nil
}

// Render produces the artifact for coord, reusing a cached one if present.
func (g *Generator) Render(ctx context.Context, coord types.TileCoordinate) (Report, error) {
	v, err, shared := g.group.Do(coord.String(), func() (any, error) {
		return g.render(ctx, coord)
	})
	if shared {
		g.log().Debug("Joined in-flight render", "tile", coord.String())
	}
	return v.(Report), err
}

func (g *Generator) render(ctx context.Context, coord types.TileCoordinate) (Report, error) {
	start := time.Now()
	report := Report{Tile: coord}

	if path, ok := g.cache.Lookup(coord); ok {
		report.Cached = true
		report.Path = path
		report.Total = time.Since(start)
		g.log().Info("Tile already cached; skipping", "tile", coord.String(), "path", path)
		g.metrics.ObserveRender(coord.Zoom, metrics.ResultCached, report.Total)
		return report, nil
	}

	report, err := g.renderFresh(ctx, coord, start)
	if err != nil {
		g.metrics.ObserveRender(coord.Zoom, metrics.ResultFailed, time.Since(start))
		return report, err
	}

	g.metrics.ObserveRender(coord.Zoom, metrics.ResultRendered, report.Total)
	g.metrics.AddLabels(report.Labels)
	g.log().Info("Tile rendered", "report", report)
	return report, nil
}

func (g *Generator) renderFresh(ctx context.Context, coord types.TileCoordinate, start time.Time) (Report, error) {
	report := Report{Tile: coord}
	bbox := types.TileBBox(coord)

	g.log().Debug("Querying features", "tile", coord.String(), "bbox", bbox.String())
	features, err := g.store.QueryWays(ctx, bbox)
	report.Query = time.Since(start)
	if err != nil {
		return report, fmt.Errorf("failed to query features for %s: %w", coord, err)
	}
	report.Features = len(features)
	g.metrics.ObserveQuery(report.Query, len(features))

	drawStart := time.Now()
	img, err := g.draw(coord, bbox, features, &report)
	report.Draw = time.Since(drawStart)
	if err != nil {
		return report, fmt.Errorf("failed to draw %s: %w", coord, err)
	}

	commitStart := time.Now()
	path, err := g.cache.Commit(coord, func(w io.Writer) error {
		return raster.EncodePNG(w, img)
	})
	report.Commit = time.Since(commitStart)
	if err != nil {
		return report, fmt.Errorf("failed to commit %s: %w", coord, err)
	}
	report.Path = path

	if g.opts.LatestPath != "" {
		if err := cache.CopyFile(path, g.opts.LatestPath); err != nil {
			g.log().Warn("Failed to copy latest tile", "tile", coord.String(), "dst", g.opts.LatestPath, "error", err)
		}
	}

	report.Total = time.Since(start)
	return report, nil
}

// draw paints shapes and labels on separate layers and composites them.
func (g *Generator) draw(coord types.TileCoordinate, bbox types.BoundingBox, features []types.Feature, report *Report) (*image.NRGBA, error) {
	w, h, ss := g.opts.Width, g.opts.Height, g.opts.Supersample

	shapes, err := raster.NewCanvas(w, h, ss, g.opts.Background)
	if err != nil {
		return nil, err
	}
	if g.opts.Grain > 0 {
		shapes.ApplyGrain(g.opts.Grain, tileSeed(g.opts.Seed, coord))
	}

	proj := raster.NewProjector(bbox, w, h)
	placer := label.NewPlacer(coord.Zoom, label.Options{
		Width:      w,
		Height:     h,
		MinZoom:    g.opts.LabelMinZoom,
		CharWidth:  label.DefaultCharWidth,
		LineHeight: int(g.opts.FontSize),
		Collisions: g.opts.LabelCollisions,
	})

	for _, f := range features {
		pts := proj.ProjectAll(f.Coordinates)
		if len(pts) < 2 {
			report.Skipped++
			continue
		}

		col := g.styles.Resolve(f.Tags)
		var drawn []geometry.Point
		if style.IsEnclosed(f.Tags) {
			drawn = geometry.ConvexHull(pts)
			shapes.FillPolygon(drawn, col)
			report.Areas++
		} else {
			drawn = pts
			shapes.StrokePath(drawn, g.opts.StrokeWidth, col)
			report.Paths++
		}

		if name, ok := f.Name(); ok {
			placer.Add(name, drawn)
		}
	}

	placed := placer.Labels()
	report.Labels = len(placed)
	if placer.Dropped() > 0 {
		g.log().Debug("Dropped colliding labels", "tile", coord.String(), "count", placer.Dropped())
	}

	labels, err := raster.NewCanvas(w, h, ss, nil)
	if err != nil {
		return nil, err
	}
	if len(placed) > 0 {
		face, err := labels.NewFont(g.opts.FontSize)
		if err != nil {
			return nil, err
		}
		for _, l := range placed {
			labels.DrawText(face, l.Text, l.X, l.Y, g.opts.TextColor)
		}
		_ = face.Close()
	}

	out, err := composite.CompositeLayersOverBase(
		shapes.Image(),
		map[composite.Layer]image.Image{composite.LayerLabels: labels.Image()},
		[]composite.Layer{composite.LayerLabels},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to composite layers: %w", raster.ErrRender, err)
	}
	return out, nil
}

// tileSeed varies the grain per tile while keeping it reproducible.
func tileSeed(seed int64, coord types.TileCoordinate) int64 {
	return seed ^ int64(coord.Zoom)<<48 ^ int64(coord.X)<<24 ^ int64(coord.Y)
}

func (g *Generator) log() *slog.Logger {
	if g.logger != nil {
		return g.logger
	}
	return slog.Default()
}
