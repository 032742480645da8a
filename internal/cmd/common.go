package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/osmtile/assets"
	"github.com/MeKo-Tech/osmtile/internal/cache"
	"github.com/MeKo-Tech/osmtile/internal/metrics"
	"github.com/MeKo-Tech/osmtile/internal/pipeline"
	"github.com/MeKo-Tech/osmtile/internal/store"
	"github.com/MeKo-Tech/osmtile/internal/style"
	"github.com/MeKo-Tech/osmtile/internal/tile"
	"github.com/MeKo-Tech/osmtile/internal/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	defaults := pipeline.DefaultOptions()
	viper.SetDefault("render.width", defaults.Width)
	viper.SetDefault("render.height", defaults.Height)
	viper.SetDefault("render.label_min_zoom", defaults.LabelMinZoom)
	viper.SetDefault("render.stroke_width", defaults.StrokeWidth)
	viper.SetDefault("render.font_size", defaults.FontSize)
	viper.SetDefault("render.latest_path", defaults.LatestPath)
	viper.SetDefault("render.supersample", defaults.Supersample)
	viper.SetDefault("render.grain", defaults.Grain)
	viper.SetDefault("render.seed", defaults.Seed)
	viper.SetDefault("render.label_collisions", defaults.LabelCollisions)
}

// renderOptions reads the render.* configuration.
func renderOptions() pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.Width = viper.GetInt("render.width")
	opts.Height = viper.GetInt("render.height")
	opts.LabelMinZoom = viper.GetInt("render.label_min_zoom")
	opts.StrokeWidth = viper.GetFloat64("render.stroke_width")
	opts.FontSize = viper.GetFloat64("render.font_size")
	opts.LatestPath = viper.GetString("render.latest_path")
	opts.Supersample = viper.GetInt("render.supersample")
	opts.Grain = viper.GetFloat64("render.grain")
	opts.Seed = viper.GetInt64("render.seed")
	opts.LabelCollisions = viper.GetBool("render.label_collisions")
	return opts
}

func openStore(ctx context.Context) (store.FeatureStore, error) {
	driver := viper.GetString("db_driver")
	dsn := viper.GetString("db")
	logger.Debug("Opening feature store", "driver", driver)
	return store.Open(ctx, driver, dsn, logger)
}

// loadStyles reads --style-file, or the built-in table when it is unset.
func loadStyles() (*style.Table, error) {
	path := viper.GetString("style_file")
	if path == "" {
		logger.Info("Using built-in style")
		return style.Parse(strings.NewReader(assets.DefaultStyle))
	}
	table, err := style.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Info("Loaded style", "path", path, "rules", table.Len())
	return table, nil
}

func newGenerator(s store.FeatureStore, rec *metrics.Recorder) (*pipeline.Generator, error) {
	styles, err := loadStyles()
	if err != nil {
		return nil, err
	}
	dir := cache.New(viper.GetString("cache_dir"), logger)
	gen, err := pipeline.NewGenerator(s, styles, dir, renderOptions(), logger, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to init generator: %w", err)
	}
	return gen, nil
}

// tileArg resolves the tile of a command: a positional "z/x/y" argument,
// or the --zoom, --x and --y flags.
func tileArg(cmd *cobra.Command, args []string) (types.TileCoordinate, error) {
	if len(args) > 0 {
		c, err := tile.ParseCoords(args[0])
		if err != nil {
			return types.TileCoordinate{}, err
		}
		return c.TileCoordinate(), nil
	}

	zoom, _ := cmd.Flags().GetInt("zoom")
	x, _ := cmd.Flags().GetInt("x")
	y, _ := cmd.Flags().GetInt("y")
	c, err := tile.FromTileCoordinate(types.TileCoordinate{Zoom: zoom, X: x, Y: y})
	if err != nil {
		return types.TileCoordinate{}, err
	}
	return c.TileCoordinate(), nil
}

var renderFlags = []string{"latest-path", "supersample", "grain", "label-collisions"}

// addRenderFlags registers the flags that tune rendering on a command that renders.
func addRenderFlags(cmd *cobra.Command) {
	cmd.Flags().String("latest-path", "rendered_tile.png", "Copy of the most recent render (empty disables)")
	cmd.Flags().Int("supersample", 1, "Render at N times the size and downsample")
	cmd.Flags().Float64("grain", 0, "Paper grain strength (0 disables)")
	cmd.Flags().Bool("label-collisions", false, "Drop labels overlapping an earlier label")
}

// bindRenderFlags binds the running command's render flags under render.*.
// It runs as a PreRun hook so only the executing command owns the keys.
func bindRenderFlags(cmd *cobra.Command, _ []string) {
	bindFlags(cmd, "render", renderFlags...)
}

func addTileFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("zoom", "z", 15, "Zoom level")
	cmd.Flags().IntP("x", "x", 0, "Tile column")
	cmd.Flags().IntP("y", "y", 0, "Tile row")
}

// parseBBox parses a bounding box string "minLon,minLat,maxLon,maxLat" into [4]float64.
func parseBBox(s string) ([4]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return [4]float64{}, fmt.Errorf("expected 4 comma-separated values, got %d", len(parts))
	}

	var bbox [4]float64
	for i, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return [4]float64{}, fmt.Errorf("invalid number at position %d: %w", i, err)
		}
		bbox[i] = val
	}

	if bbox[0] >= bbox[2] {
		return [4]float64{}, fmt.Errorf("minLon (%.4f) must be < maxLon (%.4f)", bbox[0], bbox[2])
	}
	if bbox[1] >= bbox[3] {
		return [4]float64{}, fmt.Errorf("minLat (%.4f) must be < maxLat (%.4f)", bbox[1], bbox[3])
	}

	return bbox, nil
}

func boundingBox(b [4]float64) types.BoundingBox {
	return types.BoundingBox{MinLon: b[0], MinLat: b[1], MaxLon: b[2], MaxLat: b[3]}
}
