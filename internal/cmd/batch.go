package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/MeKo-Tech/osmtile/internal/metrics"
	"github.com/MeKo-Tech/osmtile/internal/tile"
	"github.com/MeKo-Tech/osmtile/internal/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Render every tile of a bounding box",
	Long:   `Render all tiles covering --bbox for each zoom level in --zoom-min..--zoom-max.`,
	PreRun: bindRenderFlags,
	RunE:   runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().String("bbox", "", "Bounding box: minLon,minLat,maxLon,maxLat (e.g., \"9.7,52.3,9.9,52.4\")")
	batchCmd.Flags().Int("zoom-min", 15, "Minimum zoom level")
	batchCmd.Flags().Int("zoom-max", 15, "Maximum zoom level")
	batchCmd.Flags().IntP("workers", "w", 0, "Number of parallel workers (default: number of CPUs)")
	batchCmd.Flags().Bool("progress", true, "Show progress bar")
	batchCmd.Flags().Bool("allow-failures", false, "Exit successfully even if some tiles fail")
	batchCmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this textfile when done")

	addRenderFlags(batchCmd)

	bindFlags(batchCmd, "batch", "bbox", "zoom-min", "zoom-max", "workers", "progress", "allow-failures", "metrics-file")
}

func runBatch(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	bboxStr := viper.GetString("batch.bbox")
	zoomMin := viper.GetInt("batch.zoom_min")
	zoomMax := viper.GetInt("batch.zoom_max")
	workers := viper.GetInt("batch.workers")
	metricsFile := viper.GetString("batch.metrics_file")

	if bboxStr == "" {
		return fmt.Errorf("--bbox is required")
	}
	bbox, err := parseBBox(bboxStr)
	if err != nil {
		return fmt.Errorf("invalid bbox: %w", err)
	}
	if zoomMin < 0 || zoomMax > 30 {
		return fmt.Errorf("zoom levels must be within 0..30")
	}
	if zoomMin > zoomMax {
		return fmt.Errorf("--zoom-min (%d) must be <= --zoom-max (%d)", zoomMin, zoomMax)
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	tiles := tile.TilesInBBox(bbox, zoomMin, zoomMax)
	logger.Info("Starting batch render",
		"bbox", bboxStr,
		"zoom_range", fmt.Sprintf("%d-%d", zoomMin, zoomMax),
		"tiles", len(tiles),
		"workers", workers,
		"cache_dir", viper.GetString("cache_dir"),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	rec := metrics.New()
	gen, err := newGenerator(s, rec)
	if err != nil {
		return err
	}

	progress := worker.NewProgress(len(tiles), viper.GetBool("batch.progress"))
	pool := worker.New(worker.Config{
		Workers:    workers,
		Renderer:   gen,
		OnProgress: progress.Callback(),
		Logger:     logger,
	})

	results := pool.Run(ctx, tiles)
	progress.Done()

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			logger.Error("Tile render failed", "tile", r.Coords.String(), "error", r.Err)
		}
	}
	logger.Info(progress.Summary())

	if metricsFile != "" {
		if err := rec.WriteTextfile(metricsFile); err != nil {
			logger.Warn("Failed to write metrics", "path", metricsFile, "error", err)
		} else {
			logger.Info("Metrics written", "path", metricsFile)
		}
	}

	if failed > 0 {
		if viper.GetBool("batch.allow_failures") {
			logger.Warn("Some tiles failed, continuing due to --allow-failures", "failed_count", failed)
			return nil
		}
		return fmt.Errorf("%d tiles failed to render", failed)
	}
	return nil
}
