package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MeKo-Tech/osmtile/internal/ingest"
	"github.com/MeKo-Tech/osmtile/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file.osm|file.osm.pbf]",
	Short: "Build a SQLite feature store",
	Long: `Build the SQLite feature store named by --db from an OSM XML or PBF file, or
from the Overpass API for --overpass-bbox. Way bounding boxes are computed
during the import so tile queries can select candidates by box overlap.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().String("overpass-bbox", "", "Fetch this bbox (minLon,minLat,maxLon,maxLat) from Overpass instead of reading a file")
	ingestCmd.Flags().String("overpass-url", ingest.DefaultOverpassEndpoint, "Overpass API endpoint")
	ingestCmd.Flags().Int("batch-size", store.DefaultWriterBatchSize, "Elements per write transaction")

	bindFlags(ingestCmd, "ingest", "overpass-bbox", "overpass-url", "batch-size")
}

func runIngest(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	if driver := viper.GetString("db_driver"); driver != "" && driver != store.DriverSQLite {
		return fmt.Errorf("ingest writes SQLite stores only; load %s with the schema from store.PostgresSchema", driver)
	}

	bboxStr := viper.GetString("ingest.overpass_bbox")
	if (len(args) == 0) == (bboxStr == "") {
		return fmt.Errorf("give either an input file or --overpass-bbox")
	}

	var bbox [4]float64
	if bboxStr != "" {
		var err error
		if bbox, err = parseBBox(bboxStr); err != nil {
			return fmt.Errorf("invalid bbox: %w", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dbPath := viper.GetString("db")
	w, err := store.Create(ctx, dbPath, logger)
	if err != nil {
		return err
	}
	w.SetBatchSize(viper.GetInt("ingest.batch_size"))

	var stats ingest.Stats
	if bboxStr != "" {
		stats, err = ingest.NewOverpass(viper.GetString("ingest.overpass_url"), logger).Fetch(ctx, boundingBox(bbox), w)
	} else {
		stats, err = ingest.File(ctx, args[0], w, logger)
	}
	if err != nil {
		if aerr := w.Abort(); aerr != nil {
			logger.Error("Failed to discard partial feature store", "path", dbPath, "error", aerr)
		}
		return fmt.Errorf("failed to ingest: %w", err)
	}

	if err := w.Close(ctx); err != nil {
		return err
	}

	ws := w.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "Read %d nodes, %d ways, %d relations; stored %d nodes, %d ways (%d skipped) in %s\n",
		stats.Nodes, stats.Ways, stats.Relations, ws.Nodes, ws.Ways, ws.SkippedWays, dbPath)
	return nil
}
