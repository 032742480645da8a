package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/MeKo-Tech/osmtile/internal/geojson"
	"github.com/MeKo-Tech/osmtile/internal/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var featuresCmd = &cobra.Command{
	Use:   "features [z/x/y]",
	Short: "Dump the features of a tile as GeoJSON",
	Long: `Run the tile feature query and write the assembled features as a GeoJSON
FeatureCollection, colored with the configured style.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFeatures,
}

func init() {
	rootCmd.AddCommand(featuresCmd)
	addTileFlags(featuresCmd)
	featuresCmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")
	bindFlags(featuresCmd, "features", "output")
}

func runFeatures(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	coord, err := tileArg(cmd, args)
	if err != nil {
		return err
	}

	ctx := context.Background()
	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	styles, err := loadStyles()
	if err != nil {
		return err
	}

	features, err := s.QueryWays(ctx, types.TileBBox(coord))
	if err != nil {
		return fmt.Errorf("failed to query features for %s: %w", coord, err)
	}
	logger.Info("Features queried", "tile", coord.String(), "counts", types.FeatureCounts(features))

	data, err := geojson.Marshal(geojson.ToGeoJSON(features, styles))
	if err != nil {
		return err
	}
	return writeOutput(cmd, viper.GetString("features.output"), data)
}

func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" {
		_, err := cmd.OutOrStdout().Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	logger.Info("Wrote GeoJSON", "path", path)
	return nil
}
