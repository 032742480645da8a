package cmd

import (
	"context"
	"fmt"

	"github.com/MeKo-Tech/osmtile/internal/cache"
	"github.com/MeKo-Tech/osmtile/internal/mbtiles"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Pack the tile cache into an MBTiles file",
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringP("output", "o", "", "Output MBTiles file (required)")
	exportCmd.Flags().String("name", "osmtile", "Tileset name")
	exportCmd.Flags().String("description", "OpenStreetMap raster tiles", "Tileset description")
	exportCmd.Flags().String("attribution", "© OpenStreetMap contributors", "Attribution text")

	bindFlags(exportCmd, "export", "output", "name", "description", "attribution")
}

func runExport(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	output := viper.GetString("export.output")
	if output == "" {
		return fmt.Errorf("--output is required")
	}

	dir := cache.New(viper.GetString("cache_dir"), logger)
	meta := mbtiles.Metadata{
		Name:        viper.GetString("export.name"),
		Description: viper.GetString("export.description"),
		Attribution: viper.GetString("export.attribution"),
		Format:      "png",
		Type:        "baselayer",
		Version:     "1.0",
	}

	n, err := mbtiles.ExportCache(context.Background(), dir, output, meta, logger)
	if err != nil {
		return fmt.Errorf("failed to export %s: %w", dir.Root(), err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d tiles to %s\n", n, output)
	return nil
}
