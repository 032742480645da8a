package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/MeKo-Tech/osmtile/internal/geojson"
	"github.com/MeKo-Tech/osmtile/internal/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var pointsCmd = &cobra.Command{
	Use:   "points [z/x/y]",
	Short: "Sample node density around a tile",
	Long: `Run the point-density query over the 3x3 neighborhood of a tile. Nodes are
grouped on a zoom-dependent grid and the result is thinned when it is large.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPoints,
}

func init() {
	rootCmd.AddCommand(pointsCmd)
	addTileFlags(pointsCmd)
	pointsCmd.Flags().String("format", "text", "Output format (text, geojson)")
	pointsCmd.Flags().StringP("output", "o", "", "Output file for geojson (default: stdout)")
	bindFlags(pointsCmd, "points", "format", "output")
}

func runPoints(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	coord, err := tileArg(cmd, args)
	if err != nil {
		return err
	}
	format := viper.GetString("points.format")
	if format != "text" && format != "geojson" {
		return fmt.Errorf("invalid format %q: must be 'text' or 'geojson'", format)
	}

	ctx := context.Background()
	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	samples, err := s.QueryNodes(ctx, coord.Zoom, types.SurroundingTiles(coord.X, coord.Y))
	if err != nil {
		return fmt.Errorf("failed to query nodes around %s: %w", coord, err)
	}
	logger.Info("Node samples queried", "tile", coord.String(), "samples", len(samples))

	if format == "geojson" {
		data, err := geojson.Marshal(geojson.SamplesToGeoJSON(samples))
		if err != nil {
			return err
		}
		return writeOutput(cmd, viper.GetString("points.output"), data)
	}

	out := cmd.OutOrStdout()
	for _, sm := range samples {
		fmt.Fprintf(out, "%.6f\t%.6f\t%s\n", sm.Lat, sm.Lon, formatTags(sm.Tags))
	}
	return nil
}

// formatTags renders tags as sorted k=v pairs.
func formatTags(tags map[string]string) string {
	pairs := make([]string, 0, len(tags))
	for k, v := range tags {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}
