package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/MeKo-Tech/osmtile/internal/tile"
	"github.com/MeKo-Tech/osmtile/internal/types"
	"github.com/spf13/cobra"
)

var renderCmd = &cobra.Command{
	Use:   "render [z/x/y]",
	Short: "Render a single tile",
	Long: `Render one tile into the cache and print its latency report.

The tile is taken from the positional argument, from --zoom/--x/--y, or, when
neither is given, from a "zoom x y" line on standard input.`,
	Args:   cobra.MaximumNArgs(1),
	PreRun: bindRenderFlags,
	RunE:   runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)
	addTileFlags(renderCmd)
	addRenderFlags(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	coord, err := renderTarget(cmd, args)
	if err != nil {
		return err
	}

	ctx := context.Background()
	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	gen, err := newGenerator(s, nil)
	if err != nil {
		return err
	}

	report, err := gen.Render(ctx, coord)
	if err != nil {
		return fmt.Errorf("failed to render tile: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), report.String())
	return nil
}

func renderTarget(cmd *cobra.Command, args []string) (types.TileCoordinate, error) {
	f := cmd.Flags()
	if len(args) > 0 || f.Changed("zoom") || f.Changed("x") || f.Changed("y") {
		return tileArg(cmd, args)
	}
	logger.Debug("Reading tile from stdin")
	return readTileLine(cmd.InOrStdin())
}

// readTileLine parses the first line of r as "zoom x y".
func readTileLine(r io.Reader) (types.TileCoordinate, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return types.TileCoordinate{}, fmt.Errorf("failed to read tile from stdin: %w", err)
		}
		return types.TileCoordinate{}, errors.New("expected a \"zoom x y\" line on stdin")
	}

	c, err := tile.ParseCoords(sc.Text())
	if err != nil {
		return types.TileCoordinate{}, err
	}
	return c.TileCoordinate(), nil
}
