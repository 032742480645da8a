package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/osmtile/internal/geojson"
	"github.com/MeKo-Tech/osmtile/internal/route"
	"github.com/MeKo-Tech/osmtile/internal/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var routeCmd = &cobra.Command{
	Use:   "route [lat,lon lat,lon ...]",
	Short: "Find a route between waypoints over the road network",
	Long: `Snap each waypoint to the nearest usable road node and find the shortest
path through them in order.

With waypoints as arguments the road network around them is loaded and one
route is printed. Without arguments the network inside --bbox is loaded once
and requests are read from standard input, one per line:

  <algorithm> <pedestrian> <riding> <driving> <public-transport> <n> <lat> <lon> ...

where the mode fields are 0 or 1 and n waypoints follow. Each answer is
"TIME <ms>ms", the node ids one per line and "END", or "NO PATH".`,
	RunE: runRoute,
}

func init() {
	rootCmd.AddCommand(routeCmd)

	routeCmd.Flags().String("algorithm", string(route.Dijkstra), "Search algorithm (dijkstra, astar, bellman-ford)")
	routeCmd.Flags().String("modes", "all", "Travel modes: pedestrian, riding, driving, public-transport or all")
	routeCmd.Flags().String("bbox", "", "Road network area: minLon,minLat,maxLon,maxLat (default: around the waypoints)")
	routeCmd.Flags().Float64("margin", 0.01, "Degrees added around the waypoints when --bbox is not set")
	routeCmd.Flags().String("format", "text", "Output format (text, geojson)")
	routeCmd.Flags().StringP("output", "o", "", "Output file for geojson (default: stdout)")

	bindFlags(routeCmd, "route", "algorithm", "modes", "bbox", "margin", "format", "output")
}

func runRoute(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	format := viper.GetString("route.format")
	if format != "text" && format != "geojson" {
		return fmt.Errorf("unknown format %q (expected text or geojson)", format)
	}

	var waypoints []types.LatLon
	for _, a := range args {
		wp, err := parseWaypoint(a)
		if err != nil {
			return err
		}
		waypoints = append(waypoints, wp)
	}
	if len(args) == 1 {
		return fmt.Errorf("need at least two waypoints")
	}

	bbox, err := routeArea(waypoints)
	if err != nil {
		return err
	}

	ctx := context.Background()
	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	g, err := route.Load(ctx, s, bbox, logger)
	if err != nil {
		return err
	}

	if len(waypoints) == 0 {
		return serveRouteRequests(g, cmd.InOrStdin(), cmd.OutOrStdout())
	}

	alg, err := route.ParseAlgorithm(viper.GetString("route.algorithm"))
	if err != nil {
		return err
	}
	modes, err := route.ParseModes(viper.GetString("route.modes"))
	if err != nil {
		return err
	}

	req := route.Request{Algorithm: alg, Modes: modes, Waypoints: waypoints}
	start := time.Now()
	path, err := g.Route(req)
	elapsed := time.Since(start)
	if err != nil && !errors.Is(err, route.ErrNoPath) {
		return err
	}
	if err != nil {
		logger.Warn("No route found", "error", err)
	} else {
		logger.Info("Route found", "algorithm", alg, "modes", modes.String(), "nodes", len(path.NodeIDs), "distance_m", path.Distance, "duration", elapsed)
	}

	if format == "geojson" {
		if err != nil {
			return err
		}
		data, merr := geojson.Marshal(geojson.RouteToGeoJSON(path, waypoints))
		if merr != nil {
			return merr
		}
		return writeOutput(cmd, viper.GetString("route.output"), data)
	}

	writeRouteAnswer(cmd.OutOrStdout(), path, err, elapsed)
	return nil
}

// routeArea picks the road network box: --bbox when given, otherwise the
// waypoints grown by --margin.
func routeArea(waypoints []types.LatLon) (types.BoundingBox, error) {
	if s := viper.GetString("route.bbox"); s != "" {
		b, err := parseBBox(s)
		if err != nil {
			return types.BoundingBox{}, fmt.Errorf("invalid bbox: %w", err)
		}
		return boundingBox(b), nil
	}
	if len(waypoints) == 0 {
		return types.BoundingBox{}, fmt.Errorf("--bbox is required when reading requests from stdin")
	}
	return route.BoundsAround(waypoints, viper.GetFloat64("route.margin")), nil
}

// serveRouteRequests answers one request per input line until EOF.
func serveRouteRequests(g *route.Graph, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		req, err := parseRouteRequest(line)
		if err != nil {
			logger.Error("Invalid route request", "line", line, "error", err)
			continue
		}

		start := time.Now()
		path, err := g.Route(req)
		if err != nil && !errors.Is(err, route.ErrNoPath) {
			logger.Error("Route request failed", "error", err)
			continue
		}
		writeRouteAnswer(out, path, err, time.Since(start))
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read route requests: %w", err)
	}
	return nil
}

func writeRouteAnswer(w io.Writer, path route.Path, err error, elapsed time.Duration) {
	if err != nil || len(path.NodeIDs) == 0 {
		fmt.Fprintln(w, "NO PATH")
		return
	}
	fmt.Fprintf(w, "TIME %dms\n", elapsed.Milliseconds())
	for _, id := range path.NodeIDs {
		fmt.Fprintln(w, id)
	}
	fmt.Fprintln(w, "END")
}

// parseRouteRequest parses "<algorithm> <ped> <ride> <drive> <transit> <n> <lat> <lon> ...".
func parseRouteRequest(line string) (route.Request, error) {
	fields := strings.Fields(line)
	if len(fields) < 6 {
		return route.Request{}, fmt.Errorf("expected at least 6 fields, got %d", len(fields))
	}

	alg, err := route.ParseAlgorithm(fields[0])
	if err != nil {
		return route.Request{}, err
	}

	var flags [4]bool
	for i := range flags {
		if flags[i], err = strconv.ParseBool(fields[1+i]); err != nil {
			return route.Request{}, fmt.Errorf("invalid mode flag %q", fields[1+i])
		}
	}
	modes := route.Modes{Pedestrian: flags[0], Riding: flags[1], Driving: flags[2], PublicTransport: flags[3]}

	n, err := strconv.Atoi(fields[5])
	if err != nil || n < 0 {
		return route.Request{}, fmt.Errorf("invalid waypoint count %q", fields[5])
	}
	if len(fields) != 6+2*n {
		return route.Request{}, fmt.Errorf("expected %d coordinates, got %d", 2*n, len(fields)-6)
	}

	req := route.Request{Algorithm: alg, Modes: modes}
	for i := 0; i < n; i++ {
		lat, err := strconv.ParseFloat(fields[6+2*i], 64)
		if err != nil {
			return route.Request{}, fmt.Errorf("invalid latitude %q", fields[6+2*i])
		}
		lon, err := strconv.ParseFloat(fields[7+2*i], 64)
		if err != nil {
			return route.Request{}, fmt.Errorf("invalid longitude %q", fields[7+2*i])
		}
		req.Waypoints = append(req.Waypoints, types.LatLon{Lat: lat, Lon: lon})
	}
	return req, nil
}

// parseWaypoint parses "lat,lon".
func parseWaypoint(s string) (types.LatLon, error) {
	latStr, lonStr, ok := strings.Cut(s, ",")
	if !ok {
		return types.LatLon{}, fmt.Errorf("invalid waypoint %q: expected lat,lon", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil || lat < -90 || lat > 90 {
		return types.LatLon{}, fmt.Errorf("invalid latitude in waypoint %q", s)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil || lon < -180 || lon > 180 {
		return types.LatLon{}, fmt.Errorf("invalid longitude in waypoint %q", s)
	}
	return types.LatLon{Lat: lat, Lon: lon}, nil
}
