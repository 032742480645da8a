// Package route finds paths over the highway network held in the feature
// store: nearest-node lookup for free coordinates and shortest paths between
// them, restricted to the highway types a travel mode may use.
package route

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/osmtile/internal/types"
	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// nearestCandidates is how many of the closest nodes are tried before a
// waypoint is given up on.
const nearestCandidates = 9

// WayQuerier is the part of the feature store routing needs.
type WayQuerier interface {
	QueryWays(ctx context.Context, bbox types.BoundingBox) ([]types.Feature, error)
}

// Modes selects the travel modes a route may use.
type Modes struct {
	Pedestrian      bool
	Riding          bool
	Driving         bool
	PublicTransport bool
}

// AllModes enables every travel mode.
func AllModes() Modes {
	return Modes{Pedestrian: true, Riding: true, Driving: true, PublicTransport: true}
}

var (
	pedestrianHighways = []string{"pedestrian", "footway", "steps", "path", "living_street"}
	ridingHighways     = []string{"cycleway", "path", "track"}
	drivingHighways    = []string{
		"motorway", "trunk", "primary", "secondary", "tertiary", "service",
		"motorway_link", "trunk_link", "primary_link", "secondary_link", "residential",
	}
	transitHighways = []string{"bus_stop", "motorway_junction", "traffic_signals", "crossing"}
)

// Allows reports whether a node on a highway of the given type may be used.
func (m Modes) Allows(highway string) bool {
	return (m.Pedestrian && slices.Contains(pedestrianHighways, highway)) ||
		(m.Riding && slices.Contains(ridingHighways, highway)) ||
		(m.Driving && slices.Contains(drivingHighways, highway)) ||
		(m.PublicTransport && slices.Contains(transitHighways, highway))
}

// String lists the enabled modes, comma separated.
func (m Modes) String() string {
	var out []string
	if m.Pedestrian {
		out = append(out, "pedestrian")
	}
	if m.Riding {
		out = append(out, "riding")
	}
	if m.Driving {
		out = append(out, "driving")
	}
	if m.PublicTransport {
		out = append(out, "public-transport")
	}
	return strings.Join(out, ",")
}

// ParseModes parses a comma separated list such as "pedestrian,riding", or "all".
func ParseModes(s string) (Modes, error) {
	var m Modes
	for _, part := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "all":
			m = AllModes()
		case "pedestrian", "walk", "foot":
			m.Pedestrian = true
		case "riding", "bike", "cycle":
			m.Riding = true
		case "driving", "car":
			m.Driving = true
		case "public-transport", "public_transport", "transit":
			m.PublicTransport = true
		case "":
		default:
			return Modes{}, fmt.Errorf("unknown travel mode %q", part)
		}
	}
	if m == (Modes{}) {
		return Modes{}, fmt.Errorf("no travel mode selected")
	}
	return m, nil
}

// Node is one routable OSM node.
type Node struct {
	ID      int64
	Coord   types.LatLon
	Highway string
}

type edge struct {
	to     int
	weight float64
}

// Graph is an undirected highway graph with a spatial index over its nodes.
// Edge weights are great-circle distances in meters.
type Graph struct {
	nodes []Node
	index map[int64]int
	edges [][]edge
	tree  *rtreego.Rtree
}

// nodeEntry indexes a graph node in the R-tree.
type nodeEntry struct {
	idx   int
	point rtreego.Point
}

// Bounds implements rtreego.Spatial.
func (e nodeEntry) Bounds() rtreego.Rect {
	rect, _ := rtreego.NewRect(e.point, []float64{1e-9, 1e-9})
	return rect
}

// Build creates a graph from the highway ways among features. Consecutive
// nodes of a way are joined by an edge in both directions. A node shared by
// several ways takes the highway type of the last one.
func Build(features []types.Feature) *Graph {
	g := &Graph{index: make(map[int64]int)}

	for _, f := range features {
		highway, ok := f.Tags["highway"]
		if !ok || len(f.NodeIDs) != len(f.Coordinates) {
			continue
		}

		prev := -1
		for i, id := range f.NodeIDs {
			idx, seen := g.index[id]
			if !seen {
				idx = len(g.nodes)
				g.index[id] = idx
				g.nodes = append(g.nodes, Node{ID: id, Coord: f.Coordinates[i]})
				g.edges = append(g.edges, nil)
			}
			g.nodes[idx].Highway = highway

			if prev >= 0 && prev != idx {
				w := distance(g.nodes[prev].Coord, g.nodes[idx].Coord)
				g.edges[prev] = append(g.edges[prev], edge{to: idx, weight: w})
				g.edges[idx] = append(g.edges[idx], edge{to: prev, weight: w})
			}
			prev = idx
		}
	}

	g.tree = rtreego.NewTree(2, 25, 50)
	for i, n := range g.nodes {
		g.tree.Insert(nodeEntry{idx: i, point: rtreego.Point{n.Coord.Lat, n.Coord.Lon}})
	}
	return g
}

// Load queries the highways inside bbox and builds their graph.
func Load(ctx context.Context, store WayQuerier, bbox types.BoundingBox, logger *slog.Logger) (*Graph, error) {
	if logger == nil {
		logger = slog.Default()
	}

	start := time.Now()
	features, err := store.QueryWays(ctx, bbox)
	if err != nil {
		return nil, fmt.Errorf("failed to load road network: %w", err)
	}

	g := Build(features)
	logger.Info("Road network loaded",
		"bbox", bbox.String(),
		"ways", len(features),
		"nodes", g.Len(),
		"edges", g.EdgeCount(),
		"duration", time.Since(start))
	return g, nil
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// EdgeCount returns the number of undirected edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, e := range g.edges {
		n += len(e)
	}
	return n / 2
}

// Node returns the node with the given OSM id.
func (g *Graph) Node(id int64) (Node, bool) {
	idx, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[idx], true
}

// Nearest returns the closest node to (lat, lon) that modes may use. Only
// the few nearest nodes are considered.
func (g *Graph) Nearest(lat, lon float64, modes Modes) (Node, bool) {
	if len(g.nodes) == 0 {
		return Node{}, false
	}
	for _, s := range g.tree.NearestNeighbors(nearestCandidates, rtreego.Point{lat, lon}) {
		e, ok := s.(nodeEntry)
		if !ok {
			continue
		}
		if n := g.nodes[e.idx]; modes.Allows(n.Highway) {
			return n, true
		}
	}
	return Node{}, false
}

// BoundsAround returns the box covering points, grown by margin degrees on
// every side.
func BoundsAround(points []types.LatLon, margin float64) types.BoundingBox {
	if len(points) == 0 {
		return types.BoundingBox{}
	}
	b := types.BoundingBox{
		MinLat: points[0].Lat, MaxLat: points[0].Lat,
		MinLon: points[0].Lon, MaxLon: points[0].Lon,
	}
	for _, p := range points[1:] {
		b.MinLat = min(b.MinLat, p.Lat)
		b.MaxLat = max(b.MaxLat, p.Lat)
		b.MinLon = min(b.MinLon, p.Lon)
		b.MaxLon = max(b.MaxLon, p.Lon)
	}
	b.MinLat -= margin
	b.MaxLat += margin
	b.MinLon -= margin
	b.MaxLon += margin
	return b
}

func distance(a, b types.LatLon) float64 {
	return geo.DistanceHaversine(orb.Point{a.Lon, a.Lat}, orb.Point{b.Lon, b.Lat})
}
