package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/MeKo-Christian/go-overpass"
	"github.com/MeKo-Tech/osmtile/internal/store"
	"github.com/MeKo-Tech/osmtile/internal/types"
)

// DefaultOverpassEndpoint is the public Overpass API instance.
const DefaultOverpassEndpoint = "https://overpass-api.de/api/interpreter"

// Overpass downloads the ways and nodes of a bounding box from an Overpass API.
type Overpass struct {
	client overpass.Client
	logger *slog.Logger
}

// NewOverpass creates an Overpass fetcher. An empty endpoint selects the public instance.
func NewOverpass(endpoint string, logger *slog.Logger) *Overpass {
	if endpoint == "" {
		endpoint = DefaultOverpassEndpoint
	}
	if logger == nil {
		logger = slog.Default()
	}

	// One request at a time, per API etiquette.
	client := overpass.NewWithSettings(endpoint, 1, http.DefaultClient)

	return &Overpass{client: client, logger: logger}
}

// Query builds the Overpass QL for bbox. Ways come back with complete
// geometry so their boxes are not clipped at the edge of the request.
func Query(bbox types.BoundingBox) string {
	b := fmt.Sprintf("%.7f,%.7f,%.7f,%.7f", bbox.MinLat, bbox.MinLon, bbox.MaxLat, bbox.MaxLon)
	return fmt.Sprintf(`
[out:json][timeout:90];
(
  way(%s);
  node(%s);
);
out geom;
`, b, b)
}

// Fetch downloads bbox and feeds the result to sink.
func (o *Overpass) Fetch(ctx context.Context, bbox types.BoundingBox, sink Sink) (Stats, error) {
	o.logger.Info("Fetching from Overpass", "bbox", bbox.String())

	// The client has no context support; ctx only bounds the writes.
	result, err := o.client.Query(Query(bbox))
	if err != nil {
		return Stats{}, fmt.Errorf("overpass query failed: %w", err)
	}

	stats, err := WriteResult(ctx, &result, sink)
	if err != nil {
		return stats, err
	}

	o.logger.Info("Overpass data stored", "nodes", stats.Nodes, "ways", stats.Ways)
	return stats, nil
}

// WriteResult stores an Overpass result. Node positions come from the
// standalone nodes and from way geometry; way nodes without an id in the
// response get synthetic negative ids, shared by equal positions.
func WriteResult(ctx context.Context, result *overpass.Result, sink Sink) (Stats, error) {
	var stats Stats
	if result == nil {
		return stats, nil
	}

	nodes := make(map[int64]store.Node)
	for id, n := range result.Nodes {
		if n == nil {
			continue
		}
		nodes[id] = store.Node{ID: id, Lat: n.Lat, Lon: n.Lon, Tags: n.Tags}
	}

	synthetic := make(map[types.LatLon]int64)
	nextID := int64(-1)

	ways := make([]store.Way, 0, len(result.Ways))
	for id, w := range result.Ways {
		if w == nil || len(w.Geometry) == 0 {
			continue
		}
		withIDs := len(w.Nodes) == len(w.Geometry)

		ids := make([]int64, len(w.Geometry))
		for i, p := range w.Geometry {
			if withIDs && w.Nodes[i] != nil {
				nid := w.Nodes[i].ID
				n := nodes[nid]
				n.ID, n.Lat, n.Lon = nid, p.Lat, p.Lon
				nodes[nid] = n
				ids[i] = nid
				continue
			}

			key := types.LatLon{Lat: p.Lat, Lon: p.Lon}
			nid, ok := synthetic[key]
			if !ok {
				nid = nextID
				nextID--
				synthetic[key] = nid
				nodes[nid] = store.Node{ID: nid, Lat: p.Lat, Lon: p.Lon}
			}
			ids[i] = nid
		}
		ways = append(ways, store.Way{ID: id, NodeIDs: ids, Tags: w.Tags})
	}
	stats.Relations = len(result.Relations)

	nodeIDs := make([]int64, 0, len(nodes))
	for id := range nodes {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Slice(nodeIDs, func(i, j int) bool { return nodeIDs[i] < nodeIDs[j] })
	for _, id := range nodeIDs {
		if err := sink.AddNode(ctx, nodes[id]); err != nil {
			return stats, fmt.Errorf("failed to store node %d: %w", id, err)
		}
		stats.Nodes++
	}

	sort.Slice(ways, func(i, j int) bool { return ways[i].ID < ways[j].ID })
	for _, w := range ways {
		if err := sink.AddWay(ctx, w); err != nil {
			return stats, fmt.Errorf("failed to store way %d: %w", w.ID, err)
		}
		stats.Ways++
	}

	return stats, nil
}
