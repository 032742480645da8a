package route

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/osmtile/internal/store"
	"github.com/MeKo-Tech/osmtile/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const d = 0.001

// Node 1 and 3 are joined by a residential street through 2 and by a longer
// footway through 4; 7-8 is an unconnected street further east.
var coords = map[int64]types.LatLon{
	1: {Lat: 52.0, Lon: 9.0},
	2: {Lat: 52.0, Lon: 9.0 + d},
	3: {Lat: 52.0, Lon: 9.0 + 2*d},
	4: {Lat: 52.0 + d, Lon: 9.0 + d},
	7: {Lat: 52.0, Lon: 9.01},
	8: {Lat: 52.0, Lon: 9.01 + d},
}

func way(id int64, highway string, nodes ...int64) types.Feature {
	f := types.Feature{ID: id, NodeIDs: nodes, Tags: map[string]string{}}
	if highway != "" {
		f.Tags["highway"] = highway
	}
	for _, n := range nodes {
		f.Coordinates = append(f.Coordinates, coords[n])
	}
	return f
}

func testGraph() *Graph {
	return Build([]types.Feature{
		way(10, "residential", 1, 2, 3),
		way(11, "footway", 1, 4, 3),
		way(12, "residential", 7, 8),
		way(13, "", 2, 7),
	})
}

var algorithms = []Algorithm{Dijkstra, AStar, BellmanFord}

func TestModes_Allows(t *testing.T) {
	tests := []struct {
		modes   Modes
		highway string
		want    bool
	}{
		{Modes{Pedestrian: true}, "footway", true},
		{Modes{Pedestrian: true}, "residential", false},
		{Modes{Riding: true}, "path", true},
		{Modes{Riding: true}, "cycleway", true},
		{Modes{Driving: true}, "primary_link", true},
		{Modes{Driving: true}, "steps", false},
		{Modes{PublicTransport: true}, "bus_stop", true},
		{AllModes(), "living_street", true},
		{AllModes(), "construction", false},
		{Modes{}, "footway", false},
	}

	for _, tt := range tests {
		t.Run(tt.modes.String()+"/"+tt.highway, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.modes.Allows(tt.highway))
		})
	}
}

func TestParseModes(t *testing.T) {
	m, err := ParseModes("pedestrian, riding")
	require.NoError(t, err)
	assert.Equal(t, Modes{Pedestrian: true, Riding: true}, m)

	m, err = ParseModes("all")
	require.NoError(t, err)
	assert.Equal(t, AllModes(), m)
	assert.Equal(t, "pedestrian,riding,driving,public-transport", m.String())

	_, err = ParseModes("hovercraft")
	assert.Error(t, err)
	_, err = ParseModes("")
	assert.Error(t, err)
}

func TestParseAlgorithm(t *testing.T) {
	for in, want := range map[string]Algorithm{
		"Dijkstra":     Dijkstra,
		"A*":           AStar,
		"astar":        AStar,
		"Bellman-Ford": BellmanFord,
	} {
		got, err := ParseAlgorithm(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseAlgorithm("Floyd")
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	g := testGraph()

	assert.Equal(t, 6, g.Len())
	assert.Equal(t, 5, g.EdgeCount())

	n, ok := g.Node(1)
	require.True(t, ok)
	assert.Equal(t, "footway", n.Highway, "a shared node takes the last way's highway")

	n, ok = g.Node(2)
	require.True(t, ok)
	assert.Equal(t, "residential", n.Highway)

	_, ok = g.Node(99)
	assert.False(t, ok)
}

func TestBuild_SkipsWaysWithoutNodeIDs(t *testing.T) {
	f := way(10, "residential", 1, 2)
	f.NodeIDs = nil
	g := Build([]types.Feature{f})
	assert.Equal(t, 0, g.Len())
}

func TestNearest(t *testing.T) {
	g := testGraph()
	near4 := types.LatLon{Lat: 52.0 + 0.6*d, Lon: 9.0 + d}

	n, ok := g.Nearest(near4.Lat, near4.Lon, Modes{Pedestrian: true})
	require.True(t, ok)
	assert.Equal(t, int64(4), n.ID)

	n, ok = g.Nearest(near4.Lat, near4.Lon, Modes{Driving: true})
	require.True(t, ok)
	assert.Equal(t, int64(2), n.ID)

	_, ok = g.Nearest(near4.Lat, near4.Lon, Modes{PublicTransport: true})
	assert.False(t, ok)

	_, ok = Build(nil).Nearest(52, 9, AllModes())
	assert.False(t, ok)
}

func TestRoute(t *testing.T) {
	g := testGraph()
	direct := distance(coords[1], coords[2]) + distance(coords[2], coords[3])
	detour := distance(coords[1], coords[4]) + distance(coords[4], coords[3])

	tests := []struct {
		name      string
		modes     Modes
		waypoints []int64
		want      []int64
		dist      float64
	}{
		{"street is shorter", AllModes(), []int64{1, 3}, []int64{1, 2, 3}, direct},
		{"pedestrians take the footway", Modes{Pedestrian: true}, []int64{1, 3}, []int64{1, 4, 3}, detour},
		{"there and back", Modes{Pedestrian: true}, []int64{1, 3, 1}, []int64{1, 4, 3, 4, 1}, 2 * detour},
		{"same node", AllModes(), []int64{3, 3}, []int64{3}, 0},
	}

	for _, alg := range algorithms {
		for _, tt := range tests {
			t.Run(fmt.Sprintf("%s/%s", alg, tt.name), func(t *testing.T) {
				req := Request{Algorithm: alg, Modes: tt.modes}
				for _, id := range tt.waypoints {
					req.Waypoints = append(req.Waypoints, coords[id])
				}

				path, err := g.Route(req)
				require.NoError(t, err)
				assert.Equal(t, tt.want, path.NodeIDs)
				assert.Len(t, path.Coordinates, len(tt.want))
				assert.InDelta(t, tt.dist, path.Distance, 1e-6)
			})
		}
	}
}

func TestRoute_NoPath(t *testing.T) {
	g := testGraph()

	for _, alg := range algorithms {
		t.Run(string(alg), func(t *testing.T) {
			_, err := g.Route(Request{
				Algorithm: alg,
				Modes:     AllModes(),
				Waypoints: []types.LatLon{coords[1], coords[8]},
			})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNoPath))
		})
	}

	_, err := Build(nil).Route(Request{Modes: AllModes(), Waypoints: []types.LatLon{coords[1], coords[3]}})
	assert.True(t, errors.Is(err, ErrNoPath))

	_, err = g.Route(Request{Modes: AllModes(), Waypoints: []types.LatLon{coords[1]}})
	assert.Error(t, err)
}

func TestShortestPath_AlgorithmsAgree(t *testing.T) {
	// A 6x6 street grid with a few blocks missing and uneven spacing.
	const n = 6
	id := func(r, c int) int64 { return int64(r*n + c + 1) }
	pos := func(r, c int) types.LatLon {
		return types.LatLon{Lat: 52 + float64(r)*d*(1+0.1*float64(c%3)), Lon: 9 + float64(c)*d*(1+0.2*float64(r%2))}
	}

	var features []types.Feature
	add := func(a, b [2]int) {
		features = append(features, types.Feature{
			NodeIDs:     []int64{id(a[0], a[1]), id(b[0], b[1])},
			Coordinates: []types.LatLon{pos(a[0], a[1]), pos(b[0], b[1])},
			Tags:        map[string]string{"highway": "residential"},
		})
	}
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			if c+1 < n && (r+c)%4 != 1 {
				add([2]int{r, c}, [2]int{r, c + 1})
			}
			if r+1 < n && (r*c)%5 != 3 {
				add([2]int{r, c}, [2]int{r + 1, c})
			}
		}
	}
	g := Build(features)

	for _, pair := range [][2]int64{{1, 36}, {6, 31}, {8, 29}, {13, 24}} {
		_, want, err := g.ShortestPath(Dijkstra, pair[0], pair[1], AllModes())
		require.NoError(t, err)

		for _, alg := range []Algorithm{AStar, BellmanFord} {
			ids, got, err := g.ShortestPath(alg, pair[0], pair[1], AllModes())
			require.NoError(t, err, "%s %v", alg, pair)
			assert.InDelta(t, want, got, 1e-6, "%s %v", alg, pair)
			assert.Equal(t, pair[0], ids[0])
			assert.Equal(t, pair[1], ids[len(ids)-1])
		}
	}

	_, _, err := g.ShortestPath(Dijkstra, 1, 999, AllModes())
	assert.True(t, errors.Is(err, ErrNoPath))
}

func TestBoundsAround(t *testing.T) {
	b := BoundsAround([]types.LatLon{{Lat: 52.1, Lon: 9.5}, {Lat: 52.0, Lon: 9.7}}, 0.01)
	assert.InDelta(t, 51.99, b.MinLat, 1e-9)
	assert.InDelta(t, 52.11, b.MaxLat, 1e-9)
	assert.InDelta(t, 9.49, b.MinLon, 1e-9)
	assert.InDelta(t, 9.71, b.MaxLon, 1e-9)

	assert.Equal(t, types.BoundingBox{}, BoundsAround(nil, 1))
}

func TestLoad_FromSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "osm.db")

	w, err := store.Create(ctx, path, nil)
	require.NoError(t, err)
	for _, id := range []int64{1, 2, 3, 4, 7, 8} {
		c := coords[id]
		require.NoError(t, w.AddNode(ctx, store.Node{ID: id, Lat: c.Lat, Lon: c.Lon}))
	}
	require.NoError(t, w.AddWay(ctx, store.Way{ID: 10, NodeIDs: []int64{1, 2, 3}, Tags: map[string]string{"highway": "residential"}}))
	require.NoError(t, w.AddWay(ctx, store.Way{ID: 11, NodeIDs: []int64{1, 4, 3}, Tags: map[string]string{"highway": "footway"}}))
	require.NoError(t, w.AddWay(ctx, store.Way{ID: 20, NodeIDs: []int64{7, 8, 2}, Tags: map[string]string{"building": "yes"}}))
	require.NoError(t, w.Close(ctx))

	s, err := store.OpenSQLite(ctx, path, nil)
	require.NoError(t, err)
	defer s.Close()

	bbox := BoundsAround([]types.LatLon{coords[1], coords[3]}, 0.01)
	g, err := Load(ctx, s, bbox, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, g.Len())

	p, err := g.Route(Request{Algorithm: AStar, Modes: Modes{Pedestrian: true}, Waypoints: []types.LatLon{coords[1], coords[3]}})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 4, 3}, p.NodeIDs)
}

type failingStore struct{}

func (failingStore) QueryWays(context.Context, types.BoundingBox) ([]types.Feature, error) {
	return nil, store.ErrQuery
}

func TestLoad_StoreError(t *testing.T) {
	_, err := Load(context.Background(), failingStore{}, types.BoundingBox{}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrQuery))
}
