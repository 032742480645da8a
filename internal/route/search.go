package route

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/MeKo-Tech/osmtile/internal/types"
)

// ErrNoPath reports that no route connects the requested waypoints.
var ErrNoPath = errors.New("no path")

// Algorithm names a shortest-path search.
type Algorithm string

// Supported algorithms.
const (
	Dijkstra    Algorithm = "dijkstra"
	AStar       Algorithm = "astar"
	BellmanFord Algorithm = "bellman-ford"
)

// ParseAlgorithm accepts "dijkstra", "astar" (or "A*") and "bellman-ford",
// ignoring case.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dijkstra":
		return Dijkstra, nil
	case "astar", "a*", "a-star":
		return AStar, nil
	case "bellman-ford", "bellmanford", "bellman_ford":
		return BellmanFord, nil
	default:
		return "", fmt.Errorf("unknown algorithm %q", s)
	}
}

// Request is one routing query: waypoints visited in order.
type Request struct {
	Algorithm Algorithm
	Modes     Modes
	Waypoints []types.LatLon
}

// Path is a found route.
type Path struct {
	NodeIDs     []int64
	Coordinates []types.LatLon
	// Distance is the route length in meters.
	Distance float64
}

// Route snaps every waypoint to its nearest usable node and joins the
// shortest paths between consecutive ones.
func (g *Graph) Route(req Request) (Path, error) {
	if len(req.Waypoints) < 2 {
		return Path{}, fmt.Errorf("need at least two waypoints, got %d", len(req.Waypoints))
	}

	stops := make([]int, len(req.Waypoints))
	for i, wp := range req.Waypoints {
		n, ok := g.Nearest(wp.Lat, wp.Lon, req.Modes)
		if !ok {
			return Path{}, fmt.Errorf("%w: no %s node near %.6f,%.6f", ErrNoPath, req.Modes, wp.Lat, wp.Lon)
		}
		stops[i] = g.index[n.ID]
	}

	var path Path
	for i := 0; i < len(stops)-1; i++ {
		leg, dist, err := g.search(req.Algorithm, stops[i], stops[i+1], req.Modes)
		if err != nil {
			return Path{}, err
		}
		if leg == nil {
			return Path{}, fmt.Errorf("%w: between waypoints %d and %d", ErrNoPath, i, i+1)
		}
		if i > 0 {
			leg = leg[1:]
		}
		for _, idx := range leg {
			path.NodeIDs = append(path.NodeIDs, g.nodes[idx].ID)
			path.Coordinates = append(path.Coordinates, g.nodes[idx].Coord)
		}
		path.Distance += dist
	}
	return path, nil
}

// ShortestPath returns the node ids of the shortest path between two nodes
// and its length in meters.
func (g *Graph) ShortestPath(alg Algorithm, from, to int64, modes Modes) ([]int64, float64, error) {
	src, ok := g.index[from]
	if !ok {
		return nil, 0, fmt.Errorf("%w: unknown node %d", ErrNoPath, from)
	}
	dst, ok := g.index[to]
	if !ok {
		return nil, 0, fmt.Errorf("%w: unknown node %d", ErrNoPath, to)
	}

	leg, dist, err := g.search(alg, src, dst, modes)
	if err != nil {
		return nil, 0, err
	}
	if leg == nil {
		return nil, 0, fmt.Errorf("%w: from %d to %d", ErrNoPath, from, to)
	}
	ids := make([]int64, len(leg))
	for i, idx := range leg {
		ids[i] = g.nodes[idx].ID
	}
	return ids, dist, nil
}

// search returns the node indexes from src to dst, or nil when dst cannot
// be reached. A neighbor is only entered when modes allow its highway.
func (g *Graph) search(alg Algorithm, src, dst int, modes Modes) ([]int, float64, error) {
	switch alg {
	case Dijkstra, "":
		return g.bestFirst(src, dst, modes, nil)
	case AStar:
		target := g.nodes[dst].Coord
		return g.bestFirst(src, dst, modes, func(i int) float64 {
			return distance(g.nodes[i].Coord, target)
		})
	case BellmanFord:
		return g.bellmanFord(src, dst, modes)
	default:
		return nil, 0, fmt.Errorf("unknown algorithm %q", alg)
	}
}

// bestFirst runs Dijkstra, or A* when h is set. Edge weights are
// great-circle distances, so the straight-line heuristic never overestimates.
func (g *Graph) bestFirst(src, dst int, modes Modes, h func(int) float64) ([]int, float64, error) {
	dist := make([]float64, len(g.nodes))
	prev := make([]int, len(g.nodes))
	for i := range dist {
		dist[i] = math.Inf(1)
		prev[i] = -1
	}
	dist[src] = 0

	estimate := func(i int) float64 {
		if h == nil {
			return dist[i]
		}
		return dist[i] + h(i)
	}

	pq := &queue{{node: src, priority: estimate(src)}}
	for pq.Len() > 0 {
		cur := heap.Pop(pq).(item)
		if cur.node == dst {
			break
		}
		if cur.priority > estimate(cur.node) {
			continue
		}
		for _, e := range g.edges[cur.node] {
			if !modes.Allows(g.nodes[e.to].Highway) {
				continue
			}
			if d := dist[cur.node] + e.weight; d < dist[e.to] {
				dist[e.to] = d
				prev[e.to] = cur.node
				heap.Push(pq, item{node: e.to, priority: estimate(e.to)})
			}
		}
	}

	return walkBack(prev, src, dst), dist[dst], nil
}

func (g *Graph) bellmanFord(src, dst int, modes Modes) ([]int, float64, error) {
	dist := make([]float64, len(g.nodes))
	prev := make([]int, len(g.nodes))
	for i := range dist {
		dist[i] = math.Inf(1)
		prev[i] = -1
	}
	dist[src] = 0

	for round := 1; round < len(g.nodes); round++ {
		changed := false
		for u := range g.nodes {
			if math.IsInf(dist[u], 1) {
				continue
			}
			for _, e := range g.edges[u] {
				if !modes.Allows(g.nodes[e.to].Highway) {
					continue
				}
				if d := dist[u] + e.weight; d < dist[e.to] {
					dist[e.to] = d
					prev[e.to] = u
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}

	return walkBack(prev, src, dst), dist[dst], nil
}

// walkBack follows prev from dst to src. It returns nil when dst was never
// reached.
func walkBack(prev []int, src, dst int) []int {
	if src == dst {
		return []int{src}
	}
	if prev[dst] < 0 {
		return nil
	}
	var path []int
	for at := dst; at != src; at = prev[at] {
		path = append(path, at)
	}
	path = append(path, src)
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

type item struct {
	node     int
	priority float64
}

// queue is a min-heap of items by priority.
type queue []item

func (q queue) Len() int           { return len(q) }
func (q queue) Less(i, j int) bool { return q[i].priority < q[j].priority }
func (q queue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x any)        { *q = append(*q, x.(item)) }
func (q *queue) Pop() any {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}
