package worker

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MeKo-Tech/osmtile/internal/cache"
	"github.com/MeKo-Tech/osmtile/internal/pipeline"
	"github.com/MeKo-Tech/osmtile/internal/style"
	"github.com/MeKo-Tech/osmtile/internal/tile"
	"github.com/MeKo-Tech/osmtile/internal/types"
)

// mockRenderer simulates tile rendering for testing
type mockRenderer struct {
	delay     time.Duration
	failTiles map[string]bool
	cached    map[string]bool
	callCount atomic.Int32
}

func (m *mockRenderer) Render(ctx context.Context, coord types.TileCoordinate) (pipeline.Report, error) {
	m.callCount.Add(1)

	select {
	case <-ctx.Done():
		return pipeline.Report{}, ctx.Err()
	case <-time.After(m.delay):
	}

	if m.failTiles[coord.String()] {
		return pipeline.Report{}, errors.New("simulated failure")
	}

	return pipeline.Report{
		Tile:   coord,
		Path:   "/tmp/" + coord.String() + ".png",
		Cached: m.cached[coord.String()],
	}, nil
}

func row(n int) []tile.Coords {
	tiles := make([]tile.Coords, n)
	for i := range tiles {
		tiles[i] = tile.NewCoords(13, 4297+uint32(i), 2754)
	}
	return tiles
}

func TestPool_BasicExecution(t *testing.T) {
	r := &mockRenderer{delay: 10 * time.Millisecond}
	pool := New(Config{Workers: 2, Renderer: r})

	tiles := row(3)
	results := pool.Run(context.Background(), tiles)

	if len(results) != len(tiles) {
		t.Fatalf("Expected %d results, got %d", len(tiles), len(results))
	}
	for i, res := range results {
		if res.Err != nil {
			t.Errorf("Unexpected error for %s: %v", res.Coords, res.Err)
		}
		if res.Coords != tiles[i] {
			t.Errorf("result %d is for %s, want %s", i, res.Coords, tiles[i])
		}
		if res.Report.Path == "" {
			t.Errorf("Expected path for %s, got empty", res.Coords)
		}
	}

	if r.callCount.Load() != int32(len(tiles)) {
		t.Errorf("Expected %d render calls, got %d", len(tiles), r.callCount.Load())
	}
}

func TestPool_Parallelism(t *testing.T) {
	r := &mockRenderer{delay: 50 * time.Millisecond}
	pool := New(Config{Workers: 4, Renderer: r})

	start := time.Now()
	results := pool.Run(context.Background(), row(8))
	elapsed := time.Since(start)

	// Two rounds of 50ms with four workers; allow for scheduling overhead.
	if elapsed > 250*time.Millisecond {
		t.Errorf("Expected parallel execution in ~100ms, took %v", elapsed)
	}
	if len(results) != 8 {
		t.Errorf("Expected 8 results, got %d", len(results))
	}
}

func TestPool_ErrorHandling(t *testing.T) {
	failTile := "z13_x4298_y2754"
	r := &mockRenderer{
		delay:     10 * time.Millisecond,
		failTiles: map[string]bool{failTile: true},
	}
	pool := New(Config{Workers: 2, Renderer: r})

	results := pool.Run(context.Background(), row(3))

	var successCount, failCount int
	for _, res := range results {
		if res.Err != nil {
			failCount++
			if res.Coords.String() != failTile {
				t.Errorf("Unexpected failure for %s", res.Coords)
			}
		} else {
			successCount++
		}
	}

	if successCount != 2 {
		t.Errorf("Expected 2 successes, got %d", successCount)
	}
	if failCount != 1 {
		t.Errorf("Expected 1 failure, got %d", failCount)
	}
}

func TestPool_Cancellation(t *testing.T) {
	r := &mockRenderer{delay: 100 * time.Millisecond}
	pool := New(Config{Workers: 2, Renderer: r})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	results := pool.Run(ctx, row(10))
	elapsed := time.Since(start)

	if elapsed > 300*time.Millisecond {
		t.Errorf("Expected early cancellation, took %v", elapsed)
	}
	if len(results) != 10 {
		t.Fatalf("Expected a result for every tile, got %d", len(results))
	}

	var cancelled int
	for _, res := range results {
		if errors.Is(res.Err, context.Canceled) {
			cancelled++
		}
	}
	if cancelled == 0 {
		t.Error("Expected cancelled results")
	}
}

func TestPool_CancelledBeforeStart(t *testing.T) {
	r := &mockRenderer{}
	pool := New(Config{Workers: 2, Renderer: r})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := pool.Run(ctx, row(4))
	for _, res := range results {
		if !errors.Is(res.Err, context.Canceled) {
			t.Errorf("Expected context.Canceled for %s, got %v", res.Coords, res.Err)
		}
	}
	if r.callCount.Load() != 0 {
		t.Errorf("Expected no render calls, got %d", r.callCount.Load())
	}
}

func TestPool_ProgressCallback(t *testing.T) {
	r := &mockRenderer{
		delay:  10 * time.Millisecond,
		cached: map[string]bool{"z13_x4297_y2754": true},
	}

	var calls atomic.Int32
	var last Counts
	pool := New(Config{
		Workers:  1,
		Renderer: r,
		OnProgress: func(c Counts) {
			calls.Add(1)
			last = c
		},
	})

	pool.Run(context.Background(), row(3))

	if calls.Load() != 3 {
		t.Errorf("Expected 3 progress callbacks, got %d", calls.Load())
	}
	want := Counts{Total: 3, Completed: 3, Cached: 1}
	if last != want {
		t.Errorf("final counts = %+v, want %+v", last, want)
	}
}

func TestPool_EmptyTasks(t *testing.T) {
	r := &mockRenderer{}
	pool := New(Config{Workers: 2, Renderer: r})

	if results := pool.Run(context.Background(), nil); len(results) != 0 {
		t.Errorf("Expected 0 results for no tiles, got %d", len(results))
	}
	if r.callCount.Load() != 0 {
		t.Errorf("Expected 0 render calls, got %d", r.callCount.Load())
	}
}

type emptyStore struct{}

func (emptyStore) QueryWays(context.Context, types.BoundingBox) ([]types.Feature, error) {
	return nil, nil
}

func TestPool_WithGenerator(t *testing.T) {
	styles, err := style.Parse(strings.NewReader("building:#ff0000\n"))
	if err != nil {
		t.Fatal(err)
	}
	opts := pipeline.DefaultOptions()
	opts.Width, opts.Height = 64, 48
	opts.LatestPath = ""
	dir := cache.New(filepath.Join(t.TempDir(), "cache"), nil)

	gen, err := pipeline.NewGenerator(emptyStore{}, styles, dir, opts, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	pool := New(Config{Workers: 3, Renderer: gen})
	tiles := row(5)
	for _, res := range pool.Run(context.Background(), tiles) {
		if res.Err != nil {
			t.Fatalf("render %s: %v", res.Coords, res.Err)
		}
	}

	entries, err := dir.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != len(tiles) {
		t.Errorf("expected %d cached tiles, got %d", len(tiles), len(entries))
	}
}
