// Package worker renders batches of tiles in parallel.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/osmtile/internal/pipeline"
	"github.com/MeKo-Tech/osmtile/internal/tile"
	"github.com/MeKo-Tech/osmtile/internal/types"
	"golang.org/x/sync/errgroup"
)

// Renderer renders a single tile. *pipeline.Generator implements it.
type Renderer interface {
	Render(ctx context.Context, coord types.TileCoordinate) (pipeline.Report, error)
}

// Result is the outcome of one tile.
type Result struct {
	Coords  tile.Coords
	Report  pipeline.Report
	Err     error
	Elapsed time.Duration
}

// Counts summarizes a batch in progress.
type Counts struct {
	Total     int
	Completed int
	Cached    int
	Failed    int
}

// ProgressFunc is called after each tile completes.
type ProgressFunc func(Counts)

// Config configures the worker pool.
type Config struct {
	Workers    int
	Renderer   Renderer
	OnProgress ProgressFunc
	Logger     *slog.Logger
}

// Pool renders tiles with a bounded number of goroutines.
type Pool struct {
	workers    int
	renderer   Renderer
	onProgress ProgressFunc
	logger     *slog.Logger
}

// New creates a new worker pool.
func New(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Pool{
		workers:    workers,
		renderer:   cfg.Renderer,
		onProgress: cfg.OnProgress,
		logger:     cfg.Logger,
	}
}

func (p *Pool) log() *slog.Logger {
	if p.logger != nil {
		return p.logger
	}
	return slog.Default()
}

// Run renders every tile and returns one result per tile, in input order.
// A failing tile does not stop the batch. Once ctx is cancelled the
// remaining tiles are reported with the context error.
func (p *Pool) Run(ctx context.Context, tiles []tile.Coords) []Result {
	if len(tiles) == 0 {
		return nil
	}

	results := make([]Result, len(tiles))
	var (
		mu     sync.Mutex
		counts = Counts{Total: len(tiles)}
	)
	done := func(r Result) {
		mu.Lock()
		counts.Completed++
		switch {
		case r.Err != nil:
			counts.Failed++
		case r.Report.Cached:
			counts.Cached++
		}
		c := counts
		mu.Unlock()

		if p.onProgress != nil {
			p.onProgress(c)
		}
	}

	var g errgroup.Group
	g.SetLimit(p.workers)

	for i, c := range tiles {
		if err := ctx.Err(); err != nil {
			results[i] = Result{Coords: c, Err: err}
			done(results[i])
			continue
		}

		g.Go(func() error {
			results[i] = p.renderOne(ctx, c)
			done(results[i])
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (p *Pool) renderOne(ctx context.Context, c tile.Coords) Result {
	if err := ctx.Err(); err != nil {
		return Result{Coords: c, Err: err}
	}

	start := time.Now()
	report, err := p.renderer.Render(ctx, c.TileCoordinate())
	elapsed := time.Since(start)
	if err != nil {
		p.log().Warn("Tile failed", "tile", c.String(), "error", err)
	}

	return Result{Coords: c, Report: report, Err: err, Elapsed: elapsed}
}
