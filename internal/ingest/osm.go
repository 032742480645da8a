// Package ingest loads OpenStreetMap data into a feature store.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/MeKo-Tech/osmtile/internal/store"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
)

// Sink receives nodes and ways in file order. *store.Writer implements it.
type Sink interface {
	AddNode(ctx context.Context, n store.Node) error
	AddWay(ctx context.Context, w store.Way) error
}

// Stats counts the elements read from a source.
type Stats struct {
	Nodes     int
	Ways      int
	Relations int
}

// Format of an OSM file.
type Format string

const (
	FormatXML Format = "xml"
	FormatPBF Format = "pbf"
)

// DetectFormat guesses the file format from its name.
func DetectFormat(path string) (Format, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".pbf"):
		return FormatPBF, nil
	case strings.HasSuffix(lower, ".osm"), strings.HasSuffix(lower, ".xml"):
		return FormatXML, nil
	default:
		return "", fmt.Errorf("unknown OSM file format: %s (expected .osm, .xml or .pbf)", path)
	}
}

// File reads an OSM XML or PBF file and feeds its nodes and ways to sink.
func File(ctx context.Context, path string, sink Sink, logger *slog.Logger) (Stats, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return Stats{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return Read(ctx, f, format, sink, logger)
}

// Read scans r in the given format and feeds sink.
func Read(ctx context.Context, r io.Reader, format Format, sink Sink, logger *slog.Logger) (Stats, error) {
	var scanner osm.Scanner
	switch format {
	case FormatPBF:
		scanner = osmpbf.New(ctx, r, runtime.NumCPU())
	case FormatXML:
		scanner = osmxml.New(ctx, r)
	default:
		return Stats{}, fmt.Errorf("unsupported format %q", format)
	}
	defer scanner.Close()

	return scan(ctx, scanner, sink, logger)
}

func scan(ctx context.Context, scanner osm.Scanner, sink Sink, logger *slog.Logger) (Stats, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var stats Stats
	for scanner.Scan() {
		switch obj := scanner.Object().(type) {
		case *osm.Node:
			if err := sink.AddNode(ctx, convertNode(obj)); err != nil {
				return stats, fmt.Errorf("failed to store node %d: %w", obj.ID, err)
			}
			stats.Nodes++
		case *osm.Way:
			if err := sink.AddWay(ctx, convertWay(obj)); err != nil {
				return stats, fmt.Errorf("failed to store way %d: %w", obj.ID, err)
			}
			stats.Ways++
		case *osm.Relation:
			stats.Relations++
		}

		if n := stats.Nodes + stats.Ways; n > 0 && n%100000 == 0 {
			logger.Debug("Ingest progress", "nodes", stats.Nodes, "ways", stats.Ways)
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return stats, fmt.Errorf("failed to scan OSM data: %w", err)
	}

	logger.Info("OSM data read",
		"nodes", stats.Nodes,
		"ways", stats.Ways,
		"relations_ignored", stats.Relations)
	return stats, nil
}

func convertNode(n *osm.Node) store.Node {
	return store.Node{
		ID:        int64(n.ID),
		Lat:       n.Lat,
		Lon:       n.Lon,
		Version:   n.Version,
		Timestamp: n.Timestamp,
		Changeset: int64(n.ChangesetID),
		UID:       int64(n.UserID),
		User:      n.User,
		Tags:      n.Tags.Map(),
	}
}

func convertWay(w *osm.Way) store.Way {
	ids := make([]int64, len(w.Nodes))
	for i, wn := range w.Nodes {
		ids[i] = int64(wn.ID)
	}
	return store.Way{ID: int64(w.ID), NodeIDs: ids, Tags: w.Tags.Map()}
}
