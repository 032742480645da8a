// Package label decides where tile labels go.
package label

import (
	"github.com/MeKo-Tech/osmtile/internal/geometry"
	"github.com/dhconnelly/rtreego"
)

// Defaults for an 800x600 tile with a 16px font.
const (
	DefaultMinZoom    = 15
	DefaultCharWidth  = 8
	DefaultLineHeight = 16
)

// Label is a placed text with its top-left anchor in scene pixels.
type Label struct {
	Text string
	X    int
	Y    int
}

// Options configures a Placer.
type Options struct {
	Width      int
	Height     int
	MinZoom    int
	CharWidth  int
	LineHeight int
	// Collisions drops a label whose box overlaps one placed earlier.
	Collisions bool
}

// Placer collects labels for one tile. Each name is placed at most once and
// the first feature carrying it wins.
type Placer struct {
	opts    Options
	enabled bool
	seen    map[string]bool
	labels  []Label
	tree    *rtreego.Rtree
	dropped int
}

// NewPlacer creates a placer for a tile at zoom. Zero-valued options take
// the package defaults.
func NewPlacer(zoom int, opts Options) *Placer {
	if opts.MinZoom == 0 {
		opts.MinZoom = DefaultMinZoom
	}
	if opts.CharWidth == 0 {
		opts.CharWidth = DefaultCharWidth
	}
	if opts.LineHeight == 0 {
		opts.LineHeight = DefaultLineHeight
	}

	p := &Placer{
		opts:    opts,
		enabled: zoom >= opts.MinZoom,
		seen:    make(map[string]bool),
	}
	if opts.Collisions {
		p.tree = rtreego.NewTree(2, 25, 50)
	}
	return p
}

// Enabled reports whether labels are drawn at this zoom.
func (p *Placer) Enabled() bool {
	return p.enabled
}

// Add offers a label for name anchored on the middle point of pts, the
// points actually drawn for the feature. It reports whether the label was
// placed. An empty name is never placed.
func (p *Placer) Add(name string, pts []geometry.Point) bool {
	if !p.enabled || name == "" || len(pts) == 0 || p.seen[name] {
		return false
	}

	anchor := pts[len(pts)/2]
	x, y := p.clamp(name, anchor)

	if p.tree != nil {
		box := labelBox{text: name, x: x, y: y, w: len(name) * p.opts.CharWidth, h: p.opts.LineHeight}
		if len(p.tree.SearchIntersect(box.Bounds())) > 0 {
			p.dropped++
			return false
		}
		p.tree.Insert(box)
	}

	p.seen[name] = true
	p.labels = append(p.labels, Label{Text: name, X: x, Y: y})
	return true
}

// clamp keeps the approximate text box on the canvas. The upper bound is
// applied first, so on a canvas narrower than the text the label pins to 0.
func (p *Placer) clamp(name string, at geometry.Point) (int, int) {
	textWidth := len(name) * p.opts.CharWidth
	textHeight := p.opts.LineHeight

	x := max(min(at.X, p.opts.Width-textWidth), 0)
	y := max(min(at.Y, p.opts.Height-textHeight), textHeight)
	return x, y
}

// Labels returns the placed labels in placement order.
func (p *Placer) Labels() []Label {
	return p.labels
}

// Dropped returns how many labels were rejected for overlapping.
func (p *Placer) Dropped() int {
	return p.dropped
}

type labelBox struct {
	text string
	x, y int
	w, h int
}

// Bounds implements rtreego.Spatial.
func (b labelBox) Bounds() rtreego.Rect {
	rect, _ := rtreego.NewRect(rtreego.Point{float64(b.x), float64(b.y)}, []float64{float64(b.w), float64(b.h)})
	return rect
}
