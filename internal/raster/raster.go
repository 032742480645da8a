// Package raster draws projected features onto an image.
package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/MeKo-Tech/osmtile/internal/geometry"
	"github.com/disintegration/gift"
	"golang.org/x/image/vector"
)

// ErrRender reports a failure of the drawing backend.
var ErrRender = errors.New("render error")

// Background is the default map paper color, #f2efe9.
var Background = color.NRGBA{R: 242, G: 239, B: 233, A: 255}

// Canvas is a drawing surface addressed in scene pixels. With a scale above
// one it draws at a multiple of the scene size and downsamples on Image.
type Canvas struct {
	img    *image.NRGBA
	width  int
	height int
	scale  int
}

// NewCanvas creates a width x height canvas filled with bg. A nil bg leaves
// it transparent, which is how label layers start.
func NewCanvas(width, height, scale int, bg color.Color) (*Canvas, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid canvas size %dx%d", ErrRender, width, height)
	}
	if scale < 1 {
		scale = 1
	}
	if scale > 8 {
		return nil, fmt.Errorf("%w: supersample factor %d too large", ErrRender, scale)
	}

	img := image.NewNRGBA(image.Rect(0, 0, width*scale, height*scale))
	if bg != nil {
		c := color.NRGBAModel.Convert(bg).(color.NRGBA)
		for i := 0; i < len(img.Pix); i += 4 {
			img.Pix[i+0] = c.R
			img.Pix[i+1] = c.G
			img.Pix[i+2] = c.B
			img.Pix[i+3] = c.A
		}
	}

	return &Canvas{img: img, width: width, height: height, scale: scale}, nil
}

// Width returns the scene width.
func (c *Canvas) Width() int { return c.width }

// Height returns the scene height.
func (c *Canvas) Height() int { return c.height }

// Scale returns the supersample factor.
func (c *Canvas) Scale() int { return c.scale }

// FillPolygon fills the closed polygon through pts. Fewer than three points
// enclose nothing and draw nothing.
func (c *Canvas) FillPolygon(pts []geometry.Point, col color.Color) {
	if len(pts) < 3 {
		return
	}

	b := c.img.Bounds()
	ras := vector.NewRasterizer(b.Dx(), b.Dy())
	s := float32(c.scale)
	ras.MoveTo(float32(pts[0].X)*s, float32(pts[0].Y)*s)
	for _, p := range pts[1:] {
		ras.LineTo(float32(p.X)*s, float32(p.Y)*s)
	}
	ras.ClosePath()

	ras.Draw(c.img, b, image.NewUniform(col), image.Point{})
}

// StrokePath draws the open polyline through pts with the given width.
func (c *Canvas) StrokePath(pts []geometry.Point, width float64, col color.Color) {
	if len(pts) < 2 {
		return
	}
	nc := color.NRGBAModel.Convert(col).(color.NRGBA)

	s := float64(c.scale)
	radius := width * s / 2.0
	step := 0.75
	if width*s >= 5 {
		step = 0.9
	}

	for i := 0; i < len(pts)-1; i++ {
		x0, y0 := float64(pts[i].X)*s, float64(pts[i].Y)*s
		x1, y1 := float64(pts[i+1].X)*s, float64(pts[i+1].Y)*s

		dx := x1 - x0
		dy := y1 - y0
		segLen := math.Hypot(dx, dy)
		if segLen == 0 {
			c.drawDisc(x0, y0, radius, nc)
			continue
		}

		steps := int(math.Ceil(segLen / step))
		for k := 0; k <= steps; k++ {
			t := float64(k) / float64(steps)
			c.drawDisc(x0+dx*t, y0+dy*t, radius, nc)
		}
	}
}

func (c *Canvas) drawDisc(cx, cy, radius float64, col color.NRGBA) {
	b := c.img.Bounds()
	minX := max(int(math.Floor(cx-radius)), b.Min.X)
	maxX := min(int(math.Ceil(cx+radius)), b.Max.X-1)
	minY := max(int(math.Floor(cy-radius)), b.Min.Y)
	maxY := min(int(math.Ceil(cy+radius)), b.Max.Y-1)

	r2 := radius * radius
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			dx := (float64(x) + 0.5) - cx
			dy := (float64(y) + 0.5) - cy
			if dx*dx+dy*dy <= r2 {
				c.img.SetNRGBA(x, y, col)
			}
		}
	}
}

// Image returns the scene-sized result, downsampling when supersampled.
func (c *Canvas) Image() *image.NRGBA {
	if c.scale == 1 {
		return c.img
	}
	g := gift.New(gift.Resize(c.width, c.height, gift.LinearResampling))
	dst := image.NewNRGBA(g.Bounds(c.img.Bounds()))
	g.Draw(dst, c.img)
	return dst
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("%w: failed to encode png: %w", ErrRender, err)
	}
	return nil
}
