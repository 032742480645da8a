package raster

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var (
	goRegularOnce sync.Once
	goRegular     *opentype.Font
	goRegularErr  error
)

func loadGoRegular() (*opentype.Font, error) {
	goRegularOnce.Do(func() {
		goRegular, goRegularErr = opentype.Parse(goregular.TTF)
	})
	return goRegular, goRegularErr
}

// Font is a label face sized for one canvas. Faces cache glyphs and are not
// safe for concurrent use, so each render creates its own.
type Font struct {
	face  font.Face
	scale int
}

// NewFont creates a Go Regular face of the given scene size for c.
func (c *Canvas) NewFont(size float64) (*Font, error) {
	f, err := loadGoRegular()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse font: %w", ErrRender, err)
	}

	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size * float64(c.scale),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create font face: %w", ErrRender, err)
	}
	return &Font{face: face, scale: c.scale}, nil
}

// Close releases the face.
func (f *Font) Close() error {
	return f.face.Close()
}

// DrawText draws text with its top-left corner at scene position (x, y).
func (c *Canvas) DrawText(f *Font, text string, x, y int, col color.Color) {
	ascent := f.face.Metrics().Ascent.Ceil()
	d := &font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(col),
		Face: f.face,
		Dot:  fixed.P(x*c.scale, y*c.scale+ascent),
	}
	d.DrawString(text)
}
