package raster

import (
	"bytes"
	"errors"
	"image/color"
	"image/png"
	"testing"

	"github.com/MeKo-Tech/osmtile/internal/geometry"
	"github.com/MeKo-Tech/osmtile/internal/types"
)

var red = color.NRGBA{R: 255, A: 255}

func TestProjector(t *testing.T) {
	p := NewProjector(types.BoundingBox{MinLon: 10, MinLat: 50, MaxLon: 11, MaxLat: 51}, 800, 600)

	tests := []struct {
		name     string
		lat, lon float64
		want     geometry.Point
	}{
		{"south-west", 50, 10, geometry.Point{X: 0, Y: 600}},
		{"north-east", 51, 11, geometry.Point{X: 800, Y: 0}},
		{"center", 50.5, 10.5, geometry.Point{X: 400, Y: 300}},
		{"truncates", 50.0001, 10.0001, geometry.Point{X: 0, Y: 600}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Project(tt.lat, tt.lon); got != tt.want {
				t.Errorf("Project(%v, %v) = %v, want %v", tt.lat, tt.lon, got, tt.want)
			}
		})
	}

	pts := p.ProjectAll([]types.LatLon{{Lat: 50, Lon: 10}, {Lat: 51, Lon: 11}})
	if len(pts) != 2 || pts[0] != (geometry.Point{X: 0, Y: 600}) || pts[1] != (geometry.Point{X: 800, Y: 0}) {
		t.Errorf("ProjectAll = %v", pts)
	}
}

func TestNewCanvas(t *testing.T) {
	c, err := NewCanvas(80, 60, 1, Background)
	if err != nil {
		t.Fatalf("NewCanvas: %v", err)
	}
	img := c.Image()
	if img.Bounds().Dx() != 80 || img.Bounds().Dy() != 60 {
		t.Fatalf("unexpected bounds %v", img.Bounds())
	}
	if got := img.NRGBAAt(40, 30); got != Background {
		t.Errorf("background = %v, want %v", got, Background)
	}

	layer, err := NewCanvas(10, 10, 1, nil)
	if err != nil {
		t.Fatalf("NewCanvas: %v", err)
	}
	if got := layer.Image().NRGBAAt(5, 5); got.A != 0 {
		t.Errorf("expected transparent layer, got %v", got)
	}
}

func TestNewCanvas_Invalid(t *testing.T) {
	for _, size := range [][2]int{{0, 10}, {10, -1}} {
		if _, err := NewCanvas(size[0], size[1], 1, nil); !errors.Is(err, ErrRender) {
			t.Errorf("NewCanvas(%d, %d) error = %v, want ErrRender", size[0], size[1], err)
		}
	}
	if _, err := NewCanvas(10, 10, 16, nil); !errors.Is(err, ErrRender) {
		t.Errorf("expected ErrRender for oversized supersample, got %v", err)
	}
}

func TestFillPolygon(t *testing.T) {
	c, _ := NewCanvas(100, 100, 1, Background)
	c.FillPolygon([]geometry.Point{{X: 10, Y: 10}, {X: 90, Y: 10}, {X: 90, Y: 90}, {X: 10, Y: 90}}, red)

	img := c.Image()
	if got := img.NRGBAAt(50, 50); got != red {
		t.Errorf("interior = %v, want %v", got, red)
	}
	if got := img.NRGBAAt(5, 5); got != Background {
		t.Errorf("exterior = %v, want background", got)
	}
}

func TestFillPolygon_TooFewPoints(t *testing.T) {
	c, _ := NewCanvas(20, 20, 1, Background)
	c.FillPolygon([]geometry.Point{{X: 0, Y: 0}, {X: 19, Y: 19}}, red)

	img := c.Image()
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			if img.NRGBAAt(x, y) != Background {
				t.Fatalf("pixel (%d, %d) changed", x, y)
			}
		}
	}
}

func TestStrokePath(t *testing.T) {
	c, _ := NewCanvas(100, 100, 1, Background)
	c.StrokePath([]geometry.Point{{X: 10, Y: 50}, {X: 90, Y: 50}}, 2, red)

	img := c.Image()
	if got := img.NRGBAAt(50, 50); got != red {
		t.Errorf("on-path pixel = %v, want %v", got, red)
	}
	if got := img.NRGBAAt(50, 40); got != Background {
		t.Errorf("off-path pixel = %v, want background", got)
	}
}

func TestDrawText(t *testing.T) {
	c, _ := NewCanvas(200, 50, 1, nil)
	f, err := c.NewFont(16)
	if err != nil {
		t.Fatalf("NewFont: %v", err)
	}
	defer f.Close()

	c.DrawText(f, "Plaza", 10, 16, color.Black)

	img := c.Image()
	inked := 0
	for y := 0; y < 50; y++ {
		for x := 0; x < 200; x++ {
			if img.NRGBAAt(x, y).A > 0 {
				inked++
				if y < 16 {
					t.Fatalf("glyph pixel above the top edge at (%d, %d)", x, y)
				}
			}
		}
	}
	if inked == 0 {
		t.Error("expected text to draw pixels")
	}
}

func TestSupersample(t *testing.T) {
	c, err := NewCanvas(40, 30, 2, Background)
	if err != nil {
		t.Fatalf("NewCanvas: %v", err)
	}
	c.FillPolygon([]geometry.Point{{X: 0, Y: 0}, {X: 40, Y: 0}, {X: 40, Y: 30}, {X: 0, Y: 30}}, red)

	img := c.Image()
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 30 {
		t.Fatalf("unexpected bounds %v", img.Bounds())
	}
	if got := img.NRGBAAt(20, 15); got != red {
		t.Errorf("center = %v, want %v", got, red)
	}
}

func TestApplyGrain(t *testing.T) {
	a, _ := NewCanvas(64, 64, 1, Background)
	b, _ := NewCanvas(64, 64, 1, Background)
	a.ApplyGrain(0.5, 7)
	b.ApplyGrain(0.5, 7)

	if !bytes.Equal(a.Image().Pix, b.Image().Pix) {
		t.Error("expected equal seeds to give equal grain")
	}

	plain, _ := NewCanvas(64, 64, 1, Background)
	plain.ApplyGrain(0, 7)
	if plain.Image().NRGBAAt(10, 10) != Background {
		t.Error("expected zero strength to leave the canvas unchanged")
	}
}

func TestEncodePNG(t *testing.T) {
	c, _ := NewCanvas(8, 6, 1, Background)

	var buf bytes.Buffer
	if err := EncodePNG(&buf, c.Image()); err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 6 {
		t.Errorf("unexpected bounds %v", img.Bounds())
	}
}
