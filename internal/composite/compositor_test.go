package composite

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func fillRect(img *image.NRGBA, rect image.Rectangle, c color.NRGBA) {
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}

func blendNRGBA(top, bottom color.NRGBA) color.NRGBA {
	sa := float64(top.A) / 255.0
	ba := float64(bottom.A) / 255.0

	outA := sa + ba*(1.0-sa)
	if outA == 0 {
		return color.NRGBA{}
	}

	blend := func(s, b uint8) uint8 {
		sp := float64(s) * sa
		bp := float64(b) * ba
		outPremult := sp + bp*(1.0-sa)
		return uint8(math.Round(outPremult / outA))
	}

	return color.NRGBA{
		R: blend(top.R, bottom.R),
		G: blend(top.G, bottom.G),
		B: blend(top.B, bottom.B),
		A: uint8(math.Round(outA * 255.0)),
	}
}

func expectColor(t *testing.T, got color.NRGBA, want color.NRGBA, context string) {
	t.Helper()
	if got != want {
		t.Fatalf("%s: expected %+v, got %+v", context, want, got)
	}
}

func TestCompositeLabelsAboveShapes(t *testing.T) {
	size := 4
	paper := color.NRGBA{R: 242, G: 239, B: 233, A: 255}

	base := image.NewNRGBA(image.Rect(0, 0, size, size))
	fillRect(base, base.Bounds(), paper)

	shapes := image.NewNRGBA(image.Rect(0, 0, size, size))
	fillRect(shapes, image.Rect(0, 0, size/2, size/2), color.NRGBA{G: 255, A: 255})

	labels := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		labels.SetNRGBA(1, y, color.NRGBA{R: 255, A: 128})
	}

	// Labels listed first in the map still land on top.
	layers := map[Layer]image.Image{
		LayerLabels: labels,
		LayerShapes: shapes,
	}

	out, err := CompositeLayersOverBase(base, layers, nil)
	if err != nil {
		t.Fatalf("CompositeLayersOverBase returned error: %v", err)
	}

	expectColor(t, out.NRGBAAt(0, 0), color.NRGBA{G: 255, A: 255}, "shape should cover the paper")
	expectColor(t, out.NRGBAAt(3, 3), paper, "paper should show where nothing is drawn")
	expectColor(t, out.NRGBAAt(1, 1), blendNRGBA(color.NRGBA{R: 255, A: 128}, color.NRGBA{G: 255, A: 255}),
		"label should alpha-blend on top of the shape")
	expectColor(t, out.NRGBAAt(1, 3), blendNRGBA(color.NRGBA{R: 255, A: 128}, paper),
		"label should alpha-blend on top of the paper")
}

func TestCompositeValidatesBounds(t *testing.T) {
	base := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	layers := map[Layer]image.Image{
		LayerShapes: image.NewNRGBA(image.Rect(1, 1, 3, 3)),
	}

	if _, err := CompositeLayersOverBase(base, layers, nil); err == nil {
		t.Fatal("expected error for mismatched bounds")
	}
	if _, err := CompositeLayersOverBase(nil, layers, nil); err == nil {
		t.Fatal("expected error for missing base")
	}
}

func TestOver(t *testing.T) {
	dst := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	fillRect(dst, dst.Bounds(), color.NRGBA{B: 255, A: 255})

	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})

	if err := Over(dst, src); err != nil {
		t.Fatalf("Over: %v", err)
	}
	expectColor(t, dst.NRGBAAt(0, 0), color.NRGBA{R: 255, A: 255}, "opaque source replaces")
	expectColor(t, dst.NRGBAAt(1, 1), color.NRGBA{B: 255, A: 255}, "transparent source keeps")

	if err := Over(dst, image.NewNRGBA(image.Rect(0, 0, 3, 3))); err == nil {
		t.Fatal("expected error for mismatched bounds")
	}
}
