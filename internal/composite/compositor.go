package composite

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// Layer names one raster layer of a tile.
type Layer string

const (
	LayerShapes Layer = "shapes"
	LayerLabels Layer = "labels"
)

// DefaultOrder is the bottom-to-top stacking order: labels always sit above shapes.
var DefaultOrder = []Layer{LayerShapes, LayerLabels}

// CompositeLayersOverBase stacks layers over base in the given order (or
// DefaultOrder when nil). Every layer must match the base bounds. Missing
// layers are skipped.
func CompositeLayersOverBase(base image.Image, layers map[Layer]image.Image, order []Layer) (*image.NRGBA, error) {
	if base == nil {
		return nil, fmt.Errorf("base image is required")
	}
	if order == nil {
		order = DefaultOrder
	}

	bounds := base.Bounds()
	dst := image.NewNRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			dst.Set(x, y, base.At(x, y))
		}
	}

	for _, layer := range order {
		img := layers[layer]
		if img == nil {
			continue
		}
		if img.Bounds() != bounds {
			return nil, fmt.Errorf("layer %s bounds %v do not match expected %v", layer, img.Bounds(), bounds)
		}
		alphaOver(dst, img)
	}

	return dst, nil
}

// Over blends src onto dst in place. Bounds must match.
func Over(dst *image.NRGBA, src image.Image) error {
	if src.Bounds() != dst.Bounds() {
		return fmt.Errorf("source bounds %v do not match destination %v", src.Bounds(), dst.Bounds())
	}
	alphaOver(dst, src)
	return nil
}

func alphaOver(dst *image.NRGBA, src image.Image) {
	bounds := dst.Bounds()

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			s := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			if s.A == 0 {
				continue
			}
			if s.A == 255 {
				dst.SetNRGBA(x, y, s)
				continue
			}

			d := dst.NRGBAAt(x, y)

			sa := float64(s.A) / 255.0
			da := float64(d.A) / 255.0

			outA := sa + da*(1.0-sa)
			if outA == 0 {
				dst.SetNRGBA(x, y, color.NRGBA{})
				continue
			}

			blend := func(srcVal, dstVal uint8) uint8 {
				srcPremult := float64(srcVal) * sa
				dstPremult := float64(dstVal) * da
				outPremult := srcPremult + dstPremult*(1.0-sa)
				return uint8(math.Round(outPremult / outA))
			}

			dst.SetNRGBA(x, y, color.NRGBA{
				R: blend(s.R, d.R),
				G: blend(s.G, d.G),
				B: blend(s.B, d.B),
				A: uint8(math.Round(outA * 255.0)),
			})
		}
	}
}
