package raster

import (
	"math"

	"github.com/aquilax/go-perlin"
)

// grainScale is the noise wavelength in scene pixels.
const grainScale = 24.0

// ApplyGrain darkens and lightens the canvas by up to strength*64 levels
// following seeded Perlin noise. Strength is clamped to [0, 1]; zero is a no-op.
func (c *Canvas) ApplyGrain(strength float64, seed int64) {
	if strength <= 0 {
		return
	}
	strength = math.Min(strength, 1)

	p := perlin.NewPerlin(2.0, 2.0, 3, seed)
	b := c.img.Bounds()
	s := float64(c.scale)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			// Noise2D is roughly in [-1, 1].
			delta := p.Noise2D(float64(x)/s/grainScale, float64(y)/s/grainScale) * strength * 64

			i := c.img.PixOffset(x, y)
			for k := 0; k < 3; k++ {
				v := float64(c.img.Pix[i+k]) + delta
				c.img.Pix[i+k] = uint8(math.Max(0, math.Min(255, math.Round(v))))
			}
		}
	}
}
