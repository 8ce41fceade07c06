package image

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/makeworld-the-better-one/dither/v2"
)

// Binarizer decides which pixels of img become dots.
type Binarizer interface {
	Binarize(img image.Image) Matrix
}

// AlphaRule marks every pixel with a nonzero alpha channel as a dot, so a
// transparent background prints blank and anything drawn on it prints black.
type AlphaRule struct{}

func (AlphaRule) Binarize(img image.Image) Matrix {
	b := img.Bounds()
	m := NewMatrix(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if _, _, _, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA(); a != 0 {
				m[y][x] = 1
			}
		}
	}
	return m
}

// LightnessRule marks pixels whose luminance is at or below Threshold (0..1).
// Transparent pixels count as white.
type LightnessRule struct {
	Threshold float64
}

func (r LightnessRule) Binarize(img image.Image) Matrix {
	flat := flatten(img)
	b := flat.Bounds()
	m := NewMatrix(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if lightness(flat.At(x, y)) <= r.Threshold {
				m[y][x] = 1
			}
		}
	}
	return m
}

// DitherRule applies Floyd-Steinberg error diffusion against a black and
// white palette.
type DitherRule struct{}

func (DitherRule) Binarize(img image.Image) Matrix {
	d := dither.NewDitherer([]color.Color{color.Black, color.White})
	d.Matrix = dither.FloydSteinberg

	p := d.DitherPaletted(flatten(img))
	b := p.Bounds()
	m := NewMatrix(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if p.ColorIndexAt(b.Min.X+x, b.Min.Y+y) == 0 {
				m[y][x] = 1
			}
		}
	}
	return m
}

// flatten composites img over white into a zero-origin RGBA copy.
func flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Over)
	return out
}

const lumR, lumG, lumB = 55, 182, 18

func lightness(c color.Color) float64 {
	r, g, b, _ := c.RGBA()

	return float64(lumR*r+lumG*g+lumB*b) / float64(0xffff*(lumR+lumG+lumB))
}
