package image

import (
	"context"
	"image"

	"github.com/nfnt/resize"
)

// Converter turns decoded images into printable matrices.
type Converter struct {
	// The maximum line width of the printer, in dots. Zero disables scaling.
	MaxWidth int

	// Rule picks the dots. Nil means AlphaRule.
	Rule Binarizer

	// Density the matrix will be printed at; the height is padded with blank
	// rows up to a multiple of it. Zero means EightDot.
	Density Density
}

// ToMatrix scales img down to MaxWidth (keeping the aspect ratio), binarizes
// it and pads the bottom so the height is a multiple of the density.
func (c *Converter) ToMatrix(img image.Image) Matrix {
	rule := c.Rule
	if rule == nil {
		rule = AlphaRule{}
	}

	if c.MaxWidth > 0 && img.Bounds().Dx() > c.MaxWidth {
		// AlphaRule needs untouched alpha; Lanczos3 smears it into transparent pixels.
		interp := resize.Lanczos3
		if _, ok := rule.(AlphaRule); ok {
			interp = resize.NearestNeighbor
		}
		img = resize.Resize(uint(c.MaxWidth), 0, img, interp)
	}
	m := rule.Binarize(img)

	dots := c.density().Dots()
	if rem := len(m) % dots; rem != 0 {
		w := m.Width()
		for i := 0; i < dots-rem; i++ {
			m = append(m, make([]uint8, w))
		}
	}
	return m
}

// Print converts img and hands it to target.
func (c *Converter) Print(ctx context.Context, img image.Image, target Target) error {
	return target.PrintImage(ctx, c.ToMatrix(img), c.density())
}

func (c *Converter) density() Density {
	if c.Density.Valid() {
		return c.Density
	}
	return EightDot
}
