package image

import "fmt"

// MaxWidth is the largest column count the 16-bit nL nH width field can carry.
const MaxWidth = 0xFFFF

// Density selects the ESC * bit-image mode.
type Density int

const (
	EightDot      Density = 8
	TwentyFourDot Density = 24
)

// Mode returns the m parameter of ESC * for the density.
func (d Density) Mode() byte {
	if d == TwentyFourDot {
		return 33
	}
	return 0
}

// BytesPerColumn is the number of data bytes one column occupies in a slice.
func (d Density) BytesPerColumn() int {
	if d == TwentyFourDot {
		return 3
	}
	return 1
}

// Dots is the number of image rows one slice covers.
func (d Density) Dots() int {
	return int(d)
}

func (d Density) Valid() bool {
	return d == EightDot || d == TwentyFourDot
}

func (d Density) String() string {
	switch d {
	case EightDot:
		return "8-dot"
	case TwentyFourDot:
		return "24-dot"
	}
	return fmt.Sprintf("Density(%d)", int(d))
}

// ParseDensity maps 8 or 24 to a Density.
func ParseDensity(dots int) (Density, error) {
	d := Density(dots)
	if !d.Valid() {
		return 0, &ValidationError{Field: "density", Reason: fmt.Sprintf("%d is not 8 or 24", dots)}
	}
	return d, nil
}

// ValidationError reports input that cannot be encoded. It is always returned
// before any byte reaches the transport.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Matrix is a monochrome raster, rows top to bottom. A nonzero value is a dot.
type Matrix [][]uint8

// NewMatrix allocates an all-zero matrix.
func NewMatrix(width, height int) Matrix {
	m := make(Matrix, height)
	for y := range m {
		m[y] = make([]uint8, width)
	}
	return m
}

func (m Matrix) Height() int {
	return len(m)
}

// Width is the length of the first row; zero for an empty matrix.
func (m Matrix) Width() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// Validate checks that m can be printed at density d: non-empty, rectangular,
// no wider than MaxWidth and with a height that is a multiple of d.Dots().
func (m Matrix) Validate(d Density) error {
	if !d.Valid() {
		return &ValidationError{Field: "density", Reason: fmt.Sprintf("unsupported density %d", int(d))}
	}
	if len(m) == 0 {
		return &ValidationError{Field: "height", Reason: "matrix has no rows"}
	}

	w := len(m[0])
	if w == 0 {
		return &ValidationError{Field: "width", Reason: "matrix has zero width"}
	}
	if w > MaxWidth {
		return &ValidationError{Field: "width", Reason: fmt.Sprintf("%d exceeds %d", w, MaxWidth)}
	}
	for y, row := range m {
		if len(row) != w {
			return &ValidationError{Field: "width", Reason: fmt.Sprintf("row %d has %d columns, want %d", y, len(row), w)}
		}
	}

	if len(m)%d.Dots() != 0 {
		return &ValidationError{Field: "height", Reason: fmt.Sprintf("%d is not a multiple of %d", len(m), d.Dots())}
	}
	return nil
}

// PackSlice packs the d.Dots() rows starting at rowOffset into column-major
// bytes: for every column x, BytesPerColumn bytes, each covering 8 rows with
// bit 7 as the topmost row. Rows past the end of m contribute zero bits.
func PackSlice(m Matrix, width, rowOffset int, d Density) []byte {
	bpc := d.BytesPerColumn()
	out := make([]byte, width*bpc)

	for x := 0; x < width; x++ {
		for b := 0; b < bpc; b++ {
			var v byte
			top := rowOffset + b*8
			for i := 0; i < 8; i++ {
				y := top + i
				if y >= len(m) {
					break
				}
				if m[y][x] != 0 {
					v |= 0x80 >> uint(i)
				}
			}
			out[x*bpc+b] = v
		}
	}
	return out
}
