package printer

import (
	"fmt"

	imgInternal "github.com/AlexStarov/escpos-dotimage/image"
	utilInternal "github.com/AlexStarov/escpos-dotimage/util"
)

// Control bytes.
const (
	ESC = 0x1B
	GS  = 0x1D
	LF  = 0x0A
)

// Second bytes of the ESC / GS sequences this package emits.
const (
	cmdInit        = 0x40 // ESC @
	cmdLineSpacing = 0x33 // ESC 3 n
	cmdPrintMode   = 0x21 // ESC ! n
	cmdBitImage    = 0x2A // ESC * m nL nH d1...dk
	cmdAlign       = 0x61 // ESC a n
	cmdFeedLines   = 0x64 // ESC d n
	cmdReverse     = 0x42 // GS B n
	cmdCut         = 0x56 // GS V m
)

// DefaultLineSpacing is restored after every image, in dots.
const DefaultLineSpacing = 30

// Bit positions of the ESC ! print mode byte.
const (
	styleSmallFont    = 1 << 0
	styleEmphasized   = 1 << 3
	styleDoubleHeight = 1 << 4
	styleDoubleWidth  = 1 << 5
	styleUnderline    = 1 << 7
)

// CharacterStyle is the set of ESC ! flags. The zero value is plain text.
type CharacterStyle struct {
	SmallFont    bool `json:"small_font"`
	Emphasized   bool `json:"emphasized"`
	DoubleHeight bool `json:"double_height"`
	DoubleWidth  bool `json:"double_width"`
	Underline    bool `json:"underline"`
}

// Byte packs the flags into the ESC ! parameter.
func (s CharacterStyle) Byte() byte {
	var v byte
	if s.SmallFont {
		v |= styleSmallFont
	}
	if s.Emphasized {
		v |= styleEmphasized
	}
	if s.DoubleHeight {
		v |= styleDoubleHeight
	}
	if s.DoubleWidth {
		v |= styleDoubleWidth
	}
	if s.Underline {
		v |= styleUnderline
	}
	return v
}

func ResetFrame() []byte {
	return []byte{ESC, cmdInit}
}

// LineSpacingFrame rejects n outside a single byte instead of truncating it.
func LineSpacingFrame(n int) ([]byte, error) {
	if n < 0 || n > 0xFF {
		return nil, &ValidationError{Field: "line spacing", Reason: fmt.Sprintf("%d is outside [0, 255]", n)}
	}
	return []byte{ESC, cmdLineSpacing, byte(n)}, nil
}

func StyleFrame(s CharacterStyle) []byte {
	return []byte{ESC, cmdPrintMode, s.Byte()}
}

// ReverseFrame sends the parameter as an ASCII digit.
func ReverseFrame(enabled bool) []byte {
	n := byte('0')
	if enabled {
		n = '1'
	}
	return []byte{GS, cmdReverse, n}
}

// BitImageHeader is the ESC * prefix of one graphics slice of width columns.
func BitImageHeader(d imgInternal.Density, width int) ([]byte, error) {
	nLnH, err := utilInternal.IntLowHigh(width, 2)
	if err != nil {
		return nil, &ValidationError{Field: "width", Reason: err.Error()}
	}
	return append([]byte{ESC, cmdBitImage, d.Mode()}, nLnH...), nil
}

func LineFeedFrame() []byte {
	return []byte{LF}
}

// AlignFrame accepts left, center or right.
func AlignFrame(align string) ([]byte, error) {
	var a byte
	switch align {
	case "left":
		a = 0
	case "center":
		a = 1
	case "right":
		a = 2
	default:
		return nil, &ValidationError{Field: "align", Reason: fmt.Sprintf("invalid alignment %q", align)}
	}
	return []byte{ESC, cmdAlign, a}, nil
}

func FeedLinesFrame(n int) ([]byte, error) {
	if n < 0 || n > 0xFF {
		return nil, &ValidationError{Field: "feed lines", Reason: fmt.Sprintf("%d is outside [0, 255]", n)}
	}
	return []byte{ESC, cmdFeedLines, byte(n)}, nil
}

// CutFrame is GS V A 0: feed to the cutter and cut.
func CutFrame() []byte {
	return []byte{GS, cmdCut, 'A', '0'}
}
