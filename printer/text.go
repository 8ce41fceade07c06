package printer

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// EncodeText maps every character of s to its single-byte (Latin-1) code
// point. It fails on the first character that has none.
func EncodeText(s string) ([]byte, error) {
	b, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
	if err == nil {
		return b, nil
	}

	for i, r := range s {
		if r == utf8.RuneError || r > 0xFF {
			return nil, &ValidationError{Field: "text", Reason: fmt.Sprintf("character %q at byte %d has no single-byte code", r, i)}
		}
	}
	return nil, &ValidationError{Field: "text", Reason: err.Error()}
}
