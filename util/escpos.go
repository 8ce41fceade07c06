package util

import "fmt"

// IntLowHigh splits n into b little-endian bytes (ESC/POS nL nH ... order).
func IntLowHigh(n int, b int) ([]byte, error) {
	if b < 1 || b > 4 {
		return nil, fmt.Errorf("IntLowHigh: 1-4 bytes only, got %d", b)
	}
	if n < 0 || uint64(n) >= uint64(1)<<(8*uint(b)) {
		return nil, fmt.Errorf("IntLowHigh: %d does not fit in %d bytes", n, b)
	}

	out := make([]byte, b)
	for i := 0; i < b; i++ {
		out[i] = byte(n % 256)
		n = n / 256
	}
	return out, nil
}
