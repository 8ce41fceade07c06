package image

import "context"

// Target receives a validated matrix to print.
type Target interface {
	PrintImage(ctx context.Context, m Matrix, d Density) error
}
