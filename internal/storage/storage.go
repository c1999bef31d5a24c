// Package storage provides read access to uploaded receipt photos.
package storage

import (
	"context"
)

// ImageStore reads raw image bytes for a job's image references. Uploading
// belongs to the excluded HTTP surface; the pipeline only reads.
type ImageStore interface {
	LoadImage(ctx context.Context, ref string) ([]byte, error)
}
