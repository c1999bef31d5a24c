package provider

import (
	"context"

	"github.com/notafacil/receipt-pipeline/internal/entity"
)

// Image is one receipt photo handed to an extraction backend.
type Image struct {
	Data     []byte
	MIMEType string
}

// Extractor is a vision-capable text-recognition backend. The gateway holds
// an ordered list of these and falls through on failure; anything exposing
// this interface works, including test doubles.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, images []Image) (*entity.ExtractedInvoice, error)
}

// CategoryPair is one classification answer for a line item.
type CategoryPair struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
}

// Classifier assigns taxonomy pairs to a batch of item descriptions. The
// returned map is keyed by item index; absent indices mean "no answer".
type Classifier interface {
	Name() string
	Classify(ctx context.Context, descriptions []string, taxonomy map[string][]string) (map[int]CategoryPair, error)
}
