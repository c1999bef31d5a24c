// Package categorizer annotates extracted line items with taxonomy
// categories. It is best-effort enrichment: no failure here ever stops the
// pipeline.
package categorizer

import (
	"context"
	"log/slog"

	"github.com/notafacil/receipt-pipeline/constants"
	"github.com/notafacil/receipt-pipeline/internal/entity"
	"github.com/notafacil/receipt-pipeline/internal/provider"
)

type Categorizer struct {
	classifier provider.Classifier
	log        *slog.Logger
}

func New(classifier provider.Classifier, logger *slog.Logger) *Categorizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Categorizer{classifier: classifier, log: logger}
}

// Categorize sends one batched classification request for every item and
// applies the answers back by index. Items whose index is missing from the
// response, out of range, or outside the closed taxonomy keep empty
// category fields. Provider failures are swallowed and logged.
func (c *Categorizer) Categorize(ctx context.Context, items []entity.ExtractedLineItem) {
	if len(items) == 0 || c.classifier == nil {
		return
	}

	descriptions := make([]string, len(items))
	for i, it := range items {
		// prefer the normalized name when the normalizer produced one
		if it.NormalizedName != "" {
			descriptions[i] = it.NormalizedName
		} else {
			descriptions[i] = it.Description
		}
	}

	answers, err := c.classifier.Classify(ctx, descriptions, constants.Taxonomy())
	if err != nil {
		c.log.Warn("categorizer.classify_failed", "provider", c.classifier.Name(), "items", len(items), "error", err)
		return
	}

	applied := 0
	for idx, pair := range answers {
		if idx < 0 || idx >= len(items) {
			c.log.Warn("categorizer.index_out_of_range", "index", idx, "items", len(items))
			continue
		}
		cat, sub, ok := constants.CanonicalPair(pair.Category, pair.Subcategory)
		if !ok {
			c.log.Warn("categorizer.label_outside_taxonomy",
				"index", idx, "category", pair.Category, "subcategory", pair.Subcategory)
			continue
		}
		items[idx].Category = cat
		items[idx].Subcategory = sub
		applied++
	}
	c.log.Debug("categorizer.applied", "items", len(items), "categorized", applied)
}
