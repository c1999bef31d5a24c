// Package cache holds the content-addressed extraction response cache.
//
// Entries are best-effort: every backend failure degrades to a miss or a
// no-op so the pipeline never fails because the cache is unavailable.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/notafacil/receipt-pipeline/internal/entity"
)

const keyPrefix = "extract:"

// ResponseCache caches extraction results per (provider, image batch).
type ResponseCache interface {
	// Get returns the cached invoice for the provider and image batch, or
	// ok=false on a miss, an expired entry, or any backend failure.
	Get(ctx context.Context, provider string, images [][]byte) (*entity.ExtractedInvoice, bool)
	// Set stores the invoice for the TTL window. Failures are swallowed.
	Set(ctx context.Context, provider string, images [][]byte, inv *entity.ExtractedInvoice)
	// Invalidate drops a single entry.
	Invalidate(ctx context.Context, provider string, images [][]byte)
	// ClearAll drops every extraction entry and returns how many were removed.
	ClearAll(ctx context.Context) int
}

// Key derives the cache key for a provider and an ordered image batch.
//
// The digest covers every image in order, not just the first one, so a
// reordered or altered batch misses. This deliberately diverges from systems
// that key on the first image only, where two different batches sharing a
// first photo would collide.
func Key(provider string, images [][]byte) string {
	h := sha256.New()
	for _, img := range images {
		h.Write(img)
	}
	return keyPrefix + provider + ":" + hex.EncodeToString(h.Sum(nil))
}
