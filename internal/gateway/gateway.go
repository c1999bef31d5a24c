// Package gateway owns the provider fallback chain for receipt extraction.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/notafacil/receipt-pipeline/internal/cache"
	"github.com/notafacil/receipt-pipeline/internal/common"
	"github.com/notafacil/receipt-pipeline/internal/entity"
	"github.com/notafacil/receipt-pipeline/internal/provider"
)

// ProviderFailure records one provider's error during a fallback pass.
type ProviderFailure struct {
	Provider string
	Err      error
}

// AllProvidersFailedError is returned when every configured provider failed.
// Failures appear in the order the providers were tried.
type AllProvidersFailedError struct {
	Failures []ProviderFailure
}

func (e *AllProvidersFailedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Provider, f.Err))
	}
	return "all extraction providers failed: " + strings.Join(parts, "; ")
}

// Gateway tries providers in fixed priority order, consulting and populating
// the response cache around each attempt.
type Gateway struct {
	providers []provider.Extractor
	cache     cache.ResponseCache
	log       *slog.Logger
}

func New(providers []provider.Extractor, responseCache cache.ResponseCache, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{providers: providers, cache: responseCache, log: logger}
}

// Extract runs the fallback chain over the ordered image set. The first
// provider success wins; per-provider errors are collected and surfaced only
// if every provider fails.
func (g *Gateway) Extract(ctx context.Context, images []provider.Image) (*entity.ExtractedInvoice, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("extract: no images")
	}
	content := make([][]byte, len(images))
	for i, img := range images {
		content[i] = img.Data
	}

	log := g.log.With("owner_id", common.OwnerIDFromContext(ctx))

	var failures []ProviderFailure
	for _, p := range g.providers {
		if err := ctx.Err(); err != nil {
			failures = append(failures, ProviderFailure{Provider: p.Name(), Err: err})
			break
		}

		if inv, ok := g.cache.Get(ctx, p.Name(), content); ok {
			log.Info("gateway.cache_hit", "provider", p.Name(), "images", len(images))
			return inv, nil
		}

		inv, err := p.Extract(ctx, images)
		if err != nil {
			log.Warn("gateway.provider_failed", "provider", p.Name(), "error", err)
			failures = append(failures, ProviderFailure{Provider: p.Name(), Err: err})
			continue
		}

		g.cache.Set(ctx, p.Name(), content, inv)
		log.Info("gateway.extract_ok",
			"provider", p.Name(),
			"attempted_before", len(failures),
			"items", len(inv.Items),
			"confidence", inv.Confidence,
		)
		return inv, nil
	}

	return nil, &AllProvidersFailedError{Failures: failures}
}
