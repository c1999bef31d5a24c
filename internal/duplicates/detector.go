// Package duplicates finds previously persisted invoices that look like the
// same physical receipt as a fresh extraction.
package duplicates

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/google/uuid"

	"github.com/notafacil/receipt-pipeline/internal/entity"
)

var reNonDigit = regexp.MustCompile(`\D`)

// Lookup is the persistence-read capability the detector needs. The owning
// CRUD layer implements it; lookups are scoped to one owner.
type Lookup interface {
	// ByAccessKey returns the owner's invoices bearing exactly this access key.
	ByAccessKey(ctx context.Context, ownerID uuid.UUID, accessKey string) ([]entity.InvoiceRecord, error)
	// ByNumberAndIssuer returns the owner's invoices matching document number
	// and issuer CNPJ; total narrows the match when non-nil.
	ByNumberAndIssuer(ctx context.Context, ownerID uuid.UUID, number, cnpj string, total *float64) ([]entity.InvoiceRecord, error)
}

type Detector struct {
	lookup Lookup
	log    *slog.Logger
}

func New(lookup Lookup, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{lookup: lookup, log: logger}
}

// FindDuplicates checks two channels in order: exact access-key match first,
// then the number+CNPJ+total fuzzy match when no key matched. It never
// fails: lookup errors degrade to an empty result with a logged warning.
func (d *Detector) FindDuplicates(ctx context.Context, ownerID uuid.UUID, inv *entity.ExtractedInvoice) []entity.DuplicateCandidate {
	if inv == nil {
		return nil
	}

	var candidates []entity.DuplicateCandidate

	if key := reNonDigit.ReplaceAllString(inv.AccessKey, ""); len(key) == 44 {
		records, err := d.lookup.ByAccessKey(ctx, ownerID, key)
		if err != nil {
			d.log.Warn("duplicates.access_key_lookup_failed", "owner_id", ownerID, "error", err)
		}
		for _, rec := range records {
			candidates = append(candidates, toCandidate(rec, entity.MatchAccessKey))
		}
	}

	if len(candidates) == 0 && inv.Number != "" && inv.IssuerCNPJ != "" {
		cnpj := reNonDigit.ReplaceAllString(inv.IssuerCNPJ, "")
		var total *float64
		if inv.Total != 0 {
			t := inv.Total
			total = &t
		}
		records, err := d.lookup.ByNumberAndIssuer(ctx, ownerID, inv.Number, cnpj, total)
		if err != nil {
			d.log.Warn("duplicates.fuzzy_lookup_failed", "owner_id", ownerID, "error", err)
		}
		for _, rec := range records {
			candidates = append(candidates, toCandidate(rec, entity.MatchNumberCNPJValue))
		}
	}

	if len(candidates) > 0 {
		d.log.Info("duplicates.found",
			"owner_id", ownerID,
			"candidates", len(candidates),
			"match_type", candidates[0].MatchType,
		)
	}
	return candidates
}

func toCandidate(rec entity.InvoiceRecord, mt entity.MatchType) entity.DuplicateCandidate {
	return entity.DuplicateCandidate{
		InvoiceID:  rec.ID,
		Number:     rec.Number,
		IssuedAt:   rec.IssuedAt,
		Total:      rec.Total,
		IssuerName: rec.IssuerName,
		MatchType:  mt,
	}
}
