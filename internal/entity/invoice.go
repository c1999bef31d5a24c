package entity

import (
	"time"

	"github.com/google/uuid"
)

// MatchType tags how a duplicate candidate was found so callers can rank
// confidence.
type MatchType string

const (
	MatchAccessKey       MatchType = "access_key"
	MatchNumberCNPJValue MatchType = "number_cnpj_value"
)

// ExtractedInvoice is the structured result of one successful extraction.
// Produced by the gateway, enriched in place by the normalizer and the
// categorizer, read by the duplicate detector.
type ExtractedInvoice struct {
	AccessKey  string               `json:"access_key,omitempty"` // 44 digits when present
	Number     string               `json:"number,omitempty"`
	Series     string               `json:"series,omitempty"`
	IssuedAt   *time.Time           `json:"issued_at,omitempty"`
	IssuerName string               `json:"issuer_name"`
	IssuerCNPJ string               `json:"issuer_cnpj,omitempty"`
	Total      float64              `json:"total"`
	Items      []ExtractedLineItem  `json:"items"`
	Confidence float32              `json:"confidence"`
	Warnings   []string             `json:"warnings,omitempty"`
	Duplicates []DuplicateCandidate `json:"duplicates,omitempty"`
}

// ExtractedLineItem is one product line.
// NormalizedName is derived deterministically from Description; Category and
// Subcategory are either both set or both empty.
type ExtractedLineItem struct {
	Code           string  `json:"code,omitempty"`
	Description    string  `json:"description"`
	NormalizedName string  `json:"normalized_name,omitempty"`
	Quantity       float64 `json:"quantity"`
	Unit           string  `json:"unit,omitempty"`
	UnitPrice      float64 `json:"unit_price"`
	TotalPrice     float64 `json:"total_price"`
	Discount       float64 `json:"discount,omitempty"`
	Category       string  `json:"category,omitempty"`
	Subcategory    string  `json:"subcategory,omitempty"`
}

// DuplicateCandidate points at an existing invoice that looks like the same
// physical receipt. Attached to ExtractedInvoice, never persisted on its own.
type DuplicateCandidate struct {
	InvoiceID  uuid.UUID  `json:"invoice_id"`
	Number     string     `json:"number,omitempty"`
	IssuedAt   *time.Time `json:"issued_at,omitempty"`
	Total      float64    `json:"total,omitempty"`
	IssuerName string     `json:"issuer_name,omitempty"`
	MatchType  MatchType  `json:"match_type"`
}

// InvoiceRecord is the slim projection of an already-persisted invoice that
// duplicate detection needs. The full invoice schema belongs to the
// persistence layer.
type InvoiceRecord struct {
	ID         uuid.UUID  `json:"id"`
	AccessKey  string     `json:"access_key,omitempty"`
	Number     string     `json:"number,omitempty"`
	IssuerCNPJ string     `json:"issuer_cnpj,omitempty"`
	IssuerName string     `json:"issuer_name,omitempty"`
	Total      float64    `json:"total"`
	IssuedAt   *time.Time `json:"issued_at,omitempty"`
}
