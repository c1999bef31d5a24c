package provider

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/notafacil/receipt-pipeline/internal/entity"
)

// invoiceDocument is the wire shape providers return: money as two-decimal
// strings, dates as ISO strings.
type invoiceDocument struct {
	AccessKey  string         `json:"access_key,omitempty"`
	Number     string         `json:"number,omitempty"`
	Series     string         `json:"series,omitempty"`
	IssuedAt   string         `json:"issued_at,omitempty"`
	IssuerName string         `json:"issuer_name"`
	IssuerCNPJ string         `json:"issuer_cnpj,omitempty"`
	Total      string         `json:"total"`
	Items      []itemDocument `json:"items"`
	Confidence float32        `json:"confidence,omitempty"`
	Warnings   []string       `json:"warnings,omitempty"`
}

type itemDocument struct {
	Code        string `json:"code,omitempty"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	Unit        string `json:"unit,omitempty"`
	UnitPrice   string `json:"unit_price"`
	TotalPrice  string `json:"total_price"`
	Discount    string `json:"discount,omitempty"`
}

var issuedAtLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// DecodeInvoice validates raw provider JSON against the invoice schema
// (sanitizing optionals once on a first failure) and converts it to the
// entity shape. Line item order is preserved.
func DecodeInvoice(raw []byte) (*entity.ExtractedInvoice, []string, error) {
	schema := BuildInvoiceJSONSchema()
	var dropped []string
	if err := ValidateJSONAgainstSchema(schema, raw); err != nil {
		cleaned, d, sErr := SanitizeOptionalFields(raw)
		if sErr != nil {
			return nil, nil, fmt.Errorf("schema validation failed: %w", err)
		}
		if vErr := ValidateJSONAgainstSchema(schema, cleaned); vErr != nil {
			return nil, nil, fmt.Errorf("schema validation failed: %w", vErr)
		}
		raw, dropped = cleaned, d
	}

	var doc invoiceDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, dropped, fmt.Errorf("unmarshal invoice: %w", err)
	}

	inv := &entity.ExtractedInvoice{
		AccessKey:  doc.AccessKey,
		Number:     doc.Number,
		Series:     doc.Series,
		IssuerName: doc.IssuerName,
		IssuerCNPJ: doc.IssuerCNPJ,
		Total:      parseMoney(doc.Total),
		Confidence: clampConfidence(doc.Confidence),
		Warnings:   doc.Warnings,
	}
	if doc.IssuedAt != "" {
		for _, layout := range issuedAtLayouts {
			if t, err := time.ParseInLocation(layout, doc.IssuedAt, time.UTC); err == nil {
				inv.IssuedAt = &t
				break
			}
		}
		if inv.IssuedAt == nil {
			inv.Warnings = append(inv.Warnings, fmt.Sprintf("unparseable issue date %q", doc.IssuedAt))
		}
	}

	inv.Items = make([]entity.ExtractedLineItem, 0, len(doc.Items))
	for _, it := range doc.Items {
		inv.Items = append(inv.Items, entity.ExtractedLineItem{
			Code:        it.Code,
			Description: it.Description,
			Quantity:    parseMoney(it.Quantity),
			Unit:        it.Unit,
			UnitPrice:   parseMoney(it.UnitPrice),
			TotalPrice:  parseMoney(it.TotalPrice),
			Discount:    parseMoney(it.Discount),
		})
	}
	return inv, dropped, nil
}

func parseMoney(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func clampConfidence(c float32) float32 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
