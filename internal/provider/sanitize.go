package provider

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	reAccessKey = regexp.MustCompile(`^\d{44}$`)
	reCNPJ      = regexp.MustCompile(`^\d{14}$`)
	reDecimal   = regexp.MustCompile(`^-?\d+(\.\d{1,2})?$`)
	reNonDigit  = regexp.MustCompile(`\D`)
	reQuantity  = regexp.MustCompile(`^\d+(\.\d{1,3})?$`)
)

// SanitizeOptionalFields removes or normalizes optional fields that don't meet
// the stricter schema, so the overall document can still validate. Required
// fields (issuer_name, total, items' descriptions) are never touched.
func SanitizeOptionalFields(doc []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, nil, err
	}

	var dropped []string

	// access_key: strip separators models love to add; drop when not 44 digits
	if v, ok := m["access_key"].(string); ok {
		s := reNonDigit.ReplaceAllString(v, "")
		if !reAccessKey.MatchString(s) {
			delete(m, "access_key")
			dropped = append(dropped, "access_key")
		} else {
			m["access_key"] = s
		}
	}

	// issuer_cnpj: same treatment, 14 digits or gone
	if v, ok := m["issuer_cnpj"].(string); ok {
		s := reNonDigit.ReplaceAllString(v, "")
		if !reCNPJ.MatchString(s) {
			delete(m, "issuer_cnpj")
			dropped = append(dropped, "issuer_cnpj")
		} else {
			m["issuer_cnpj"] = s
		}
	}

	// issued_at: normalize "YYYY-MM-DD HH:MM" spacing, drop anything else odd
	if v, ok := m["issued_at"].(string); ok {
		s := strings.TrimSpace(v)
		if s == "" || strings.EqualFold(s, "null") {
			delete(m, "issued_at")
			dropped = append(dropped, "issued_at")
		} else {
			m["issued_at"] = s
		}
	}

	// total stays required, but models return numbers instead of strings
	if v, ok := m["total"]; ok {
		if s, fixed := coerceDecimal(v); fixed {
			m["total"] = s
		}
	}

	// per-item money normalization
	if items, ok := m["items"].([]any); ok {
		for _, it := range items {
			im, ok := it.(map[string]any)
			if !ok {
				continue
			}
			for _, k := range []string{"unit_price", "total_price", "discount"} {
				v, present := im[k]
				if !present {
					continue
				}
				switch {
				case v == nil:
					delete(im, k)
				default:
					if s, fixed := coerceDecimal(v); fixed {
						im[k] = s
					} else if s, ok := v.(string); !ok || !reDecimal.MatchString(s) {
						delete(im, k)
					}
				}
			}
			if v, present := im["quantity"]; present {
				if s, fixed := coerceQuantity(v); fixed {
					im["quantity"] = s
				}
			}
		}
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, nil, err
	}
	return b, dropped, nil
}

// coerceDecimal turns a float64 or loose numeric string into a two-decimal
// string. fixed is false when the value is unusable as-is.
func coerceDecimal(v any) (string, bool) {
	switch t := v.(type) {
	case float64:
		return fmt.Sprintf("%.2f", t), true
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(t, ",", "."))
		if reDecimal.MatchString(s) {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return fmt.Sprintf("%.2f", f), true
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fmt.Sprintf("%.2f", f), true
		}
	}
	return "", false
}

func coerceQuantity(v any) (string, bool) {
	switch t := v.(type) {
	case float64:
		s := strconv.FormatFloat(t, 'f', -1, 64)
		if reQuantity.MatchString(s) {
			return s, true
		}
		return fmt.Sprintf("%.3f", t), true
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(t, ",", "."))
		if reQuantity.MatchString(s) {
			return s, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fmt.Sprintf("%.3f", f), true
		}
	}
	return "", false
}
