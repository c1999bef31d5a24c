package provider

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildInvoiceJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. It is passed to providers as a structured-output constraint
// and used locally to validate what comes back before unmarshal.
func BuildInvoiceJSONSchema() map[string]any {
	item := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"code":        map[string]any{"type": "string"},
			"description": map[string]any{"type": "string", "minLength": 1},
			"quantity":    quantityProp(),
			"unit":        map[string]any{"type": "string"},
			"unit_price":  decimalProp(),
			"total_price": decimalProp(),
			"discount":    decimalProp(),
		},
		"required": []string{"description", "quantity", "unit_price", "total_price"},
	}

	props := map[string]any{
		"access_key":  map[string]any{"type": "string", "pattern": `^\d{44}$`},
		"number":      map[string]any{"type": "string"},
		"series":      map[string]any{"type": "string"},
		"issued_at":   map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}([T ]\d{2}:\d{2}(:\d{2})?)?$`},
		"issuer_name": map[string]any{"type": "string", "minLength": 1},
		"issuer_cnpj": map[string]any{"type": "string", "pattern": `^\d{14}$`},
		"total":       decimalProp(),
		"items":       map[string]any{"type": "array", "items": item},
		"confidence":  map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		"warnings":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             []string{"issuer_name", "total", "items"},
	}
}

func decimalProp() map[string]any {
	return map[string]any{
		"type":    "string",
		"pattern": `^-?\d+(\.\d{1,2})?$`,
	}
}

// quantityProp allows three decimals: weighed produce comes as e.g. "0.486".
func quantityProp() map[string]any {
	return map[string]any{
		"type":    "string",
		"pattern": `^\d+(\.\d{1,3})?$`,
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
