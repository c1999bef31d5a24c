package provider

import (
	"fmt"
	"sort"
	"strings"

	"github.com/notafacil/receipt-pipeline/constants"
)

// BuildExtractionSystemPrompt composes the system message for the vision
// extraction call: strict JSON, Brazilian fiscal fields, decimal hygiene.
func BuildExtractionSystemPrompt() string {
	parts := []string{
		"You are a Brazilian retail receipt (cupom fiscal / NFC-e) parser. Return ONLY JSON that matches the provided JSON Schema.",
		"The photos form ONE receipt; when a receipt spans several photos, merge them into a single document and keep line items in printed order.",
		"access_key is the 44-digit 'chave de acesso'; include it only when fully legible, digits only.",
		"issuer_cnpj is the 14-digit CNPJ, digits only.",
		"Use ISO-8601 dates (YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS) for issued_at.",
		"All money fields are strings with a dot decimal separator and two decimals.",
		"Copy each item description EXACTLY as printed, abbreviations included; do not expand or translate.",
		"Report an overall confidence in [0,1] and list anything illegible or uncertain under warnings.",
		"Never output null. If a field is not present, omit it.",
	}
	return strings.Join(parts, " ")
}

// BuildExtractionUserPrompt states the batch shape alongside the images.
func BuildExtractionUserPrompt(imageCount int) string {
	if imageCount == 1 {
		return "Extract the structured fields from this receipt photo."
	}
	return fmt.Sprintf("Extract the structured fields from this receipt. It was photographed in %d parts, in order.", imageCount)
}

// BuildClassificationPrompt lists the closed taxonomy and the numbered item
// descriptions for the batched classification call. Categories appear in
// their declared order so the prompt stays byte-stable across calls; labels
// outside the known set are appended sorted.
func BuildClassificationPrompt(descriptions []string, taxonomy map[string][]string) string {
	cats := make([]string, 0, len(taxonomy))
	seen := make(map[string]bool, len(taxonomy))
	for _, cat := range constants.CategoryNames() {
		if _, ok := taxonomy[cat]; ok {
			cats = append(cats, cat)
			seen[cat] = true
		}
	}
	var extras []string
	for cat := range taxonomy {
		if !seen[cat] {
			extras = append(extras, cat)
		}
	}
	sort.Strings(extras)
	cats = append(cats, extras...)

	var b strings.Builder
	b.WriteString("Classify each numbered supermarket item into exactly one category/subcategory pair from this closed taxonomy:\n")
	for _, cat := range cats {
		b.WriteString("- ")
		b.WriteString(cat)
		b.WriteString(": ")
		b.WriteString(strings.Join(taxonomy[cat], ", "))
		b.WriteString("\n")
	}
	b.WriteString("\nItems:\n")
	for i, desc := range descriptions {
		b.WriteString(fmt.Sprintf("%d. %s\n", i, desc))
	}
	b.WriteString("\nReturn ONLY JSON shaped {\"items\": [{\"index\": <number from the list>, \"category\": \"...\", \"subcategory\": \"...\"}]}. Skip items you cannot place.")
	return b.String()
}
