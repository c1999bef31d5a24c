package provider

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notafacil/receipt-pipeline/constants"
)

func TestBuildClassificationPromptCategoryOrder(t *testing.T) {
	prompt := BuildClassificationPrompt([]string{"LEITE INT 1L"}, constants.Taxonomy())

	last := -1
	for _, cat := range constants.CategoryNames() {
		idx := strings.Index(prompt, "- "+cat+": ")
		require.GreaterOrEqual(t, idx, 0, "category %q missing from prompt", cat)
		assert.Greater(t, idx, last, "category %q out of declared order", cat)
		last = idx
	}
}

func TestBuildClassificationPromptNumbersItems(t *testing.T) {
	prompt := BuildClassificationPrompt([]string{"LEITE INT 1L", "OVO GDE 30UN"}, constants.Taxonomy())

	assert.Contains(t, prompt, "0. LEITE INT 1L\n")
	assert.Contains(t, prompt, "1. OVO GDE 30UN\n")
	assert.Contains(t, prompt, `{"items":`)
}

func TestBuildClassificationPromptAppendsUnknownCategories(t *testing.T) {
	taxonomy := constants.Taxonomy()
	taxonomy["Zona Extra"] = []string{"Diversos"}
	taxonomy["Avulsos"] = []string{"Sem grupo"}

	prompt := BuildClassificationPrompt(nil, taxonomy)

	avulsos := strings.Index(prompt, "- Avulsos: ")
	zona := strings.Index(prompt, "- Zona Extra: ")
	outros := strings.Index(prompt, "- Outros: ")
	require.GreaterOrEqual(t, avulsos, 0)
	require.GreaterOrEqual(t, zona, 0)
	require.GreaterOrEqual(t, outros, 0)
	assert.Greater(t, avulsos, outros, "unknown labels come after the known set")
	assert.Greater(t, zona, avulsos, "unknown labels are sorted")
}
