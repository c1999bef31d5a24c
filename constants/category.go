package constants

import "strings"

type Category string

const (
	Alimentos      Category = "Alimentos"
	Bebidas        Category = "Bebidas"
	Limpeza        Category = "Limpeza"
	HigieneEBeleza Category = "Higiene e Beleza"
	CasaEBazar     Category = "Casa e Bazar"
	Pet            Category = "Pet"
	Infantil       Category = "Infantil"
	Farmacia       Category = "Farmácia"
	Outros         Category = "Outros"
)

// taxonomy is the closed category → subcategory set the classifier is allowed
// to pick from. Responses outside it are dropped per item.
var taxonomy = map[Category][]string{
	Alimentos: {
		"Hortifrúti",
		"Carnes e Aves",
		"Peixaria",
		"Padaria",
		"Laticínios e Frios",
		"Mercearia",
		"Congelados",
		"Doces e Sobremesas",
	},
	Bebidas: {
		"Não Alcoólicas",
		"Alcoólicas",
	},
	Limpeza: {
		"Roupas",
		"Cozinha",
		"Geral",
	},
	HigieneEBeleza: {
		"Higiene Pessoal",
		"Cabelos",
		"Cosméticos",
	},
	CasaEBazar: {
		"Utilidades",
		"Descartáveis",
		"Papelaria",
	},
	Pet: {
		"Alimentação",
		"Higiene",
	},
	Infantil: {
		"Fraldas e Higiene",
		"Alimentação",
	},
	Farmacia: {
		"Medicamentos",
		"Suplementos",
	},
	Outros: {
		"Outros",
	},
}

// Taxonomy returns the category → subcategories map with stable category
// ordering, as plain strings for prompt building.
func Taxonomy() map[string][]string {
	out := make(map[string][]string, len(taxonomy))
	for cat, subs := range taxonomy {
		out[string(cat)] = append([]string(nil), subs...)
	}
	return out
}

// CategoryNames returns every category label in declaration order.
func CategoryNames() []string {
	return []string{
		string(Alimentos),
		string(Bebidas),
		string(Limpeza),
		string(HigieneEBeleza),
		string(CasaEBazar),
		string(Pet),
		string(Infantil),
		string(Farmacia),
		string(Outros),
	}
}

// CanonicalPair maps a classifier answer onto the exact taxonomy labels,
// fixing casing drift. ok is false when the pair is not in the taxonomy.
func CanonicalPair(category, subcategory string) (string, string, bool) {
	for cat, subs := range taxonomy {
		if !strings.EqualFold(string(cat), strings.TrimSpace(category)) {
			continue
		}
		for _, sub := range subs {
			if strings.EqualFold(sub, strings.TrimSpace(subcategory)) {
				return string(cat), sub, true
			}
		}
	}
	return "", "", false
}
