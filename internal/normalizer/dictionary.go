package normalizer

import "regexp"

// compoundRule is one ordered multi-token rewrite. Patterns match the
// uppercase abbreviations receipts actually print; replacements are the full
// commercial names. More specific rules sit earlier in the list because a
// combination's meaning is lost once its tokens are expanded separately
// ("FRANGO INT" is a whole chicken, not an integral one).
type compoundRule struct {
	re   *regexp.Regexp
	repl string
}

var compoundRules = []compoundRule{
	// dairy
	{regexp.MustCompile(`\bLEITE SEMI ?DESN\b`), "Leite Semidesnatado"},
	{regexp.MustCompile(`\bLEITE INT\b`), "Leite Integral"},
	{regexp.MustCompile(`\bLEITE DESN\b`), "Leite Desnatado"},
	{regexp.MustCompile(`\bLEITE COND\b`), "Leite Condensado"},
	{regexp.MustCompile(`\bCR\.? ?(DE )?LEITE\b`), "Creme de Leite"},
	{regexp.MustCompile(`\bQJO (MUSS?|MUCARELA)\b`), "Queijo Mussarela"},
	{regexp.MustCompile(`\bQJO PRATO\b`), "Queijo Prato"},

	// bakery and eggs
	{regexp.MustCompile(`\bPAO (DE )?QJO\b`), "Pão de Queijo"},
	{regexp.MustCompile(`\bPAO FR(ANCES)?\b`), "Pão Francês"},
	{regexp.MustCompile(`\bPAO (DE )?FORMA\b`), "Pão de Forma"},
	{regexp.MustCompile(`\bOVO GDE\b`), "Ovos Grandes"},
	{regexp.MustCompile(`\bOVO BCO\b`), "Ovos Brancos"},

	// coffee and grocery staples
	{regexp.MustCompile(`\bCAFE TORR\.? ?(E )?MOI\b`), "Café Torrado e Moído"},
	{regexp.MustCompile(`\bAZEITE EV\b`), "Azeite Extravirgem"},
	{regexp.MustCompile(`\b(SABAO|SAB) EM PO\b`), "Sabão em Pó"},
	{regexp.MustCompile(`\bPAPEL HIG\b`), "Papel Higiênico"},

	// meat and poultry
	{regexp.MustCompile(`\bFRANGO INT\b`), "Frango Inteiro"},
	{regexp.MustCompile(`\bFILE (DE )?MIG(NON)?\b`), "Filé Mignon"},
	{regexp.MustCompile(`\bPEITO (DE )?FGO\b`), "Peito de Frango"},
	{regexp.MustCompile(`\bCARNE MOI(DA)?\b`), "Carne Moída"},

	// drinks
	{regexp.MustCompile(`\bAGUA MIN\b`), "Água Mineral"},
	{regexp.MustCompile(`\bAGUA C/ ?GAS\b`), "Água com Gás"},
	{regexp.MustCompile(`\bAGUA S/ ?GAS\b`), "Água sem Gás"},
	{regexp.MustCompile(`\bVINHO TTO\b`), "Vinho Tinto"},
	{regexp.MustCompile(`\bVINHO BCO\b`), "Vinho Branco"},
	{regexp.MustCompile(`\bCOCA COLA\b`), "Coca-Cola"},

	// generic "com"/"sem" shorthand, after the specific rules above
	{regexp.MustCompile(`\bS/ ?`), "Sem "},
	{regexp.MustCompile(`\bC/ ?`), "Com "},
}

// Single-token sub-dictionaries, merged at init. Keys are the uppercase
// abbreviations as printed; values carry accents, which keeps a second pass
// from matching its own output.
var sizeAbbrev = map[string]string{
	"PEQ": "Pequeno",
	"GDE": "Grande",
	"GRD": "Grande",
	"MINI": "Mini",
}

var packagingAbbrev = map[string]string{
	"PCT": "Pacote",
	"CX":  "Caixa",
	"FRD": "Fardo",
	"GRF": "Garrafa",
	"SCH": "Sachê",
	"BDJ": "Bandeja",
	"EMB": "Embalagem",
	"LTA": "Lata",
}

var stateAbbrev = map[string]string{
	"INT":   "Integral",
	"DESN":  "Desnatado",
	"CONG":  "Congelado",
	"RESF":  "Resfriado",
	"DEFUM": "Defumado",
	"TORR":  "Torrado",
	"MOI":   "Moído",
	"RAL":   "Ralado",
	"FAT":   "Fatiado",
	"TEMP":  "Temperado",
	"LIQ":   "Líquido",
	"BCO":   "Branco",
	"TTO":   "Tinto",
}

var cutsAbbrev = map[string]string{
	"FGO":     "Frango",
	"FRG":     "Frango",
	"BOV":     "Bovino",
	"SUI":     "Suíno",
	"FILE":    "Filé",
	"LING":    "Linguiça",
	"ACEM":    "Acém",
	"CONTRAF": "Contrafilé",
	"ALCAT":   "Alcatra",
}

var productAbbrev = map[string]string{
	"ACHOC":  "Achocolatado",
	"ACH":    "Achocolatado",
	"REFRI":  "Refrigerante",
	"CERV":   "Cerveja",
	"CHOC":   "Chocolate",
	"BISC":   "Biscoito",
	"MARG":   "Margarina",
	"MANT":   "Manteiga",
	"ACUCAR": "Açúcar",
	"FEIJ":   "Feijão",
	"MAC":    "Macarrão",
	"CAFE":   "Café",
	"PAO":    "Pão",
	"QJO":    "Queijo",
	"QJ":     "Queijo",
	"PRES":   "Presunto",
	"MUSS":   "Mussarela",
	"IOG":    "Iogurte",
	"IOGTE":  "Iogurte",
	"AGUA":   "Água",
	"SABON":  "Sabonete",
	"SABAO":  "Sabão",
	"DET":    "Detergente",
	"AMAC":   "Amaciante",
	"COND":   "Condicionador",
	"DESOD":  "Desodorante",
	"FRAL":   "Fralda",
	"FLDA":   "Fralda",
}

var brandAbbrev = map[string]string{
	"NESTLE":  "Nestlé",
	"GUARANA": "Guaraná",
	"ITAMBE":  "Itambé",
	"UNIAO":   "União",
	"PILAO":   "Pilão",
	"YPE":     "Ypê",
}

// singleLetterDenylist holds ambiguous one-letter tokens that are never
// expanded in isolation, only through compound or context rules.
var singleLetterDenylist = map[string]struct{}{
	"F": {}, "P": {}, "C": {}, "M": {}, "G": {}, "S": {}, "T": {}, "L": {}, "D": {},
}

// deliVocabulary lists the deli/cheese/cold-cuts words for which a trailing
// "F" means "Fatiado". Checked against the first token of the phrase, either
// directly or through its dictionary expansion.
var deliVocabulary = map[string]struct{}{
	"PRESUNTO":    {},
	"QUEIJO":      {},
	"MUSSARELA":   {},
	"MUCARELA":    {},
	"MORTADELA":   {},
	"SALAME":      {},
	"APRESUNTADO": {},
	"BLANQUET":    {},
	"PROVOLONE":   {},
	"PARMESAO":    {},
	"CHEDDAR":     {},
	"COPA":        {},
	"LOMBO":       {},
	"PERNIL":      {},
	"BACON":       {},
	"PEITO":       {},
	"CHESTER":     {},
	"SALSICHAO":   {},
}

var mergedAbbrev = mergeDicts(
	sizeAbbrev,
	packagingAbbrev,
	stateAbbrev,
	cutsAbbrev,
	productAbbrev,
	brandAbbrev,
)

func mergeDicts(dicts ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, d := range dicts {
		for k, v := range d {
			out[k] = v
		}
	}
	return out
}
