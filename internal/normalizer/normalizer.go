// Package normalizer expands abbreviated receipt item descriptions into
// legible commercial product names.
//
// Normalize is pure and deterministic: same input, same output, no I/O. It is
// also idempotent, so re-running a job over already-normalized text changes
// nothing.
package normalizer

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var (
	// quantity + unit tokens ("5KG", "500 ML", "1L") are protected before any
	// rewriting so no rule can corrupt an embedded measure.
	reMeasure = regexp.MustCompile(`(?i)\b\d+(?:[.,]\d+)?\s?(?:KG|MG|ML|CL|LT|UNID|UND|UN|DZ|CM|MM|G|L|M)\b`)
	reSpaces  = regexp.MustCompile(`\s{2,}`)
)

const placeholderMark = "\x00"

// Normalize expands receipt abbreviations in raw ("LEITE INT PRM 1L" →
// "Leite Integral Prm 1L"). Total over any input: empty input yields "".
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	s, measures := protectMeasures(s)

	// compound rules first: multi-word combinations lose their meaning once
	// split into single-token expansions
	for _, rule := range compoundRules {
		s = rule.re.ReplaceAllString(s, rule.repl)
	}

	s = applySlicedSuffix(s)
	s = expandTokens(s)
	s = restoreMeasures(s, measures)

	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func protectMeasures(s string) (string, []string) {
	var measures []string
	out := reMeasure.ReplaceAllStringFunc(s, func(m string) string {
		measures = append(measures, m)
		return fmt.Sprintf("%s%d%s", placeholderMark, len(measures)-1, placeholderMark)
	})
	return out, measures
}

func restoreMeasures(s string, measures []string) string {
	for i, m := range measures {
		s = strings.Replace(s, fmt.Sprintf("%s%d%s", placeholderMark, i, placeholderMark), m, 1)
	}
	return s
}

// applySlicedSuffix expands a trailing bare "F" to "Fatiado", but only when
// the phrase starts with a known deli/cheese/cold-cuts word. Anywhere else
// the single letter is too ambiguous to touch.
func applySlicedSuffix(s string) string {
	fields := strings.Fields(s)
	if len(fields) < 2 || strings.ToUpper(fields[len(fields)-1]) != "F" {
		return s
	}
	first := strings.ToUpper(trimTokenPunct(fields[0]))
	if _, ok := deliVocabulary[first]; !ok {
		exp, known := mergedAbbrev[first]
		if !known {
			return s
		}
		if _, ok := deliVocabulary[strings.ToUpper(exp)]; !ok {
			return s
		}
	}
	fields[len(fields)-1] = "Fatiado"
	return strings.Join(fields, " ")
}

// expandTokens is the single-token fallback: dictionary lookup, denylist for
// ambiguous one-letter tokens, and title-casing of leftover all-caps words.
func expandTokens(s string) string {
	fields := strings.Fields(s)
	for i, tok := range fields {
		if strings.Contains(tok, placeholderMark) {
			continue
		}
		core := trimTokenPunct(tok)
		if core == "" {
			continue
		}
		key := strings.ToUpper(core)
		if _, denied := singleLetterDenylist[key]; denied && len(core) == 1 {
			continue
		}
		if exp, ok := mergedAbbrev[key]; ok {
			fields[i] = strings.Replace(tok, core, exp, 1)
			continue
		}
		if isAllCapsWord(core) && len([]rune(core)) > 2 {
			fields[i] = strings.Replace(tok, core, titleCase(core), 1)
		}
	}
	return strings.Join(fields, " ")
}

func trimTokenPunct(tok string) string {
	return strings.Trim(tok, ".,;:")
}

// isAllCapsWord reports whether every rune is an uppercase letter.
// Tokens with digits or symbols pass through untouched.
func isAllCapsWord(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) || !unicode.IsUpper(r) {
			return false
		}
	}
	return s != ""
}

func titleCase(s string) string {
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
