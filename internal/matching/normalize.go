package matching

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	currencyPattern = regexp.MustCompile(`(?i)(?:\brs\.?|\binr\b|\busd\b|\beur\b|\bgbp\b|[₹$€£¥])`)
	numberToken     = regexp.MustCompile(`\d(?:[\d,_']*\d)?(?:\.\d+)?`)
	spacedNumber    = regexp.MustCompile(`\b\d{1,3}(?:[ \x{00a0}]\d{3})+\b(?:\.\d+)?`)
	plainNumber     = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
	numberSeparator = strings.NewReplacer(",", "", "_", "", "'", "", " ", "", "\u00a0", "", "/-", "")
)

// fold returns a case-folded, NFKC-normalized copy of s. OCR output often
// carries ligatures and full-width digits that compatibility
// normalization maps back to their plain forms.
func fold(s string) string {
	// cases.Caser is stateful, so each call gets its own.
	return cases.Fold().String(norm.NFKC.String(s))
}

// collapseSpace replaces every run of whitespace with a single space.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// canonical is the form used for containment checks in the
// advanced validator.
func canonical(s string) string {
	return collapseSpace(fold(s))
}

// normalizeNumeric strips currency markers and thousands separators and
// returns the canonical decimal form of s. ok is false when s is not a
// number once formatting is removed.
func normalizeNumeric(s string) (string, bool) {
	s = norm.NFKC.String(s)
	s = currencyPattern.ReplaceAllString(s, "")
	s = numberSeparator.Replace(strings.TrimSpace(s))
	if !plainNumber.MatchString(s) {
		return "", false
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}

// numericTokens returns the canonical form of every number in text.
// Space-grouped thousands ("50 000") are added as whole numbers next to
// their separate digit groups.
func numericTokens(text string) []string {
	text = norm.NFKC.String(text)
	raw := numberToken.FindAllString(text, -1)
	raw = append(raw, spacedNumber.FindAllString(text, -1)...)
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if n, ok := normalizeNumeric(tok); ok {
			out = append(out, n)
		}
	}
	return out
}

func trimPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}
