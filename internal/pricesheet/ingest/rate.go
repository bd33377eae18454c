package ingest

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// Currency words that prefix rates in INR sheets ("Rs. 1,500", "INR 900").
var currencyPrefixes = []string{"rs.", "rs", "inr"}

// NormalizeRate turns a raw rate cell into a number. Currency symbols, ASCII
// letters (as in "2000+GST"), '+', digit-group separators and whitespace are
// dropped before parsing. Unparseable or negative input yields 0.
func NormalizeRate(raw string) float64 {
	v, _ := ParseRate(raw)
	return v
}

// ParseRate is NormalizeRate reporting whether the cell held a usable number.
func ParseRate(raw string) (float64, bool) {
	return parseRate(raw, true)
}

// parseStrictRate is NormalizeRate without letter stripping: a cell holding
// words ("Zone 3") is rejected rather than read as 3.
func parseStrictRate(raw string) float64 {
	v, _ := parseRate(raw, false)
	return v
}

func parseRate(raw string, dropLetters bool) (float64, bool) {
	s := strings.TrimSpace(norm.NFKC.String(raw))
	s = trimCurrencyPrefix(s)
	s = strings.TrimSuffix(s, "/-")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.Is(unicode.Sc, r):
		case r == '+' || r == ',' || r == '_' || r == '\'':
		case unicode.IsSpace(r):
		case r < utf8.RuneSelf && unicode.IsLetter(r):
			if !dropLetters {
				return 0, false
			}
		default:
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil || d.IsNegative() {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

func trimCurrencyPrefix(s string) string {
	lower := strings.ToLower(s)
	for _, p := range currencyPrefixes {
		if strings.HasPrefix(lower, p) {
			return strings.TrimSpace(s[len(p):])
		}
	}
	return s
}
