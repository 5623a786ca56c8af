package fetchutil

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var priceRe = regexp.MustCompile(`\$?([\d,]+(\.\d{2})?)`)

// ParsePrice extracts the first amount like "$1,299.99" from text.
func ParsePrice(text string) *float64 {
	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	digits := strings.ReplaceAll(m[1], ",", "")
	if digits == "" {
		return nil
	}
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return nil
	}
	return &v
}

// NormalizeName trims, collapses inner whitespace and applies NFC so the
// same title from two pages compares equal.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}

func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
