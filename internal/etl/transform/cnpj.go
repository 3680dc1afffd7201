// Package transform holds the field-level normalizers and validators used by
// the ETL stages.
package transform

import "strings"

// CNPJLength is the width of a normalized CNPJ.
const CNPJLength = 14

var (
	cnpjFirstWeights  = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjSecondWeights = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// NormalizeCNPJ strips everything but digits and left-pads with zeros to 14.
// "11.444.777/0001-61" → "11444777000161". Returns "" when no digit is present.
// Inputs longer than 14 digits are returned unpadded and will fail validation.
func NormalizeCNPJ(raw string) string {
	var b strings.Builder
	b.Grow(CNPJLength)
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if len(digits) < CNPJLength {
		digits = strings.Repeat("0", CNPJLength-len(digits)) + digits
	}
	return digits
}

// ValidateCNPJ reports whether id is a normalized 14-digit CNPJ whose two
// trailing check digits match the weighted mod-11 checksum of its base.
// Repdigits ("00000000000000", "11111111111111", ...) are always rejected.
func ValidateCNPJ(id string) bool {
	if len(id) != CNPJLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	if isRepdigit(id) {
		return false
	}

	first := cnpjCheckDigit(id[:12], cnpjFirstWeights)
	second := cnpjCheckDigit(id[:12]+string(first), cnpjSecondWeights)

	return id[12] == first && id[13] == second
}

// cnpjCheckDigit returns the check digit for base under the given weights.
func cnpjCheckDigit(base string, weights []int) byte {
	sum := 0
	for i, w := range weights {
		sum += int(base[i]-'0') * w
	}
	rem := sum % 11
	if rem < 2 {
		return '0'
	}
	return byte('0' + 11 - rem)
}

func isRepdigit(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}
