// Package credits prices conversions. Balances and transactions live in the
// store; this package only decides what a conversion costs.
package credits

import "strings"

const (
	LegalToPlain = "legal-to-plain"
	PlainToLegal = "plain-to-legal"

	// CharactersPerCredit is the amount of input text one credit buys.
	CharactersPerCredit = 500
)

// ValidConversionType reports whether conversionType is a supported direction.
func ValidConversionType(conversionType string) bool {
	switch strings.TrimSpace(conversionType) {
	case LegalToPlain, PlainToLegal:
		return true
	default:
		return false
	}
}

// Estimate returns the credits a conversion of textLength characters costs.
// Every started block of CharactersPerCredit characters costs one credit.
// legal-to-plain adds one credit for key-term extraction and the summary.
func Estimate(textLength int, conversionType string) int {
	if textLength < 0 {
		textLength = 0
	}
	cost := (textLength + CharactersPerCredit - 1) / CharactersPerCredit
	if conversionType == LegalToPlain {
		cost++
	}
	if cost < 1 {
		cost = 1
	}
	return cost
}
