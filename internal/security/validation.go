// Package security validates user supplied symbols and keeps credentials out of
// output and logs.
package security

import (
	"regexp"
	"strings"

	"research-terminal/internal/errors"
)

var (
	// Exchange or CoinGecko prefix, then a Yahoo style ticker such as ^GSPC, BRK.B,
	// EURUSD=X, M&M.NS or a CoinGecko id such as usd-coin.
	symbolPattern = regexp.MustCompile(`^(?i:(NSE|BSE|CG):)?[A-Za-z0-9^][A-Za-z0-9.&=^_-]{0,39}$`)

	apiKeyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(api[_-]?key|apikey|x-cg-(demo|pro)-api-key|access[_-]?token|auth[_-]?token|bearer)([=:\s]+["']?)([A-Za-z0-9_\-\.]{6,})`),
		regexp.MustCompile(`sk-[A-Za-z0-9_\-]{20,}`),
	}
)

const maxSymbolLen = 44

// ValidateSymbol rejects symbols no price source accepts before any request is made.
func ValidateSymbol(symbol string) error {
	symbol = strings.TrimSpace(symbol)

	switch {
	case symbol == "":
		return errors.NewValidationError("symbol", symbol, "symbol cannot be empty")
	case len(symbol) > maxSymbolLen:
		return errors.NewValidationError("symbol", symbol, "symbol too long")
	case !symbolPattern.MatchString(symbol):
		return errors.NewValidationError("symbol", symbol, "invalid symbol format")
	}
	return nil
}

// ValidateSymbols validates every symbol and reports the first bad one.
func ValidateSymbols(symbols []string) error {
	for _, s := range symbols {
		if err := ValidateSymbol(s); err != nil {
			return err
		}
	}
	return nil
}

// MaskSensitive masks API keys and tokens echoed back in provider responses.
func MaskSensitive(input string) string {
	result := apiKeyPatterns[0].ReplaceAllStringFunc(input, func(match string) string {
		m := apiKeyPatterns[0].FindStringSubmatch(match)
		return m[1] + m[3] + MaskCredential(m[4])
	})
	return apiKeyPatterns[1].ReplaceAllStringFunc(result, MaskCredential)
}

// MaskCredential keeps the first and last four characters of long secrets.
func MaskCredential(value string) string {
	switch {
	case len(value) == 0:
		return ""
	case len(value) <= 4:
		return strings.Repeat("*", len(value))
	case len(value) <= 8:
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}
