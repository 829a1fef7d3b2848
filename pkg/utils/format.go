// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
)

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatCompact formats large amounts with K/M/B/T suffixes, e.g. 1.23B.
func FormatCompact(amount float64) string {
	if math.IsNaN(amount) {
		return "-"
	}
	abs := math.Abs(amount)
	switch {
	case abs >= 1e12:
		return fmt.Sprintf("%.2fT", amount/1e12)
	case abs >= 1e9:
		return fmt.Sprintf("%.2fB", amount/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.2fM", amount/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.2fK", amount/1e3)
	default:
		return humanize.FormatFloat("#,###.##", amount)
	}
}

// FormatAmount formats a number with thousands separators and two decimals.
func FormatAmount(amount float64) string {
	if math.IsNaN(amount) {
		return "-"
	}
	return humanize.CommafWithDigits(math.Round(amount*100)/100, 2)
}

// FormatUSD formats a dollar amount, switching to compact notation above a million.
func FormatUSD(amount float64) string {
	if math.Abs(amount) >= 1e6 {
		return "$" + FormatCompact(amount)
	}
	return "$" + FormatAmount(amount)
}

// FormatCount formats an integer count with thousands separators.
func FormatCount(n int64) string {
	return humanize.Comma(n)
}

// FormatSmallPrice keeps significant digits for sub-cent token prices.
func FormatSmallPrice(price float64) string {
	abs := math.Abs(price)
	switch {
	case abs == 0:
		return "0"
	case abs < 0.0001:
		return fmt.Sprintf("%.8f", price)
	case abs < 1:
		return fmt.Sprintf("%.6f", price)
	default:
		return FormatAmount(price)
	}
}

// SnakeUpper converts a header such as "Asset Class" into ASSET_CLASS.
func SnakeUpper(s string) string {
	s = strings.TrimSpace(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '.'
	})
	return strings.ToUpper(strings.Join(fields, "_"))
}
