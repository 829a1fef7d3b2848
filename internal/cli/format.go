package cli

import (
	"fmt"
	"math"
	"strings"
	"time"

	"research-terminal/internal/models"
	"research-terminal/pkg/utils"
)

// FormatIndianCurrency formats a number in Indian currency format (lakhs, crores).
func FormatIndianCurrency(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	str := fmt.Sprintf("%.2f", amount)
	intPart, decPart, _ := strings.Cut(str, ".")

	result := "₹" + formatIndianNumber(intPart) + "." + decPart
	if negative {
		result = "-" + result
	}
	return result
}

// formatIndianNumber groups an integer string as 1,00,00,000 instead of 10,000,000.
func formatIndianNumber(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	result := s[n-3:]
	s = s[:n-3]
	for len(s) > 0 {
		if len(s) >= 2 {
			result = s[len(s)-2:] + "," + result
			s = s[:len(s)-2]
		} else {
			result = s + "," + result
			s = ""
		}
	}
	return result
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	if math.IsNaN(value) {
		return "-"
	}
	return utils.FormatPercent(value)
}

// FormatWeight formats a fractional weight as a percentage, e.g. 0.125 -> 12.50%.
func FormatWeight(w float64) string {
	if math.IsNaN(w) {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", w*100)
}

// FormatMoney formats an allocation amount. Indian listings use lakh grouping.
func FormatMoney(amount float64, inr bool) string {
	if inr {
		return FormatIndianCurrency(amount)
	}
	return utils.FormatAmount(amount)
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// TruncateString truncates a string to max runes with ellipsis.
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

const maxCellWidth = 70

var compactColumns = []string{"cap", "volume", "tvl", "supply", "balance", "value usd", "addresses"}

// isChangeColumn reports whether a column holds signed changes worth coloring.
func isChangeColumn(header string) bool {
	h := strings.ToLower(header)
	return strings.Contains(h, "%") || strings.Contains(h, "change")
}

// FormatCellFor renders one table cell, choosing the number format from the column header.
func FormatCellFor(header string, v interface{}) string {
	h := strings.ToLower(header)
	switch c := v.(type) {
	case nil:
		return "-"
	case string:
		if c == "" {
			return "-"
		}
		return TruncateString(c, maxCellWidth)
	case int:
		return utils.FormatCount(int64(c))
	case int64:
		return utils.FormatCount(c)
	case float64:
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return "-"
		}
		switch {
		case strings.Contains(h, "%"):
			return FormatPercent(c)
		case h == "weight" || h == "current" || strings.Contains(h, "contribution") || h == "total":
			return FormatWeight(c)
		case containsAny(h, compactColumns):
			return utils.FormatCompact(c)
		case strings.Contains(h, "price") || h == "open" || h == "high" || h == "low" || h == "close":
			return utils.FormatSmallPrice(c)
		case strings.Contains(h, "amount"):
			return utils.FormatAmount(c)
		case math.Abs(c) >= 1000:
			return utils.FormatAmount(c)
		default:
			return fmt.Sprintf("%.4f", c)
		}
	}
	return models.FormatCell(v)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
