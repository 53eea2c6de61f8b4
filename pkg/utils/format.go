// Package utils provides shared formatting helpers.
package utils

import (
	"fmt"
	"strings"
)

// FormatMoney formats an amount with thousands separators and two decimals.
func FormatMoney(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	str := fmt.Sprintf("%.2f", amount)
	parts := strings.Split(str, ".")

	result := "$" + groupThousands(parts[0]) + "." + parts[1]
	if negative {
		result = "-" + result
	}
	return result
}

func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	var groups []string
	for n > 3 {
		groups = append([]string{s[n-3:]}, groups...)
		s = s[:n-3]
		n = len(s)
	}
	return s + "," + strings.Join(groups, ",")
}

// FormatPercent renders a fraction as a signed percentage with two decimals.
func FormatPercent(fraction float64) string {
	return fmt.Sprintf("%+.2f%%", fraction*100)
}

// FormatShares renders a share count with its symbol.
func FormatShares(shares int, symbol string) string {
	return fmt.Sprintf("%d %s", shares, symbol)
}
