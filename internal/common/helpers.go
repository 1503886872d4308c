package common

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	XRPDecimals = 6 // XRP has 6 decimals (drops)
)

// DropsToXRP converts a drops amount to an XRP decimal string without float precision loss
func DropsToXRP(drops uint64) string {
	return formatWithDecimals(drops, XRPDecimals)
}

// ParseDrops parses the integer drops string returned by a ledger node
func ParseDrops(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty drops amount")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid drops amount %q: %w", s, err)
	}
	return n, nil
}

// DropsToXRPFloat converts drops to a float XRP value.
// Use only for display and JSON snapshots, never for amounts that are signed or compared.
func DropsToXRPFloat(drops uint64) float64 {
	f, _ := strconv.ParseFloat(DropsToXRP(drops), 64)
	return f
}

// formatWithDecimals converts integer to decimal string by inserting decimal point
// Example: formatWithDecimals(5000000, 6) = "5.000000"
func formatWithDecimals(value uint64, decimals int) string {
	s := strconv.FormatUint(value, 10)

	// Pad with leading zeros if needed
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}

	// Insert decimal point
	pos := len(s) - decimals
	return s[:pos] + "." + s[pos:]
}
