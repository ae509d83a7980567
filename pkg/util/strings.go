package util

import (
	"strconv"
	"strings"
)

// ParseIntDefault parses s or returns def if empty/invalid.
func ParseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// NormalizeSymbol upper-cases and trims a symbol. Binance sends upper case
// while stream names are lower case.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// SplitPair splits "A/B" into its legs.
func SplitPair(pair string) (string, string, bool) {
	a, b, ok := strings.Cut(pair, "/")
	if !ok || a == "" || b == "" {
		return "", "", false
	}
	return a, b, true
}
