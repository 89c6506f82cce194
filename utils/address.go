package utils

import (
	"regexp"
	"strings"
)

// Same shape the contracts use: 0x followed by 20 hex bytes.
var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// IsHexAddress reports whether s looks like a wallet address.
func IsHexAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// NormalizeAddress lowercases an address so (game, player) keys compare
// consistently regardless of checksum casing.
func NormalizeAddress(s string) string {
	return strings.ToLower(s)
}
