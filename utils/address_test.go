package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsHexAddress(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"lowercase", "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", true},
		{"mixed case checksum", "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B", true},
		{"missing prefix", "ab5801a7d398351b8be11c439e05c5b3259aec9b", false},
		{"too short", "0xab5801", false},
		{"too long", "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa00", false},
		{"non hex", "0xzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsHexAddress(tt.input))
		})
	}
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t,
		"0xab5801a7d398351b8be11c439e05c5b3259aec9b",
		NormalizeAddress("0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"))
}
