// protocol/commitment.go
package protocol

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/crypto/sha3"
)

// HashLen is the size of commitments, secrets and salts.
const HashLen = 32

var ErrCoordinateRange = errors.New("coordinate outside int32 range")

// Commit hashes (latE6, lonE6, salt) exactly the way the game contract does:
// Keccak-256 over the ABI encoding of (int32, int32, bytes32) — three 32-byte
// words, the integers sign-extended big-endian.
func Commit(latE6, lonE6 int64, salt [HashLen]byte) ([HashLen]byte, error) {
	var out [HashLen]byte
	if latE6 < math.MinInt32 || latE6 > math.MaxInt32 ||
		lonE6 < math.MinInt32 || lonE6 > math.MaxInt32 {
		return out, ErrCoordinateRange
	}

	buf := make([]byte, 0, 3*32)
	buf = append(buf, abiInt32(int32(latE6))...)
	buf = append(buf, abiInt32(int32(lonE6))...)
	buf = append(buf, salt[:]...)

	h := sha3.NewLegacyKeccak256()
	h.Write(buf)
	copy(out[:], h.Sum(nil))
	return out, nil
}

// Verify recomputes the commitment from plaintext and compares all 32 bytes.
func Verify(latE6, lonE6 int64, salt, commitment [HashLen]byte) bool {
	got, err := Commit(latE6, lonE6, salt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(got[:], commitment[:]) == 1
}

// abiInt32 widens v to a 32-byte ABI word (big-endian two's complement).
func abiInt32(v int32) []byte {
	word := make([]byte, 32)
	if v < 0 {
		for i := 0; i < 28; i++ {
			word[i] = 0xff
		}
	}
	binary.BigEndian.PutUint32(word[28:], uint32(v))
	return word
}

// NewSalt mints a cryptographically random 32-byte value, used both for
// host secrets and player bet salts.
func NewSalt() ([HashLen]byte, error) {
	var s [HashLen]byte
	if _, err := rand.Read(s[:]); err != nil {
		return s, fmt.Errorf("failed to read random salt: %w", err)
	}
	return s, nil
}

// ParseHex32 parses a 0x-prefixed 64-hex-digit value — the varchar(66) shape
// commitments and salts travel as on the wire.
func ParseHex32(s string) ([HashLen]byte, error) {
	var out [HashLen]byte
	trimmed := strings.TrimPrefix(s, "0x")
	if len(trimmed) == len(s) || len(trimmed) != 2*HashLen {
		return out, fmt.Errorf("expected 0x-prefixed %d-byte hex value, got %q", HashLen, s)
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("invalid hex value %q: %w", s, err)
	}
	copy(out[:], raw)
	return out, nil
}

// FormatHex32 renders a 32-byte value in the 0x-prefixed wire shape.
func FormatHex32(v [HashLen]byte) string {
	return "0x" + hex.EncodeToString(v[:])
}
