// Package tth implements the base32 hash-string encoding and Tiger Tree
// Hash (TTH) helpers used throughout the wire protocol: every file
// identifier, CID, PID, and session id on the wire is one of these
// base32 strings.
package tth

import (
	"encoding/base32"
	"fmt"
)

// HashLen is the length in bytes of a TTH, CID, or PID digest.
const HashLen = 24

// EncodedLen is the length in characters of the base32 rendering of a
// HashLen-byte digest (RFC 4648 base32, no padding, uppercase).
const EncodedLen = 39

var enc = base32.StdEncoding.WithPadding(base32.NoPadding)

// Encode renders a 24-byte digest as the 39-character base32 string used
// on the wire. It panics if b is not exactly HashLen bytes — callers
// always hold a fixed-size [24]byte and should slice it explicitly.
func Encode(b []byte) string {
	if len(b) != HashLen {
		panic(fmt.Sprintf("tth: Encode: want %d bytes, got %d", HashLen, len(b)))
	}
	return enc.EncodeToString(b)
}

// Decode parses a 39-character base32 string into a 24-byte digest,
// rejecting any character outside A–Z2–7 and any string of the wrong
// length — these are the only hash-string forms accepted on the wire.
func Decode(s string) ([24]byte, error) {
	var out [24]byte
	if len(s) != EncodedLen {
		return out, fmt.Errorf("tth: invalid base32 length %d, want %d", len(s), EncodedLen)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '2' && c <= '7') {
			return out, fmt.Errorf("tth: invalid base32 character %q at offset %d", c, i)
		}
	}
	decoded, err := enc.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("tth: base32 decode: %w", err)
	}
	if len(decoded) != HashLen {
		return out, fmt.Errorf("tth: decoded length %d, want %d", len(decoded), HashLen)
	}
	copy(out[:], decoded)
	return out, nil
}

// IsValid reports whether s is a syntactically valid 39-character base32
// hash string, without decoding it.
func IsValid(s string) bool {
	if len(s) != EncodedLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '2' && c <= '7') {
			return false
		}
	}
	return true
}
