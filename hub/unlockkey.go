package hub

import (
	"fmt"
	"strings"
)

// magicBytes are the bytes the legacy unlock-key algorithm escapes as
// "/%DCN<dec>%/" rather than emitting literally — NUL, 0x05, '$', '`',
// '|' and '~', which collide with wire-format control bytes.
var magicBytes = map[byte]bool{
	0: true, 5: true, 36: true, 96: true, 124: true, 126: true,
}

// ComputeUnlockKey implements the legacy $Lock/$Key handshake (§4.5.3).
// lock must be 1-255 bytes; the computed $Key value is returned as a
// string (itself ASCII, safe to send raw on the legacy wire).
func ComputeUnlockKey(lock string) (string, error) {
	s := []byte(lock)
	n := len(s)
	if n < 1 || n > 255 {
		return "", fmt.Errorf("hub: lock length %d out of range [1,255]", n)
	}

	k := make([]byte, n)
	k[0] = s[0] ^ s[n-1] ^ secondToLast(s, n) ^ 5
	for i := 1; i < n; i++ {
		k[i] = s[i] ^ s[i-1]
	}
	for i := range k {
		k[i] = (k[i] << 4) | (k[i] >> 4)
	}

	var b strings.Builder
	for _, c := range k {
		if magicBytes[c] {
			b.WriteString("/%DCN")
			b.WriteString(fmt.Sprintf("%03d", int(c)))
			b.WriteString("%/")
		} else {
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// secondToLast returns S[|S|-2], or S[0] when the lock is a single
// byte (S[-2] would otherwise be out of range).
func secondToLast(s []byte, n int) byte {
	if n < 2 {
		return s[0]
	}
	return s[n-2]
}
