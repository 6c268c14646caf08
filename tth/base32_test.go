package tth

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for i := 0; i < 64; i++ {
		var b [HashLen]byte
		if _, err := rand.Read(b[:]); err != nil {
			t.Fatalf("rand.Read: %v", err)
		}

		s := Encode(b[:])
		if len(s) != EncodedLen {
			t.Fatalf("Encode() length = %d, want %d", len(s), EncodedLen)
		}

		decoded, err := Decode(s)
		if err != nil {
			t.Fatalf("Decode(%q) error: %v", s, err)
		}
		if !bytes.Equal(decoded[:], b[:]) {
			t.Fatalf("Decode(Encode(b)) = %x, want %x", decoded, b)
		}
	}
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	// Every canonical 39-char string drawn from A-Z2-7 should survive Decode
	// then Encode. 39 chars carry 195 bits but a digest is 192, so the last
	// char holds 2 data bits and 3 zero padding bits: only A, I, Q and Y are
	// canonical there.
	alphabet := "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"
	base := make([]byte, EncodedLen)
	for i := range base {
		base[i] = alphabet[i%len(alphabet)]
	}

	for shift := 0; shift < len(alphabet); shift++ {
		s := make([]byte, EncodedLen)
		for i := range s {
			s[i] = alphabet[(i+shift)%len(alphabet)]
		}
		s[EncodedLen-1] = alphabet[((EncodedLen-1+shift)%len(alphabet))&^7]
		str := string(s)

		decoded, err := Decode(str)
		if err != nil {
			t.Fatalf("Decode(%q) error: %v", str, err)
		}
		reencoded := Encode(decoded[:])
		if reencoded != str {
			t.Fatalf("Encode(Decode(%q)) = %q, want %q", str, reencoded, str)
		}
	}
}

func TestDecodeRejectsInvalidCharacters(t *testing.T) {
	tests := []struct {
		name string
		s    string
	}{
		{name: "wrong length", s: "AAAA"},
		{name: "lowercase not allowed", s: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
		{name: "digit 0 not in alphabet", s: "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA0"},
		{name: "digit 1 not in alphabet", s: "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA1"},
		{name: "punctuation", s: "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.s); err == nil {
				t.Errorf("Decode(%q) succeeded, want error", tt.s)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	good := Encode(make([]byte, HashLen))
	if !IsValid(good) {
		t.Errorf("IsValid(%q) = false, want true", good)
	}
	if IsValid("too-short") {
		t.Errorf("IsValid(too-short) = true, want false")
	}
}
