// Package charset bridges the hub-declared byte encoding of the legacy
// and modern wire protocols to and from UTF-8, and implements the two
// wire-level escaping flavours layered on top of it.
package charset

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// Codec converts between a hub's configured byte encoding and UTF-8.
// UTF-8 is the default when a hub advertises no encoding.
type Codec struct {
	label string
	enc   encoding.Encoding
}

// New resolves label (e.g. "UTF-8", "windows-1251", "ISO-8859-1") to a
// Codec. An empty label means UTF-8.
func New(label string) (*Codec, error) {
	if label == "" || strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "utf8") {
		return &Codec{label: "UTF-8", enc: encoding.Nop}, nil
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("charset: unknown hub encoding %q: %w", label, err)
	}
	name, _ := htmlindex.Name(enc)
	if name == "" {
		name = label
	}
	return &Codec{label: name, enc: enc}, nil
}

// Label returns the canonical name of the resolved encoding.
func (c *Codec) Label() string {
	return c.label
}

// Encode converts a UTF-8 string to the hub's byte encoding.
func (c *Codec) Encode(s string) ([]byte, error) {
	b, err := c.enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("charset: encode to %s: %w", c.label, err)
	}
	return b, nil
}

// Decode converts hub-encoded bytes to a UTF-8 string.
func (c *Codec) Decode(b []byte) (string, error) {
	out, err := c.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("charset: decode from %s: %w", c.label, err)
	}
	return string(out), nil
}
