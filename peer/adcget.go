// Package peer implements the client-to-client (C↔C) session: the
// handshake between two directly connected peers and the file-serving
// state machine that answers $ADCGET requests (§4.6).
package peer

import (
	"fmt"
	"strconv"
	"strings"
)

// RequestType discriminates the two $ADCGET flavours.
type RequestType int

const (
	RequestFile RequestType = iota
	RequestTTHL
)

// Request is a parsed $ADCGET line.
type Request struct {
	Type       RequestType
	Identifier string
	Start      int64
	Bytes      int64 // -1 means "until end"
}

// ParseADCGet parses "$ADCGET <type> <id> <start> <bytes>". The
// identifier is taken as everything between the type token and the
// trailing two numeric fields, so an identifier containing spaces is
// not misparsed.
func ParseADCGet(line string) (Request, error) {
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "$ADCGET" {
		return Request{}, fmt.Errorf("peer: malformed ADCGET %q", line)
	}

	var typ RequestType
	switch fields[1] {
	case "file":
		typ = RequestFile
	case "tthl":
		typ = RequestTTHL
	default:
		return Request{}, fmt.Errorf("peer: unknown ADCGET type %q", fields[1])
	}

	start, err := strconv.ParseInt(fields[len(fields)-2], 10, 64)
	if err != nil {
		return Request{}, fmt.Errorf("peer: bad ADCGET start offset: %w", err)
	}
	count, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
	if err != nil {
		return Request{}, fmt.Errorf("peer: bad ADCGET byte count: %w", err)
	}

	identifier := strings.Join(fields[2:len(fields)-2], " ")
	if identifier == "" {
		return Request{}, fmt.Errorf("peer: ADCGET missing identifier")
	}
	return Request{Type: typ, Identifier: identifier, Start: start, Bytes: count}, nil
}
