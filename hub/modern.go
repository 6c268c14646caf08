package hub

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dcpeer/dcpeer/charset"
	"github.com/dcpeer/dcpeer/tth"
)

// Frame is one parsed modern-protocol line: "TCMD param...".
type Frame struct {
	Tag    byte // one of B,I,H,D,E,F,U
	Cmd    string
	Params []string
}

// ParseFrame splits a newline-delimited modern frame into its
// addressing tag, 3-letter command, and space-separated parameters.
// Parameter-internal escapes (\s \n \\) are left intact; callers
// unescape individual field values with charset.UnescapeModern once
// they know a value's boundaries.
func ParseFrame(line string) (Frame, error) {
	if len(line) < 4 {
		return Frame{}, fmt.Errorf("hub: modern frame %q too short", line)
	}
	tag := line[0]
	cmd := line[1:4]
	rest := strings.TrimPrefix(line[4:], " ")

	var params []string
	if rest != "" {
		params = splitUnescaped(rest)
	}
	return Frame{Tag: tag, Cmd: cmd, Params: params}, nil
}

// splitUnescaped splits on single spaces, but not on a \-escaped space
// ("\s" is a literal space encoded within a field, per §4.2).
func splitUnescaped(s string) []string {
	var out []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			cur.WriteByte(c)
			cur.WriteByte(s[i+1])
			i++
			continue
		}
		if c == ' ' {
			out = append(out, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(c)
	}
	out = append(out, cur.String())
	return out
}

// ParseBINF parses a BINF frame's parameters (source sid followed by
// two-letter-keyed fields with no separator between key and value) into
// a User. The AS field is intentionally mapped only to AutoSlotBps —
// the original parses AS into both Slots and AutoSlotBps, clobbering
// Slots; the spec prescribes the non-clobbering fix (REDESIGN FLAGS).
func ParseBINF(params []string) (SID, *User, error) {
	if len(params) < 1 {
		return SID{}, nil, fmt.Errorf("hub: BINF missing source sid")
	}
	sid, err := ParseSID(params[0])
	if err != nil {
		return SID{}, nil, fmt.Errorf("hub: BINF: %w", err)
	}

	u := &User{SessionID: sid, HasInfo: true}
	for _, raw := range params[1:] {
		if len(raw) < 2 {
			continue
		}
		key, value := raw[:2], raw[2:]
		value, err := charset.UnescapeModern(value)
		if err != nil {
			return SID{}, nil, fmt.Errorf("hub: BINF field %s: %w", key, err)
		}

		switch key {
		case "NI":
			u.Name = value
			u.NameRaw = value
		case "DE":
			u.Description = value
		case "VE":
			u.Client = value
		case "EM":
			u.Email = value
		case "ID":
			if len(value) == tth.EncodedLen {
				digest, err := tth.ParseDigest(value)
				if err == nil {
					u.CID = digest
					u.HasCID = true
				}
			}
		case "SS":
			u.ShareSize = parseUint(value)
		case "HN":
			u.HubsNormal = parseInt(value)
		case "HR":
			u.HubsRegistered = parseInt(value)
		case "HO":
			u.HubsOp = parseInt(value)
		case "SL":
			u.Slots = parseInt(value)
		case "AS":
			u.AutoSlotBps = parseInt(value)
		case "SU":
			if strings.Contains(value, "TCP4") || strings.Contains(value, "TCP6") {
				u.Active = true
			}
		case "CT":
			if parseInt(value) >= 4 {
				u.IsOp = true
			}
		}
	}
	return sid, u, nil
}

func parseInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func parseUint(s string) uint64 {
	n, _ := strconv.ParseUint(s, 10, 64)
	return n
}
