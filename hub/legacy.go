package hub

import "strings"

// SplitDollarList splits a $$-separated legacy list payload (as used by
// $NickList and $OpList) into its names, dropping any empty trailing
// entry left by a terminating "$$".
func SplitDollarList(payload string) []string {
	if payload == "" {
		return nil
	}
	parts := strings.Split(payload, "$$")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseMyINFO parses the fixed-position $MyINFO payload:
// "<desc><tag>$ $<connection><flag>$<email>$<size>$" (§4.5.1 item 6).
// The tag, if present, is the bracketed suffix of the description and
// is parsed as comma-separated K:V fields; unknown fields are ignored.
func ParseMyINFO(nick, payload string) *User {
	u := &User{Name: nick, NameRaw: nick, HasInfo: true}

	fields := strings.Split(payload, "$")
	descAndTag := ""
	if len(fields) > 0 {
		descAndTag = fields[0]
	}
	if len(fields) > 2 {
		u.Connection = stripTrailingFlagByte(fields[2])
	}
	if len(fields) > 3 {
		u.Email = fields[3]
	}
	if len(fields) > 4 {
		u.ShareSize = parseUint(fields[4])
	}

	desc, tag := splitTag(descAndTag)
	u.Description = desc
	applyTag(u, tag)
	return u
}

// splitTag separates a MyINFO description from its trailing
// "<...>"-bracketed client tag, if present.
func splitTag(s string) (desc, tag string) {
	start := strings.IndexByte(s, '<')
	if start < 0 || !strings.HasSuffix(s, ">") {
		return s, ""
	}
	return s[:start], s[start+1 : len(s)-1]
}

func applyTag(u *User, tag string) {
	if tag == "" {
		return
	}
	for _, field := range strings.Split(tag, ",") {
		kv := strings.SplitN(field, ":", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "M":
			u.Active = kv[1] == "A"
		case "S":
			u.Slots = parseInt(kv[1])
		case "H":
			parts := strings.Split(kv[1], "/")
			if len(parts) == 3 {
				u.HubsNormal = parseInt(parts[0])
				u.HubsRegistered = parseInt(parts[1])
				u.HubsOp = parseInt(parts[2])
			}
		}
	}
}

// stripTrailingFlagByte removes the single trailing speed-flag byte
// NMDC appends to the connection field.
func stripTrailingFlagByte(s string) string {
	if len(s) == 0 {
		return s
	}
	return s[:len(s)-1]
}
