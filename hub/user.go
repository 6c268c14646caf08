// Package hub implements the hub session state machine for both wire
// dialects: the legacy '|'-terminated ASCII protocol and the modern
// newline-terminated, SID-addressed one. Both drive the same roster,
// search, and chat semantics described in spec section 4.5.
package hub

import "github.com/dcpeer/dcpeer/tth"

// SID is the modern protocol's 20-bit per-session identifier, carried
// on the wire as 4 base32 characters.
type SID [4]byte

// User is the record carried for each peer visible on a hub (§3
// HubUser). Both protocol dialects populate the same struct; the
// legacy dialect leaves SessionID and CID zero.
type User struct {
	Name    string
	NameRaw string

	SessionID SID
	CID       tth.Digest
	HasCID    bool

	HasInfo bool
	IsOp    bool
	IsReg   bool
	Active  bool

	HubsNormal     int
	HubsRegistered int
	HubsOp         int
	Slots          int
	AutoSlotBps    int

	Description string
	Connection  string
	Email       string
	Client      string

	ShareSize uint64
}

// Roster maps raw nickname (legacy) or session id (modern) to User,
// plus the converse index, mirroring the teacher's
// sessions/byGUID dual-map registry shape generalized to a hub's
// own roster needs.
type Roster struct {
	byName map[string]*User
	bySID  map[SID]*User
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return &Roster{
		byName: make(map[string]*User),
		bySID:  make(map[SID]*User),
	}
}

// Put inserts or replaces u, indexed by name and, if set, by SID.
func (r *Roster) Put(u *User) {
	r.byName[u.Name] = u
	if u.SessionID != (SID{}) {
		r.bySID[u.SessionID] = u
	}
}

// ByName looks up a user by raw nickname.
func (r *Roster) ByName(name string) (*User, bool) {
	u, ok := r.byName[name]
	return u, ok
}

// BySID looks up a user by session id.
func (r *Roster) BySID(sid SID) (*User, bool) {
	u, ok := r.bySID[sid]
	return u, ok
}

// Remove deletes the user with the given name from both indices.
func (r *Roster) Remove(name string) {
	u, ok := r.byName[name]
	if !ok {
		return
	}
	delete(r.byName, name)
	if u.SessionID != (SID{}) {
		delete(r.bySID, u.SessionID)
	}
}

// RemoveBySID deletes the user with the given session id from both
// indices, returning the removed name (empty if not found).
func (r *Roster) RemoveBySID(sid SID) string {
	u, ok := r.bySID[sid]
	if !ok {
		return ""
	}
	delete(r.bySID, sid)
	delete(r.byName, u.Name)
	return u.Name
}

// Users returns every roster entry, in no particular order.
func (r *Roster) Users() []*User {
	out := make([]*User, 0, len(r.byName))
	for _, u := range r.byName {
		out = append(out, u)
	}
	return out
}

// ShareCount and ShareSizeTotal are the roster aggregates §3 mentions.
func (r *Roster) ShareCount() int { return len(r.byName) }

func (r *Roster) ShareSizeTotal() uint64 {
	var total uint64
	for _, u := range r.byName {
		total += u.ShareSize
	}
	return total
}

// ClearOpFlags clears IsOp on every roster user. Used by $OpList
// handling to implement the clean semantics the spec prescribes
// (clear prior is_op flags, then set them for users named in the
// frame) instead of the original's accumulate-only behavior.
func (r *Roster) ClearOpFlags() {
	for _, u := range r.byName {
		u.IsOp = false
	}
}
