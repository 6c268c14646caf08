package hub

// Advertisement captures the fields a self-description frame carries
// (§4.5.4): slots, the three hub-membership counts, share totals, and
// free-text identity fields.
type Advertisement struct {
	Slots          int
	HubsNormal     int
	HubsRegistered int
	HubsOp         int
	ShareSize      uint64
	Description    string
	Connection     string
	Email          string
	Active         bool // reachability: 'A' if true, 'P' if false
}

// SelfStatus is what one open hub session reports about this client's
// own standing on that hub, for the purposes of computing hub-count
// discriminators across every open hub session.
type SelfStatus struct {
	Validated bool
	IsOp      bool
	IsReg     bool
}

// discriminate buckets one hub session's self-status into exactly one
// of normal/registered/op, preferring the most privileged truthy flag.
func discriminate(st SelfStatus) (normal, registered, op int) {
	switch {
	case st.IsOp:
		return 0, 0, 1
	case st.IsReg:
		return 0, 1, 0
	default:
		return 1, 0, 0
	}
}

// BuildAdvertisement computes the hub-membership counts across every
// open hub session (building is the session currently being
// constructed, which contributes one extra "normal" if it is not yet
// validated — it has no confirmed standing on its own hub yet) and
// combines them with the local share/identity fields.
func BuildAdvertisement(sessions []SelfStatus, building SelfStatus, slots int, shareSize uint64, description, connection, email string, active bool) Advertisement {
	adv := Advertisement{
		Slots:       slots,
		ShareSize:   shareSize,
		Description: description,
		Connection:  connection,
		Email:       email,
		Active:      active,
	}
	for _, st := range sessions {
		n, r, o := discriminate(st)
		adv.HubsNormal += n
		adv.HubsRegistered += r
		adv.HubsOp += o
	}
	if !building.Validated {
		adv.HubsNormal++
	}
	return adv
}

// equalWatched reports whether two Advertisements agree on every field
// a tick re-send would otherwise duplicate, used to suppress a no-op
// re-advertisement.
func equalWatched(a, b *Advertisement) bool {
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
