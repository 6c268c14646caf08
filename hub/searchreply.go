package hub

import (
	"fmt"
	"strings"

	"github.com/dcpeer/dcpeer/sharetree"
)

// FormatSearchReply renders one $SR record for a file or directory
// match, per §4.5.1 item 12 / the §8 worked example:
//
//	$SR own_nick path<0x05>size slots_free/slots<0x05>(hub_name|TTH:xxx) (hub_addr)
//
// path separators are rendered as '\' (legacy NMDC convention); if
// sender is non-empty (a TCP-channel reply to a "Hub:"-prefixed
// source), it is appended as a further 0x05-delimited field.
func FormatSearchReply(ownNick string, n *sharetree.Node, slotsFree, slots int, hubName, hubAddr, sender string) string {
	path := strings.TrimPrefix(sharetree.Path(n), "/")
	path = strings.ReplaceAll(path, "/", "\\")

	var descriptor string
	if digest, ok := n.TTH(); ok {
		descriptor = fmt.Sprintf("TTH:%s", digest.String())
	} else {
		descriptor = hubName
	}

	msg := fmt.Sprintf("$SR %s %s\x05%d %d/%d\x05%s (%s)",
		ownNick, path, n.Size(), slotsFree, slots, descriptor, hubAddr)
	if sender != "" {
		msg += "\x05" + sender
	}
	return msg
}
