package peer

import (
	"os"
	"strings"

	"github.com/dcpeer/dcpeer/persist"
	"github.com/dcpeer/dcpeer/sharetree"
	"github.com/dcpeer/dcpeer/tth"
)

const ownFileListToken = "files.xml.bz2"

// minSlotSize is the threshold above which serving a file requires an
// admitted slot (§4.6: "If the file is >= 16 KiB, a slot is required").
const minSlotSize = 16 * 1024

// Source bundles the collaborators needed to resolve an ADCGET
// identifier to real bytes: the local share tree, its TTH index, the
// path to the last-saved own file listing, and the hash-tree store.
type Source struct {
	Root         *sharetree.Node
	Index        *sharetree.Index
	FileListPath string
	Store        persist.Store
}

// resolvedFile describes where bytes for a "file" ADCGET live.
type resolvedFile struct {
	path       string
	slotWaived bool // files.xml.bz2 never requires a slot
}

// resolveFile implements the three-mode lookup order from §4.6. It
// only locates a candidate path; the caller still must stat it (a
// node's tree metadata is not authoritative for "can this actually be
// read right now").
func (s Source) resolveFile(identifier string) (resolvedFile, bool) {
	if identifier == ownFileListToken {
		if s.FileListPath == "" {
			return resolvedFile{}, false
		}
		return resolvedFile{path: s.FileListPath, slotWaived: true}, true
	}

	if strings.HasPrefix(identifier, "/") {
		n, err := sharetree.Resolve(s.Root, identifier)
		if err != nil || !n.IsFile() || n.RealPath() == "" {
			return resolvedFile{}, false
		}
		return resolvedFile{path: n.RealPath()}, true
	}

	if rest, ok := strings.CutPrefix(identifier, "TTH/"); ok {
		digest, err := tth.ParseDigest(rest)
		if err != nil {
			return resolvedFile{}, false
		}
		for _, n := range s.Index.Lookup(digest) {
			if n.RealPath() != "" {
				return resolvedFile{path: n.RealPath()}, true
			}
		}
		return resolvedFile{}, false
	}

	return resolvedFile{}, false
}

// resolveTTHL looks up the stored hash-tree blob for a "TTH/<base32>"
// identifier via the persistence collaborator.
func (s Source) resolveTTHL(identifier string) ([]byte, bool) {
	rest, ok := strings.CutPrefix(identifier, "TTH/")
	if !ok {
		return nil, false
	}
	digest, err := tth.ParseDigest(rest)
	if err != nil {
		return nil, false
	}
	blob, found, err := s.Store.HashTTHL(digest)
	if err != nil || !found {
		return nil, false
	}
	return blob, true
}

// statRegularFile stats path and confirms it is a regular file,
// returning its size.
func statRegularFile(path string) (uint64, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return 0, false
	}
	return uint64(info.Size()), true
}
