// Package persist defines the database collaborator interface (§6) and
// a write-behind queue in front of it. The real database — schema,
// migration, on-disk format — is an explicit Non-goal; what's in scope
// is the interface surface hub/peer/sharetree code calls through, plus
// an in-memory fake for tests.
package persist

import (
	"github.com/dcpeer/dcpeer/tth"
)

// HashRecord is one row of the hash table: a file's path, size, mtime,
// and TTH, keyed by an opaque id.
type HashRecord struct {
	ID       int64
	Path     string
	Size     uint64
	LastMod  int64
	TTH      tth.Digest
}

// DownloadEntry is one row of the download queue.
type DownloadEntry struct {
	TTH  tth.Digest
	Path string
	User string
}

// Store is the database collaborator's interface (§6). All writes also
// go through the Queue's write-behind path; Store implementations only
// need to apply a single operation durably when called.
type Store interface {
	HashInsert(path string, size uint64, lastmod int64, root tth.Digest, tthl []byte) error
	HashTTHL(root tth.Digest) ([]byte, bool, error)
	HashLookup(path string) (HashRecord, bool, error)
	HashRmMany(ids []int64) error
	HashIDs() ([]int64, error)
	HashPurgeUnreferenced() error

	DLList(cb func(DownloadEntry) error) error
	DLUsers(cb func(user string) error) error
	DLRm(root tth.Digest) error

	Vacuum() error
}
