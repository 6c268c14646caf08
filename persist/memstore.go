package persist

import (
	"sync"

	"github.com/dcpeer/dcpeer/tth"
)

// MemStore is an in-memory Store, used by tests and by any caller that
// does not need real persistence across restarts.
type MemStore struct {
	mu       sync.Mutex
	nextID   int64
	byID     map[int64]HashRecord
	byPath   map[string]int64
	tthl     map[tth.Digest][]byte
	downloads map[tth.Digest]DownloadEntry
	users    map[string]struct{}
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		nextID:    1,
		byID:      make(map[int64]HashRecord),
		byPath:    make(map[string]int64),
		tthl:      make(map[tth.Digest][]byte),
		downloads: make(map[tth.Digest]DownloadEntry),
		users:     make(map[string]struct{}),
	}
}

func (s *MemStore) HashInsert(path string, size uint64, lastmod int64, root tth.Digest, tthl []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, exists := s.byPath[path]
	if !exists {
		id = s.nextID
		s.nextID++
		s.byPath[path] = id
	}
	s.byID[id] = HashRecord{ID: id, Path: path, Size: size, LastMod: lastmod, TTH: root}
	if len(tthl) > 0 {
		s.tthl[root] = append([]byte(nil), tthl...)
	}
	return nil
}

func (s *MemStore) HashTTHL(root tth.Digest) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok := s.tthl[root]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), blob...), true, nil
}

func (s *MemStore) HashLookup(path string) (HashRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPath[path]
	if !ok {
		return HashRecord{}, false, nil
	}
	return s.byID[id], true, nil
}

func (s *MemStore) HashRmMany(ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		rec, ok := s.byID[id]
		if !ok {
			continue
		}
		delete(s.byID, id)
		delete(s.byPath, rec.Path)
	}
	return nil
}

func (s *MemStore) HashIDs() ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *MemStore) HashPurgeUnreferenced() error {
	// The in-memory fake has no separate reference table to purge
	// against; every row is implicitly referenced by its own path.
	return nil
}

func (s *MemStore) DLList(cb func(DownloadEntry) error) error {
	s.mu.Lock()
	entries := make([]DownloadEntry, 0, len(s.downloads))
	for _, e := range s.downloads {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	for _, e := range entries {
		if err := cb(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemStore) DLUsers(cb func(user string) error) error {
	s.mu.Lock()
	users := make([]string, 0, len(s.users))
	for u := range s.users {
		users = append(users, u)
	}
	s.mu.Unlock()

	for _, u := range users {
		if err := cb(u); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemStore) DLRm(root tth.Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.downloads, root)
	return nil
}

func (s *MemStore) Vacuum() error {
	return nil
}

// AddDownload is a test/glue helper outside the Store interface: it
// seeds a download-queue row directly.
func (s *MemStore) AddDownload(e DownloadEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloads[e.TTH] = e
	s.users[e.User] = struct{}{}
}
