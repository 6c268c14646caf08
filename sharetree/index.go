package sharetree

import "github.com/dcpeer/dcpeer/tth"

// Index maps a TTH digest to the set of file nodes carrying it —
// several paths may share identical content (I4: only files with
// hasTTH=1 are reachable here).
type Index struct {
	byDigest map[tth.Digest]map[*Node]struct{}
}

// NewIndex creates an empty TTH index.
func NewIndex() *Index {
	return &Index{byDigest: make(map[tth.Digest]map[*Node]struct{})}
}

// Add registers n under its digest. It is a no-op if n has no TTH.
func (idx *Index) Add(n *Node) {
	if !n.isFile || !n.hasTTH {
		return
	}
	set, ok := idx.byDigest[n.tth]
	if !ok {
		set = make(map[*Node]struct{})
		idx.byDigest[n.tth] = set
	}
	set[n] = struct{}{}
}

// Remove unregisters n from the index.
func (idx *Index) Remove(n *Node) {
	if !n.isFile || !n.hasTTH {
		return
	}
	set, ok := idx.byDigest[n.tth]
	if !ok {
		return
	}
	delete(set, n)
	if len(set) == 0 {
		delete(idx.byDigest, n.tth)
	}
}

// Lookup returns every file node currently carrying digest d.
func (idx *Index) Lookup(d tth.Digest) []*Node {
	set, ok := idx.byDigest[d]
	if !ok {
		return nil
	}
	out := make([]*Node, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	return out
}

// Rebuild walks the whole tree rooted at root and repopulates idx from
// scratch, discarding any prior contents.
func (idx *Index) Rebuild(root *Node) {
	idx.byDigest = make(map[tth.Digest]map[*Node]struct{})
	var walk func(*Node)
	walk = func(n *Node) {
		if n.isFile {
			idx.Add(n)
			return
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(root)
}
