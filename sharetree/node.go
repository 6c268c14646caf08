// Package sharetree implements the in-memory shared file tree: an
// ordered, byte-wise-sorted directory tree indexed by virtual path and
// by TTH content hash, with size and hash-completeness rollup to the
// root.
package sharetree

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dcpeer/dcpeer/tth"
)

// Node is one entry in the shared tree: either a file (is_file=true,
// leaf) or a directory (is_file=false, carries children).
//
// parent is a non-owning back-reference, mirroring the teacher's
// TreeConnection.Session pointer: it lets a node walk to the root for
// path rendering without the tree owning a cyclic structure.
type Node struct {
	name   string
	parent *Node
	isFile bool

	// file fields
	size         uint64
	tth          tth.Digest
	hasTTH       bool
	lastModified int64
	realPath     string

	// directory fields
	children   []*Node
	hasTTHCnt  int
	incomplete bool
}

// NewRoot creates an empty root directory node.
func NewRoot(name string) *Node {
	return &Node{name: name, isFile: false}
}

// Name returns the node's own name.
func (n *Node) Name() string { return n.name }

// IsFile reports whether n is a file (as opposed to a directory).
func (n *Node) IsFile() bool { return n.isFile }

// Parent returns n's enclosing directory, or nil at the root.
func (n *Node) Parent() *Node { return n.parent }

// Size returns the file's byte size, or the recursive sum of a
// directory's children (I2).
func (n *Node) Size() uint64 { return n.size }

// TTH returns the file's content digest and whether it is set.
func (n *Node) TTH() (tth.Digest, bool) { return n.tth, n.hasTTH }

// LastModified returns the file's modification time as a Unix
// timestamp.
func (n *Node) LastModified() int64 { return n.lastModified }

// Children returns a directory's entries, sorted byte-wise by name.
// The returned slice must not be mutated by the caller.
func (n *Node) Children() []*Node { return n.children }

// HasTTHCount returns the number of direct children satisfying the
// "has_tth" predicate (I3): subdirectories, or files with a TTH set.
func (n *Node) HasTTHCount() int { return n.hasTTHCnt }

// Incomplete reports whether a peer-sourced directory listing is known
// to be partial.
func (n *Node) Incomplete() bool { return n.incomplete }

// SetIncomplete marks a directory's listing as partial or complete.
func (n *Node) SetIncomplete(v bool) { n.incomplete = v }

// RealPath returns the on-disk location backing a file leaf (empty for
// a directory, or for a peer-sourced node that has no local backing).
func (n *Node) RealPath() string { return n.realPath }

// SetRealPath binds a file leaf to the on-disk path that serves its
// bytes. It carries no rollup invariant and may be set after insertion.
func (n *Node) SetRealPath(path string) { n.realPath = path }

func nodePredicate(n *Node) bool {
	if !n.isFile {
		return true
	}
	return n.hasTTH
}

// NewFile constructs a detached file node. Attach it to a directory
// with InsertChild.
func NewFile(name string, size uint64, digest tth.Digest, hasTTH bool, lastModified int64) *Node {
	return &Node{
		name:         name,
		isFile:       true,
		size:         size,
		tth:          digest,
		hasTTH:       hasTTH,
		lastModified: lastModified,
	}
}

// NewDir constructs a detached, empty directory node.
func NewDir(name string) *Node {
	return &Node{name: name, isFile: false}
}

// InsertChild adds child under directory dir, maintaining sort order
// (I1), rolling its size up to the root (I2) and counting it in dir's
// has_tth count (I3). It returns an
// error if dir is not a directory or a sibling with the same name
// already exists.
func InsertChild(dir, child *Node) error {
	if dir.isFile {
		return fmt.Errorf("sharetree: %q is not a directory", dir.name)
	}
	idx, found := dir.findChildIndex(child.name)
	if found {
		return fmt.Errorf("sharetree: %q already has a child named %q", dir.name, child.name)
	}

	dir.children = append(dir.children, nil)
	copy(dir.children[idx+1:], dir.children[idx:])
	dir.children[idx] = child
	child.parent = dir

	if nodePredicate(child) {
		dir.hasTTHCnt++
	}
	rebalanceUp(dir, int64(child.size))
	return nil
}

// RemoveChild detaches the child named name from dir, rolling the size
// change up to the root and adjusting dir's has_tth count. It returns
// the removed node.
func RemoveChild(dir *Node, name string) (*Node, error) {
	if dir.isFile {
		return nil, fmt.Errorf("sharetree: %q is not a directory", dir.name)
	}
	idx, found := dir.findChildIndex(name)
	if !found {
		return nil, fmt.Errorf("sharetree: %q has no child named %q", dir.name, name)
	}

	child := dir.children[idx]
	dir.children = append(dir.children[:idx], dir.children[idx+1:]...)
	child.parent = nil

	if nodePredicate(child) {
		dir.hasTTHCnt--
	}
	rebalanceUp(dir, -int64(child.size))
	return child, nil
}

// rebalanceUp applies a size delta to dir and every ancestor up to the
// root (I2). The has_tth count (I3) covers direct children only, so the
// callers adjust it on dir alone.
func rebalanceUp(dir *Node, sizeDelta int64) {
	for d := dir; d != nil; d = d.parent {
		if sizeDelta < 0 {
			d.size -= uint64(-sizeDelta)
		} else {
			d.size += uint64(sizeDelta)
		}
	}
}

// findChildIndex returns the insertion point for name among dir's
// sorted children, and whether a child with that exact name exists.
func (dir *Node) findChildIndex(name string) (int, bool) {
	i := sort.Search(len(dir.children), func(i int) bool {
		return dir.children[i].name >= name
	})
	if i < len(dir.children) && dir.children[i].name == name {
		return i, true
	}
	return i, false
}

// Lookup returns the direct child of dir named name, or nil.
func (dir *Node) Lookup(name string) *Node {
	idx, found := dir.findChildIndex(name)
	if !found {
		return nil
	}
	return dir.children[idx]
}

// Resolve walks a '/'-separated, case-sensitive path starting at root.
// "/x" and "x" are equivalent; ".." is rejected as unsupported.
func Resolve(root *Node, p string) (*Node, error) {
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return root, nil
	}

	cur := root
	for _, part := range strings.Split(p, "/") {
		if part == "" {
			continue
		}
		if part == ".." {
			return nil, fmt.Errorf("sharetree: path traversal (..) is not supported")
		}
		if cur.isFile {
			return nil, fmt.Errorf("sharetree: %q is a file, not a directory", cur.name)
		}
		next := cur.Lookup(part)
		if next == nil {
			return nil, fmt.Errorf("sharetree: no such path %q", p)
		}
		cur = next
	}
	return cur, nil
}

// Path renders the '/'-separated path from root to n (exclusive of
// root's own name). Root itself renders as "/".
func Path(n *Node) string {
	if n.parent == nil {
		return "/"
	}
	var parts []string
	for cur := n; cur.parent != nil; cur = cur.parent {
		parts = append(parts, cur.name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/")
}

// IsAncestor reports whether anc is a strict ancestor of n.
func IsAncestor(anc, n *Node) bool {
	for cur := n.parent; cur != nil; cur = cur.parent {
		if cur == anc {
			return true
		}
	}
	return false
}

// Copy recursively duplicates n (and, if it is a directory, its entire
// subtree) as a detached node with no parent.
func Copy(n *Node) *Node {
	if n.isFile {
		return NewFile(n.name, n.size, n.tth, n.hasTTH, n.lastModified)
	}
	dup := NewDir(n.name)
	dup.incomplete = n.incomplete
	for _, c := range n.children {
		// InsertChild cannot fail here: source children are already
		// uniquely named and sorted.
		_ = InsertChild(dup, Copy(c))
	}
	return dup
}
