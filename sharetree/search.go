package sharetree

import "strings"

// SizeRestrict is a signed comparison applied to a search's byte
// threshold.
type SizeRestrict int

const (
	// SizeAny matches regardless of size.
	SizeAny SizeRestrict = iota
	// SizeAtLeast matches nodes with size >= the threshold.
	SizeAtLeast
	// SizeAtMost matches nodes with size <= the threshold.
	SizeAtMost
)

// Mask restricts a search to files, directories, or both.
type Mask int

const (
	MaskBoth Mask = iota
	MaskFilesOnly
	MaskDirsOnly
)

// Query describes a single search request.
type Query struct {
	Restrict   SizeRestrict
	Threshold  uint64
	Mask       Mask
	Extensions []string // lowercased, no leading dot
	Include    []string // substrings that must all appear in a matching node's name or its ancestor directories' names

	// FromRemote selects the N=10 cap (remote peer search) versus the
	// N=5 cap applied to the hub's own broadcast channel.
	FromRemote bool
}

func (q *Query) cap() int {
	if q.FromRemote {
		return 10
	}
	return 5
}

func (q *Query) sizeMatches(size uint64) bool {
	switch q.Restrict {
	case SizeAtLeast:
		return size >= q.Threshold
	case SizeAtMost:
		return size <= q.Threshold
	default:
		return true
	}
}

func (q *Query) extensionMatches(name string) bool {
	if len(q.Extensions) == 0 {
		return true
	}
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return false
	}
	ext := strings.ToLower(name[idx+1:])
	for _, e := range q.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// pruneMatched drops every needle that name (case-insensitively)
// contains, leaving the terms that still need to be satisfied further
// down the tree.
func pruneMatched(needles []string, name string) []string {
	lower := strings.ToLower(name)
	out := make([]string, 0, len(needles))
	for _, needle := range needles {
		if strings.Contains(lower, strings.ToLower(needle)) {
			continue
		}
		out = append(out, needle)
	}
	return out
}

// Search walks the tree rooted at root depth-first, returning at most
// q.cap() matches. The include-substring list is pruned at each
// directory whose name already satisfies one or more of its terms —
// the remaining needles are what the subtree below is searched
// against, so a term can be satisfied by any ancestor directory name
// as well as by the candidate's own name. A candidate matches only
// once every needle has been satisfied by some name on its path. Only
// files with a set TTH satisfy the file predicate (I4).
func Search(root *Node, q Query) []*Node {
	var results []*Node
	var walk func(n *Node, needles []string)
	walk = func(n *Node, needles []string) {
		if len(results) >= q.cap() {
			return
		}

		remaining := pruneMatched(needles, n.name)

		if matches(n, q, remaining) {
			results = append(results, n)
			if len(results) >= q.cap() {
				return
			}
		}

		if !n.isFile {
			for _, c := range n.children {
				walk(c, remaining)
				if len(results) >= q.cap() {
					return
				}
			}
		}
	}
	walk(root, q.Include)
	return results
}

func matches(n *Node, q Query, remainingNeedles []string) bool {
	if n.isFile {
		if q.Mask == MaskDirsOnly {
			return false
		}
		if !n.hasTTH {
			return false
		}
		if !q.sizeMatches(n.size) {
			return false
		}
		if !q.extensionMatches(n.name) {
			return false
		}
	} else if q.Mask == MaskFilesOnly {
		return false
	}

	return len(remainingNeedles) == 0
}
