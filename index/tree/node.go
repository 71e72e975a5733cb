// Package tree implements the index-tree resolver: lazy, depth-first,
// left-to-right traversal of a B+-tree-like index, merging on-disk
// leaves with in-memory novelty through a pluggable Resolver, fronted by
// a shared LRU node cache.
package tree

import (
	"context"

	"github.com/flakegraph/query/flake"
)

// Handle opaquely identifies a node within one index; it is whatever the
// underlying storage layer uses (a block address, a content hash, ...).
// The engine never interprets it, only passes it to a Fetcher.
type Handle string

// Node is a resolved or unresolved index-tree node.
type Node struct {
	Handle Handle
	// Rhs is the upper-bound flake for this node's subtree, or nil if
	// this node is the rightmost node in the index.
	Rhs *flake.Flake
	// First is the lower-bound flake for this node's subtree.
	First flake.Flake
	// Leftmost is true for the leftmost node in the index.
	Leftmost bool
	// Leaf is true if this node holds flakes directly; false if it
	// holds child handles.
	Leaf bool
	// Flakes holds the raw, unmerged historical content of a leaf node.
	// Populated only when Leaf is true and the node has been fetched.
	Flakes []flake.Flake
	// Children holds child handles for a branch node, in index order.
	Children []Handle
}

// Fetcher performs the possibly-blocking raw fetch of a node's content
// (disk read, remote RPC, ...). It never merges novelty; that is the
// Resolver's job.
type Fetcher interface {
	Fetch(ctx context.Context, h Handle) (Node, error)
}

// InRange reports whether node n can contain any flake in [start, end]
// under cmp, per spec §4.B:
//
//	in-range?(node) = not ((node.rhs exists and rhs < start) or
//	                        (not node.leftmost? and node.first > end))
func InRange(n Node, cmp flake.Comparator, start, end flake.Flake) bool {
	if n.Rhs != nil && cmp(*n.Rhs, start) < 0 {
		return false
	}
	if !n.Leftmost && cmp(n.First, end) > 0 {
		return false
	}
	return true
}
