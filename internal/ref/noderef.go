// Package ref defines NodeID, the (node, tree) coordinate that identifies a
// Merkle-tree node produced during a specific checkpoint, and its sentinels
// and tie-break order. The map from a digest to the NodeID that first
// produced it is digest.Map.
package ref

import "math"

// Unresolved is the sentinel for the Node field: "not yet resolved".
const Unresolved uint32 = math.MaxUint32

// LocalTree is the sentinel for the Tree field: "resolved to a local leaf,
// tree not yet assigned".
const LocalTree uint32 = math.MaxUint32

// NodeID identifies a Merkle-tree node produced during snapshot Tree.
type NodeID struct {
	Node uint32
	Tree uint32
}

// IsUnresolved reports whether n still carries the unresolved sentinel.
func (n NodeID) IsUnresolved() bool {
	return n.Node == Unresolved
}

// Less orders NodeIDs lexicographically by (Tree, Node), the tie-break rule
// §4.3.1 mandates for shifted-duplicate resolution: "choose the smallest
// NodeID lexicographically (tree first, then node)".
func (n NodeID) Less(other NodeID) bool {
	if n.Tree != other.Tree {
		return n.Tree < other.Tree
	}
	return n.Node < other.Node
}
