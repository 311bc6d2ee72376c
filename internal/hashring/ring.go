// Package hashring implements the ECS's consistent-hash ring: an
// ordered map from 128-bit hash to Node, with lookup, insert, remove,
// and range-assignment operations. One entry per physical node — no
// virtual nodes, so that a node's range stays exactly
// (predecessor.hash, self.hash].
package hashring

import (
	"sort"
	"sync"

	"github.com/abdulrahman86/ecs/internal/ecserrors"
	"github.com/abdulrahman86/ecs/internal/node"
)

// Ring is a sync.RWMutex-guarded ordered ring of active nodes.
type Ring struct {
	mu    sync.RWMutex
	order []node.Hash128       // sorted ascending
	byKey map[node.Hash128]*node.Node
}

// New returns an empty ring.
func New() *Ring {
	return &Ring{byKey: make(map[node.Hash128]*node.Node)}
}

// Add inserts n at position n.Hash. Returns ecserrors.InvariantViolation
// (DuplicateHash) if the position is already occupied. On success,
// recomputes the range of n and of its immediate successor.
func (r *Ring) Add(n *node.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKey[n.Hash]; exists {
		return ecserrors.InvariantViolation("DuplicateHash: " + n.Hash.String())
	}

	r.byKey[n.Hash] = n
	idx := r.insertSorted(n.Hash)
	r.recomputeRangeAt(idx)
	r.recomputeRangeAt(r.succIndex(idx))
	return nil
}

// Remove deletes n from the ring and recomputes the range of its
// former successor, whose lower bound shifts to n's old predecessor.
func (r *Ring) Remove(n *node.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(n.Hash)
	if idx < 0 {
		return ecserrors.InvariantViolation("node not in ring: " + n.Hash.String())
	}

	succIdx := r.succIndex(idx)
	r.order = append(r.order[:idx], r.order[idx+1:]...)
	delete(r.byKey, n.Hash)

	if len(r.order) == 0 {
		return nil
	}
	if succIdx > idx {
		succIdx--
	}
	succIdx %= len(r.order)
	r.recomputeRangeAt(succIdx)
	return nil
}

// RemoveAll empties the ring.
func (r *Ring) RemoveAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.byKey = make(map[node.Hash128]*node.Node)
}

// GetNodeByKey returns the node responsible for key under the
// upper-bound rule: the first node whose hash >= MD5(key), wrapping to
// the smallest hash on overflow.
func (r *Ring) GetNodeByKey(key string) (*node.Node, error) {
	return r.GetNodeByHash(node.HashKey(key))
}

// GetNodeByHash is GetNodeByKey given a raw hash.
func (r *Ring) GetNodeByHash(hash node.Hash128) (*node.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.order) == 0 {
		return nil, ecserrors.CoordinationError("RingEmpty: no nodes on the ring", nil)
	}

	idx := sort.Search(len(r.order), func(i int) bool {
		return !r.order[i].Less(hash)
	})
	if idx == len(r.order) {
		idx = 0
	}
	return r.byKey[r.order[idx]], nil
}

// GetRange returns the (lower, upper] range currently assigned to a
// member node.
func (r *Ring) GetRange(n *node.Node) (node.Range, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cur, ok := r.byKey[n.Hash]
	if !ok {
		return node.Range{}, ecserrors.InvariantViolation("node not in ring: " + n.Hash.String())
	}
	return cur.Range, nil
}

// Size returns the number of nodes currently on the ring.
func (r *Ring) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Snapshot returns the ring's nodes in ascending hash order. The
// returned slice is a copy; callers may read it freely without
// holding the ring's lock.
func (r *Ring) Snapshot() []*node.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*node.Node, len(r.order))
	for i, h := range r.order {
		out[i] = r.byKey[h]
	}
	return out
}

// --- unexported helpers; callers must hold r.mu ---

func (r *Ring) indexOf(hash node.Hash128) int {
	idx := sort.Search(len(r.order), func(i int) bool {
		return !r.order[i].Less(hash)
	})
	if idx < len(r.order) && r.order[idx].Equal(hash) {
		return idx
	}
	return -1
}

func (r *Ring) insertSorted(hash node.Hash128) int {
	idx := sort.Search(len(r.order), func(i int) bool {
		return !r.order[i].Less(hash)
	})
	r.order = append(r.order, node.Hash128{})
	copy(r.order[idx+1:], r.order[idx:])
	r.order[idx] = hash
	return idx
}

func (r *Ring) succIndex(idx int) int {
	if len(r.order) == 0 {
		return 0
	}
	return (idx + 1) % len(r.order)
}

func (r *Ring) predIndex(idx int) int {
	if len(r.order) == 0 {
		return 0
	}
	return (idx - 1 + len(r.order)) % len(r.order)
}

// recomputeRangeAt fixes up the (lower, upper] range of the node at
// idx: upper is always its own hash (H1); lower is its predecessor's
// hash, or — when it is the ring's only member — its own hash, so the
// range covers the full space (H2).
func (r *Ring) recomputeRangeAt(idx int) {
	if len(r.order) == 0 {
		return
	}
	hash := r.order[idx]
	n := r.byKey[hash]

	predIdx := r.predIndex(idx)
	lower := r.order[predIdx]
	if len(r.order) == 1 {
		lower = hash
	}
	n.Range = node.Range{Lower: lower, Upper: hash}
}
