package btree

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/zhukovaskychina/ycsb-btreedb/storage/pagestore"
)

// TreeStats B+树统计信息
type TreeStats struct {
	Height        int
	Keys          int
	LeafPages     int
	InternalPages int
	OverflowPages int
}

// Stats walks the whole tree.
func (t *BTree) Stats() (TreeStats, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var s TreeStats
	err := t.walk(t.root, nil, nil, 1, &s, nil)
	return s, err
}

// Check walks the whole tree and verifies its invariants: keys strictly
// ascending, every key inside the bounds set by its ancestors, all leaves
// at the same depth, and sibling links matching the in-order leaf sequence.
func (t *BTree) Check() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var s TreeStats
	var leaves []*node
	if err := t.walk(t.root, nil, nil, 1, &s, &leaves); err != nil {
		return err
	}
	for i, leaf := range leaves {
		wantPrev, wantNext := pagestore.InvalidPageID, pagestore.InvalidPageID
		if i > 0 {
			wantPrev = leaves[i-1].id
		}
		if i+1 < len(leaves) {
			wantNext = leaves[i+1].id
		}
		if leaf.prev != wantPrev || leaf.next != wantNext {
			return errors.Wrapf(ErrCorrupted, "leaf %d links prev=%d next=%d, want %d %d",
				leaf.id, leaf.prev, leaf.next, wantPrev, wantNext)
		}
		if i > 0 && len(leaf.keys) > 0 {
			prev := leaves[i-1]
			if len(prev.keys) > 0 && bytes.Compare(prev.keys[len(prev.keys)-1], leaf.keys[0]) >= 0 {
				return errors.Wrapf(ErrCorrupted, "leaf %d starts below leaf %d", leaf.id, prev.id)
			}
		}
		if len(leaf.keys) == 0 && len(leaves) > 1 {
			return errors.Wrapf(ErrCorrupted, "empty non-root leaf %d", leaf.id)
		}
	}
	return nil
}

// walk visits the subtree at id. lo is inclusive and hi exclusive; nil means
// unbounded.
func (t *BTree) walk(id pagestore.PageID, lo, hi []byte, depth int, s *TreeStats, leaves *[]*node) error {
	if depth > maxDepth {
		return errors.Wrapf(ErrCorrupted, "tree deeper than %d levels", maxDepth)
	}
	n, err := t.readNode(id)
	if err != nil {
		return err
	}
	for i, key := range n.keys {
		if i > 0 && bytes.Compare(n.keys[i-1], key) >= 0 {
			return errors.Wrapf(ErrCorrupted, "page %d: keys out of order at %d", id, i)
		}
		if lo != nil && bytes.Compare(key, lo) < 0 {
			return errors.Wrapf(ErrCorrupted, "page %d: key %d below its lower bound", id, i)
		}
		if hi != nil && bytes.Compare(key, hi) >= 0 {
			return errors.Wrapf(ErrCorrupted, "page %d: key %d above its upper bound", id, i)
		}
	}

	if n.isLeaf() {
		if s.Height == 0 {
			s.Height = depth
		} else if s.Height != depth {
			return errors.Wrapf(ErrCorrupted, "leaf %d at depth %d, others at %d", id, depth, s.Height)
		}
		s.LeafPages++
		s.Keys += len(n.keys)
		for _, v := range n.values {
			if !v.isOverflow() {
				continue
			}
			pages, err := t.overflowPages(v.overflow)
			if err != nil {
				return err
			}
			s.OverflowPages += pages
		}
		if leaves != nil {
			*leaves = append(*leaves, n)
		}
		return nil
	}

	if len(n.keys) == 0 {
		return errors.Wrapf(ErrCorrupted, "internal page %d has no keys", id)
	}
	s.InternalPages++
	for i, child := range n.children {
		childLo, childHi := lo, hi
		if i > 0 {
			childLo = n.keys[i-1]
		}
		if i < len(n.keys) {
			childHi = n.keys[i]
		}
		if err := t.walk(child, childLo, childHi, depth+1, s, leaves); err != nil {
			return err
		}
	}
	return nil
}
