package btree

import (
	"github.com/zhukovaskychina/ycsb-btreedb/storage/pagestore"
)

// Iterator walks the leaves in ascending key order starting at the key
// given to Seek.
//
// It copies one leaf at a time and holds no pin in between, so it observes
// writes made after it was created. When the sibling link it saved no
// longer leads to the leaf right after the last returned key, the iterator
// descends again from that key.
type Iterator struct {
	tree *BTree

	keys   [][]byte
	values [][]byte
	pos    int

	leaf    pagestore.PageID
	next    pagestore.PageID
	lastKey []byte

	end    bool
	closed bool
	err    error
}

// Seek positions a new iterator at the first key >= key. An empty key
// starts at the smallest key.
func (t *BTree) Seek(key []byte) (*Iterator, error) {
	it := &Iterator{tree: t}
	t.mu.RLock()
	err := it.fill(key, true)
	t.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return it, nil
}

// IsEnd 是否已经遍历结束
func (it *Iterator) IsEnd() bool {
	return it.end || it.closed || it.err != nil
}

// Key returns the current key. Only valid while !IsEnd().
func (it *Iterator) Key() []byte {
	if it.IsEnd() {
		return nil
	}
	return it.keys[it.pos]
}

// Value returns the current value. Only valid while !IsEnd().
func (it *Iterator) Value() []byte {
	if it.IsEnd() {
		return nil
	}
	return it.values[it.pos]
}

// Err reports the error that stopped the iterator, if any.
func (it *Iterator) Err() error {
	return it.err
}

// Next advances to the following key.
func (it *Iterator) Next() error {
	if it.closed {
		return ErrClosed
	}
	if it.IsEnd() {
		return it.err
	}
	it.lastKey = it.keys[it.pos]
	it.pos++
	if it.pos < len(it.keys) {
		return nil
	}

	it.tree.mu.RLock()
	err := it.advanceLeaf()
	it.tree.mu.RUnlock()
	if err != nil {
		it.err = err
	}
	return err
}

// Close releases the iterator.
func (it *Iterator) Close() error {
	it.closed = true
	it.keys, it.values = nil, nil
	return nil
}

// fill loads the leaf covering key and keeps the entries >= key, or > key
// when inclusive is false. Empty leaves are skipped along the sibling chain.
func (it *Iterator) fill(key []byte, inclusive bool) error {
	leaf, _, err := it.tree.findLeaf(key, false)
	if err != nil {
		return err
	}
	start, found := leaf.search(key)
	if found && !inclusive {
		start++
	}
	return it.load(leaf, start)
}

// advanceLeaf moves to the leaf after the current one.
func (it *Iterator) advanceLeaf() error {
	if it.next == pagestore.InvalidPageID {
		it.end = true
		return nil
	}
	n, err := it.tree.readNode(it.next)
	if err != nil || !n.isLeaf() || n.prev != it.leaf ||
		(len(n.keys) > 0 && compareKeys(n.keys[0], it.lastKey) <= 0) {
		// the chain changed under us
		return it.fill(it.lastKey, false)
	}
	return it.load(n, 0)
}

func (it *Iterator) load(leaf *node, start int) error {
	for {
		if start < len(leaf.keys) {
			it.keys = leaf.keys[start:]
			it.values = make([][]byte, len(it.keys))
			for i := range it.keys {
				v, err := it.tree.loadValue(leaf.values[start+i])
				if err != nil {
					return err
				}
				it.values[i] = v
			}
			it.pos = 0
			it.leaf = leaf.id
			it.next = leaf.next
			return nil
		}
		if leaf.next == pagestore.InvalidPageID {
			it.keys, it.values = nil, nil
			it.end = true
			return nil
		}
		n, err := it.tree.readNode(leaf.next)
		if err != nil {
			return err
		}
		if !n.isLeaf() {
			return ErrCorrupted
		}
		leaf, start = n, 0
	}
}
