package btree

import (
	"bytes"
	"sync"

	"github.com/pkg/errors"
	"github.com/zhukovaskychina/ycsb-btreedb/logger"
	"github.com/zhukovaskychina/ycsb-btreedb/storage/buffer_pool"
	"github.com/zhukovaskychina/ycsb-btreedb/storage/pagestore"
)

// Pager is the buffer pool as seen by the tree. Every node read or write
// goes through it.
type Pager interface {
	PageSize() int
	FetchPage(id pagestore.PageID) (*buffer_pool.BufferFrame, error)
	NewPage() (*buffer_pool.BufferFrame, error)
	UnpinPage(id pagestore.PageID, isDirty bool) error
	MarkDirty(f *buffer_pool.BufferFrame)
	DeletePage(id pagestore.PageID) error
	FlushAll() error
}

// RootStore persists the root page id.
type RootStore interface {
	Root() pagestore.PageID
	SetRoot(id pagestore.PageID) error
}

// BTree is a B+tree over byte-string keys. Values live in the leaves, either
// inline or in an overflow chain; leaves are doubly linked in key order.
//
// One RWMutex serializes writers against everyone else. Readers share it
// and pin at most one page at a time.
type BTree struct {
	mu sync.RWMutex

	pool  Pager
	store RootStore
	root  pagestore.PageID

	pageSize int
	body     int
}

// pathEntry is an internal node visited on the way down and the child taken.
type pathEntry struct {
	n   *node
	idx int
}

// Open loads the tree whose root is recorded in store, creating an empty
// root leaf for a new store.
func Open(pool Pager, store RootStore) (*BTree, error) {
	t := &BTree{
		pool:     pool,
		store:    store,
		pageSize: pool.PageSize(),
		body:     bodySize(pool.PageSize()),
	}
	root := store.Root()
	if root == pagestore.InvalidPageID {
		n, err := t.newNode(nodeLeaf)
		if err != nil {
			return nil, errors.Wrap(err, "create root")
		}
		if err := t.writeNode(n); err != nil {
			return nil, err
		}
		if err := t.setRoot(n.id); err != nil {
			return nil, err
		}
		logger.Debugf("btree: created root leaf %d", n.id)
		return t, nil
	}
	if _, err := t.readNode(root); err != nil {
		return nil, errors.Wrapf(err, "load root %d", root)
	}
	t.root = root
	return t, nil
}

// Root 当前根页号
func (t *BTree) Root() pagestore.PageID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

func (t *BTree) checkKey(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if len(key) > MaxKeySize(t.pageSize) {
		return errors.Wrapf(ErrKeyTooLarge, "%d bytes, limit %d", len(key), MaxKeySize(t.pageSize))
	}
	return nil
}

// Get returns a copy of the value stored under key.
func (t *BTree) Get(key []byte) ([]byte, bool, error) {
	if err := t.checkKey(key); err != nil {
		return nil, false, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	leaf, _, err := t.findLeaf(key, false)
	if err != nil {
		return nil, false, err
	}
	i, found := leaf.search(key)
	if !found {
		return nil, false, nil
	}
	value, err := t.loadValue(leaf.values[i])
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Put inserts key or replaces its value.
func (t *BTree) Put(key, value []byte) error {
	if err := t.checkKey(key); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	leaf, path, err := t.findLeaf(key, true)
	if err != nil {
		return err
	}

	v := leafValue{inline: cloneBytes(value), length: uint32(len(value))}
	if leafCellSize(key, v) > maxInlineCell(t.pageSize) {
		head, err := t.writeOverflow(value)
		if err != nil {
			return err
		}
		v = leafValue{overflow: head, length: uint32(len(value))}
	}

	var stale leafValue
	i, found := leaf.search(key)
	if found {
		stale = leaf.values[i]
		leaf.values[i] = v
	} else {
		leaf.keys = append(leaf.keys, nil)
		leaf.values = append(leaf.values, leafValue{})
		copy(leaf.keys[i+1:], leaf.keys[i:])
		copy(leaf.values[i+1:], leaf.values[i:])
		leaf.keys[i] = cloneBytes(key)
		leaf.values[i] = v
	}

	if leaf.size() <= t.body {
		err = t.writeNode(leaf)
	} else {
		err = t.splitLeaf(leaf, path)
	}
	if err != nil {
		return err
	}
	if stale.isOverflow() {
		return t.freeOverflow(stale.overflow)
	}
	return nil
}

// Delete removes key. An emptied leaf other than the root is unlinked and
// its page freed; internal nodes left with a single child collapse into it.
func (t *BTree) Delete(key []byte) (bool, error) {
	if err := t.checkKey(key); err != nil {
		return false, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	leaf, path, err := t.findLeaf(key, true)
	if err != nil {
		return false, err
	}
	i, found := leaf.search(key)
	if !found {
		return false, nil
	}
	stale := leaf.values[i]
	leaf.keys = append(leaf.keys[:i], leaf.keys[i+1:]...)
	leaf.values = append(leaf.values[:i], leaf.values[i+1:]...)

	if len(leaf.keys) == 0 && len(path) > 0 {
		err = t.removeLeaf(leaf, path)
	} else {
		err = t.writeNode(leaf)
	}
	if err != nil {
		return false, err
	}
	if stale.isOverflow() {
		if err := t.freeOverflow(stale.overflow); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Flush writes every dirty page back.
func (t *BTree) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pool.FlushAll()
}

// findLeaf descends from the root to the leaf covering key. The path of
// internal nodes is recorded only when withPath is set.
func (t *BTree) findLeaf(key []byte, withPath bool) (*node, []pathEntry, error) {
	var path []pathEntry
	id := t.root
	for depth := 0; ; depth++ {
		n, err := t.readNode(id)
		if err != nil {
			return nil, nil, err
		}
		if n.isLeaf() {
			return n, path, nil
		}
		if depth > maxDepth {
			return nil, nil, errors.Wrapf(ErrCorrupted, "tree deeper than %d levels", maxDepth)
		}
		idx := n.childIndex(key)
		if withPath {
			path = append(path, pathEntry{n: n, idx: idx})
		}
		id = n.children[idx]
	}
}

// maxDepth guards the descent against a cycle in a corrupted file.
const maxDepth = 64

func (t *BTree) splitLeaf(leaf *node, path []pathEntry) error {
	m := leaf.splitPoint(1, len(leaf.keys)-1)
	right, err := t.newNode(nodeLeaf)
	if err != nil {
		return err
	}
	right.keys = append(right.keys, leaf.keys[m:]...)
	right.values = append(right.values, leaf.values[m:]...)
	leaf.keys = leaf.keys[:m:m]
	leaf.values = leaf.values[:m:m]

	right.next = leaf.next
	right.prev = leaf.id
	leaf.next = right.id
	if right.next != pagestore.InvalidPageID {
		after, err := t.readNode(right.next)
		if err != nil {
			return err
		}
		after.prev = right.id
		if err := t.writeNode(after); err != nil {
			return err
		}
	}
	if err := t.writeNode(right); err != nil {
		return err
	}
	if err := t.writeNode(leaf); err != nil {
		return err
	}
	logger.Debugf("btree: split leaf %d -> %d at %d/%d", leaf.id, right.id, m, m+len(right.keys))
	return t.insertIntoParent(path, leaf.id, cloneBytes(right.keys[0]), right.id)
}

// insertIntoParent adds separator sep pointing at right next to left.
func (t *BTree) insertIntoParent(path []pathEntry, left pagestore.PageID, sep []byte, right pagestore.PageID) error {
	if len(path) == 0 {
		root, err := t.newNode(nodeInternal)
		if err != nil {
			return err
		}
		root.keys = [][]byte{sep}
		root.children = []pagestore.PageID{left, right}
		if err := t.writeNode(root); err != nil {
			return err
		}
		logger.Debugf("btree: new root %d over %d, %d", root.id, left, right)
		return t.setRoot(root.id)
	}

	last := path[len(path)-1]
	parent, i := last.n, last.idx
	parent.keys = append(parent.keys, nil)
	copy(parent.keys[i+1:], parent.keys[i:])
	parent.keys[i] = sep
	parent.children = append(parent.children, pagestore.InvalidPageID)
	copy(parent.children[i+2:], parent.children[i+1:])
	parent.children[i+1] = right

	if parent.size() <= t.body {
		return t.writeNode(parent)
	}
	return t.splitInternal(parent, path[:len(path)-1])
}

func (t *BTree) splitInternal(n *node, path []pathEntry) error {
	m := n.splitPoint(1, len(n.keys)-2)
	right, err := t.newNode(nodeInternal)
	if err != nil {
		return err
	}
	sep := n.keys[m]
	right.keys = append(right.keys, n.keys[m+1:]...)
	right.children = append(right.children, n.children[m+1:]...)
	n.keys = n.keys[:m:m]
	n.children = n.children[: m+1 : m+1]

	if err := t.writeNode(right); err != nil {
		return err
	}
	if err := t.writeNode(n); err != nil {
		return err
	}
	logger.Debugf("btree: split internal %d -> %d", n.id, right.id)
	return t.insertIntoParent(path, n.id, sep, right.id)
}

// removeLeaf unlinks an empty leaf from its siblings and its parent.
func (t *BTree) removeLeaf(leaf *node, path []pathEntry) error {
	if leaf.prev != pagestore.InvalidPageID {
		before, err := t.readNode(leaf.prev)
		if err != nil {
			return err
		}
		before.next = leaf.next
		if err := t.writeNode(before); err != nil {
			return err
		}
	}
	if leaf.next != pagestore.InvalidPageID {
		after, err := t.readNode(leaf.next)
		if err != nil {
			return err
		}
		after.prev = leaf.prev
		if err := t.writeNode(after); err != nil {
			return err
		}
	}
	if err := t.pool.DeletePage(leaf.id); err != nil {
		return err
	}
	logger.Debugf("btree: freed empty leaf %d", leaf.id)
	return t.removeChild(path)
}

// removeChild drops the child taken at the bottom of path from its parent.
func (t *BTree) removeChild(path []pathEntry) error {
	last := path[len(path)-1]
	parent, ci := last.n, last.idx
	if ci == 0 {
		parent.keys = parent.keys[1:]
		parent.children = parent.children[1:]
	} else {
		parent.keys = append(parent.keys[:ci-1], parent.keys[ci:]...)
		parent.children = append(parent.children[:ci], parent.children[ci+1:]...)
	}
	if len(parent.keys) > 0 {
		return t.writeNode(parent)
	}

	// a single child is left, it takes the parent's place
	only := parent.children[0]
	if len(path) == 1 {
		if err := t.setRoot(only); err != nil {
			return err
		}
		logger.Debugf("btree: root collapsed into %d", only)
	} else {
		gp := path[len(path)-2]
		gp.n.children[gp.idx] = only
		if err := t.writeNode(gp.n); err != nil {
			return err
		}
	}
	return t.pool.DeletePage(parent.id)
}

func (t *BTree) setRoot(id pagestore.PageID) error {
	t.root = id
	return t.store.SetRoot(id)
}

// readNode pins page id, decodes it and unpins it again.
func (t *BTree) readNode(id pagestore.PageID) (*node, error) {
	f, err := t.pool.FetchPage(id)
	if err != nil {
		return nil, err
	}
	n, decodeErr := decodeNode(id, f.Data())
	if err := t.pool.UnpinPage(id, false); err != nil {
		return nil, err
	}
	return n, decodeErr
}

func (t *BTree) writeNode(n *node) error {
	f, err := t.pool.FetchPage(n.id)
	if err != nil {
		return err
	}
	encodeNode(n, f.Data())
	t.pool.MarkDirty(f)
	return t.pool.UnpinPage(n.id, false)
}

func (t *BTree) newNode(kind byte) (*node, error) {
	f, err := t.pool.NewPage()
	if err != nil {
		return nil, err
	}
	id := f.ID()
	if err := t.pool.UnpinPage(id, true); err != nil {
		return nil, err
	}
	n := &node{id: id, kind: kind}
	if kind == nodeInternal {
		n.children = []pagestore.PageID{}
	}
	return n, nil
}

func (t *BTree) loadValue(v leafValue) ([]byte, error) {
	if v.isOverflow() {
		return t.readOverflow(v.overflow, v.length)
	}
	return cloneBytes(v.inline), nil
}

func compareKeys(a, b []byte) int {
	return bytes.Compare(a, b)
}
