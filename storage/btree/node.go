package btree

import (
	"bytes"
	"sort"

	"github.com/pkg/errors"
	"github.com/zhukovaskychina/ycsb-btreedb/storage/pagestore"
	"github.com/zhukovaskychina/ycsb-btreedb/util"
)

// 页面类型
const (
	nodeLeaf     byte = 1
	nodeInternal byte = 2
	nodeOverflow byte = 3
)

// 页头布局, bytes 0..7 hold the checksum stamped by the buffer pool.
const (
	offType   = util.ChecksumSize
	offCount  = 10
	offNext   = 12 // leaf: next sibling, overflow: next page
	offPrev   = 16 // leaf: prev sibling, internal: leftmost child, overflow: data length
	headerEnd = 24
)

const flagOverflow byte = 1

// leafCellFixed is keyLen(2) + flags(1) + valueLen(4).
const leafCellFixed = 7

// internalCellFixed is keyLen(2) + child(4).
const internalCellFixed = 6

// bodySize is the number of bytes available for cells.
func bodySize(pageSize int) int {
	return pageSize - headerEnd
}

// MaxKeySize 单个key的最大长度
func MaxKeySize(pageSize int) int {
	return bodySize(pageSize) / 8
}

// maxInlineCell is the largest leaf cell kept in the page. Bigger values
// move to an overflow chain.
func maxInlineCell(pageSize int) int {
	return bodySize(pageSize) / 4
}

// leafValue is either the value itself or the head of its overflow chain.
type leafValue struct {
	inline   []byte
	overflow pagestore.PageID
	length   uint32
}

func (v leafValue) isOverflow() bool {
	return v.overflow != pagestore.InvalidPageID
}

// node is a decoded B+tree page. It owns its byte slices, so the frame it
// came from can be unpinned right after decoding.
type node struct {
	id   pagestore.PageID
	kind byte

	keys [][]byte

	// leaf
	values []leafValue
	next   pagestore.PageID
	prev   pagestore.PageID

	// internal, len(children) == len(keys)+1 and children[i+1] holds keys >= keys[i]
	children []pagestore.PageID
}

func (n *node) isLeaf() bool {
	return n.kind == nodeLeaf
}

func leafCellSize(key []byte, v leafValue) int {
	if v.isOverflow() {
		return leafCellFixed + len(key) + 4
	}
	return leafCellFixed + len(key) + len(v.inline)
}

func (n *node) cellSize(i int) int {
	if n.isLeaf() {
		return leafCellSize(n.keys[i], n.values[i])
	}
	return internalCellFixed + len(n.keys[i])
}

// size is the encoded body size.
func (n *node) size() int {
	total := 0
	for i := range n.keys {
		total += n.cellSize(i)
	}
	return total
}

// search returns the first index whose key is >= key and whether it matches.
func (n *node) search(key []byte) (int, bool) {
	i := sort.Search(len(n.keys), func(i int) bool {
		return bytes.Compare(n.keys[i], key) >= 0
	})
	return i, i < len(n.keys) && bytes.Equal(n.keys[i], key)
}

// childIndex picks the child covering key.
func (n *node) childIndex(key []byte) int {
	return sort.Search(len(n.keys), func(i int) bool {
		return bytes.Compare(n.keys[i], key) > 0
	})
}

// splitPoint returns the first cell index of the right half, cutting the
// node as close to half of its bytes as possible. lo and hi bound the result.
func (n *node) splitPoint(lo, hi int) int {
	half := n.size() / 2
	acc := 0
	m := 0
	for m < len(n.keys) {
		acc += n.cellSize(m)
		m++
		if acc >= half {
			break
		}
	}
	if m < lo {
		m = lo
	}
	if m > hi {
		m = hi
	}
	return m
}

func decodeNode(id pagestore.PageID, data []byte) (*node, error) {
	n := &node{id: id, kind: data[offType]}
	count := int(util.GetUB2(data, offCount))
	body := data[headerEnd:]
	cursor := 0

	switch n.kind {
	case nodeLeaf:
		n.next = pagestore.PageID(util.GetUB4(data, offNext))
		n.prev = pagestore.PageID(util.GetUB4(data, offPrev))
		n.keys = make([][]byte, 0, count)
		n.values = make([]leafValue, 0, count)
		for i := 0; i < count; i++ {
			if cursor+leafCellFixed > len(body) {
				return nil, errors.Wrapf(ErrCorrupted, "page %d: leaf cell %d out of bounds", id, i)
			}
			var keyLen uint16
			var flags byte
			var valueLen uint32
			cursor, keyLen = util.ReadUB2(body, cursor)
			if cursor+int(keyLen)+5 > len(body) {
				return nil, errors.Wrapf(ErrCorrupted, "page %d: leaf key %d out of bounds", id, i)
			}
			var key []byte
			cursor, key = util.ReadBytes(body, cursor, int(keyLen))
			key = cloneBytes(key)
			cursor, flags = util.ReadByte(body, cursor)
			cursor, valueLen = util.ReadUB4(body, cursor)
			v := leafValue{length: valueLen}
			if flags&flagOverflow != 0 {
				if cursor+4 > len(body) {
					return nil, errors.Wrapf(ErrCorrupted, "page %d: overflow head %d out of bounds", id, i)
				}
				var head uint32
				cursor, head = util.ReadUB4(body, cursor)
				v.overflow = pagestore.PageID(head)
			} else {
				if cursor+int(valueLen) > len(body) {
					return nil, errors.Wrapf(ErrCorrupted, "page %d: value %d out of bounds", id, i)
				}
				var value []byte
				cursor, value = util.ReadBytes(body, cursor, int(valueLen))
				v.inline = cloneBytes(value)
			}
			n.keys = append(n.keys, key)
			n.values = append(n.values, v)
		}
	case nodeInternal:
		n.keys = make([][]byte, 0, count)
		n.children = make([]pagestore.PageID, 0, count+1)
		n.children = append(n.children, pagestore.PageID(util.GetUB4(data, offPrev)))
		for i := 0; i < count; i++ {
			if cursor+2 > len(body) {
				return nil, errors.Wrapf(ErrCorrupted, "page %d: internal cell %d out of bounds", id, i)
			}
			var keyLen uint16
			cursor, keyLen = util.ReadUB2(body, cursor)
			if cursor+int(keyLen)+4 > len(body) {
				return nil, errors.Wrapf(ErrCorrupted, "page %d: internal key %d out of bounds", id, i)
			}
			var key []byte
			var child uint32
			cursor, key = util.ReadBytes(body, cursor, int(keyLen))
			cursor, child = util.ReadUB4(body, cursor)
			n.keys = append(n.keys, cloneBytes(key))
			n.children = append(n.children, pagestore.PageID(child))
		}
	default:
		return nil, errors.Wrapf(ErrCorrupted, "page %d: unexpected page type %d", id, n.kind)
	}
	return n, nil
}

// encodeNode writes n into data. The caller has checked that it fits.
func encodeNode(n *node, data []byte) {
	util.ZeroBytes(data[util.ChecksumSize:])
	data[offType] = n.kind
	util.PutUB2(data, offCount, uint16(len(n.keys)))

	var cells []byte
	if n.isLeaf() {
		util.PutUB4(data, offNext, uint32(n.next))
		util.PutUB4(data, offPrev, uint32(n.prev))
		cells = make([]byte, 0, n.size())
		for i, key := range n.keys {
			v := n.values[i]
			cells = util.WriteUB2(cells, uint16(len(key)))
			cells = util.WriteBytes(cells, key)
			if v.isOverflow() {
				cells = util.WriteByte(cells, flagOverflow)
				cells = util.WriteUB4(cells, v.length)
				cells = util.WriteUB4(cells, uint32(v.overflow))
			} else {
				cells = util.WriteByte(cells, 0)
				cells = util.WriteUB4(cells, uint32(len(v.inline)))
				cells = util.WriteBytes(cells, v.inline)
			}
		}
	} else {
		util.PutUB4(data, offPrev, uint32(n.children[0]))
		cells = make([]byte, 0, n.size())
		for i, key := range n.keys {
			cells = util.WriteUB2(cells, uint16(len(key)))
			cells = util.WriteBytes(cells, key)
			cells = util.WriteUB4(cells, uint32(n.children[i+1]))
		}
	}
	copy(data[headerEnd:], cells)
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
