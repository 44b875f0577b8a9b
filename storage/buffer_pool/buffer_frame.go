package buffer_pool

import (
	"container/list"
	"time"

	"github.com/zhukovaskychina/ycsb-btreedb/storage/pagestore"
)

// BufferFrame is one slot of the pool. Frames are created with the pool and
// reused for its whole lifetime; only the page they hold changes.
//
// Every field except data is guarded by the pool mutex. data may be read
// or written by whoever holds a pin.
type BufferFrame struct {
	index  int
	pageID pagestore.PageID
	data   []byte

	pinCount int
	dirty    bool
	resident bool

	// LRU bookkeeping
	firstAccess     time.Time
	lastAccess      time.Time
	isInYoungRegion bool
	elem            *list.Element
}

func newBufferFrame(index int, data []byte) *BufferFrame {
	return &BufferFrame{index: index, data: data}
}

// ID 获取页面号
func (f *BufferFrame) ID() pagestore.PageID {
	return f.pageID
}

// Data 获取页面内容. Only valid while the frame is pinned.
func (f *BufferFrame) Data() []byte {
	return f.data
}

// init installs page id into the frame.
func (f *BufferFrame) init(id pagestore.PageID, now time.Time) {
	f.pageID = id
	f.pinCount = 0
	f.dirty = false
	f.resident = true
	f.firstAccess = now
	f.lastAccess = now
	f.isInYoungRegion = false
	f.elem = nil
}

// reset returns the frame to the unused state.
func (f *BufferFrame) reset() {
	f.pageID = pagestore.InvalidPageID
	f.pinCount = 0
	f.dirty = false
	f.resident = false
	f.firstAccess = time.Time{}
	f.lastAccess = time.Time{}
	f.isInYoungRegion = false
	f.elem = nil
	for i := range f.data {
		f.data[i] = 0
	}
}
