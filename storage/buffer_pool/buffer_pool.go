package buffer_pool

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/zhukovaskychina/ycsb-btreedb/logger"
	"github.com/zhukovaskychina/ycsb-btreedb/storage/pagestore"
	"github.com/zhukovaskychina/ycsb-btreedb/util"
)

const (
	// MinFrames is the smallest pool handed out, enough for a split that pins
	// a leaf, its new sibling and the parent at once.
	MinFrames = 8
	// MaxFrames bounds the slab; a pool size past it is a configuration error.
	MaxFrames = 1 << 24

	DefaultYoungPercent  = 0.625
	DefaultOldBlocksTime = time.Second
)

// PageStore is the paged file under the pool.
type PageStore interface {
	PageSize() int
	AllocatePage() (pagestore.PageID, error)
	ReadPage(id pagestore.PageID, buf []byte) error
	WritePage(id pagestore.PageID, buf []byte) error
	FreePage(id pagestore.PageID) error
	Sync() error
}

// BufferPoolConfig 缓冲池配置
type BufferPoolConfig struct {
	PoolSize      uint64        // 缓冲池大小（字节）
	YoungPercent  float64       // young区比例
	OldBlocksTime time.Duration // old区页面晋升到young区的最小停留时间
	SyncOnFlush   bool          // FlushAll 之后是否 fsync
}

// BufferPool caches pages of a PageStore in a fixed set of frames.
//
// A caller pins a page with FetchPage or NewPage and must release it with
// UnpinPage. Pinned frames are never evicted. When every frame is pinned the
// pool does not wait: FetchPage and NewPage return ErrBufferPoolFull.
type BufferPool struct {
	mu sync.Mutex

	store    PageStore
	config   BufferPoolConfig
	pageSize int

	frames     []*BufferFrame
	pageTable  map[pagestore.PageID]*BufferFrame
	freeFrames []*BufferFrame
	lru        *lruList

	stats  *BufferPoolStats
	closed bool
}

// NewBufferPool 创建缓冲池
func NewBufferPool(store PageStore, config *BufferPoolConfig) (*BufferPool, error) {
	if store == nil || config == nil || config.PoolSize == 0 {
		return nil, NewError("new", ErrInvalidConfig)
	}
	cfg := *config
	if cfg.YoungPercent <= 0 || cfg.YoungPercent >= 1 {
		cfg.YoungPercent = DefaultYoungPercent
	}
	if cfg.OldBlocksTime < 0 {
		cfg.OldBlocksTime = DefaultOldBlocksTime
	}

	pageSize := store.PageSize()
	if cfg.PoolSize/uint64(pageSize) > MaxFrames {
		return nil, NewError("new", errors.Wrapf(ErrInvalidConfig, "pool size %d exceeds %d frames", cfg.PoolSize, MaxFrames))
	}
	count := int(cfg.PoolSize / uint64(pageSize))
	if count < MinFrames {
		count = MinFrames
	}

	bp := &BufferPool{
		store:      store,
		config:     cfg,
		pageSize:   pageSize,
		frames:     make([]*BufferFrame, count),
		pageTable:  make(map[pagestore.PageID]*BufferFrame, count),
		freeFrames: make([]*BufferFrame, 0, count),
		lru:        newLRUList(cfg.YoungPercent, cfg.OldBlocksTime),
		stats:      NewBufferPoolStats(),
	}
	slab := make([]byte, count*pageSize)
	for i := 0; i < count; i++ {
		f := newBufferFrame(i, slab[i*pageSize:(i+1)*pageSize:(i+1)*pageSize])
		bp.frames[i] = f
	}
	for i := count - 1; i >= 0; i-- {
		bp.freeFrames = append(bp.freeFrames, bp.frames[i])
	}
	logger.Debugf("buffer pool created: %d frames of %d bytes", count, pageSize)
	return bp, nil
}

// PageSize 页面大小
func (bp *BufferPool) PageSize() int {
	return bp.pageSize
}

// FrameCount 帧数量
func (bp *BufferPool) FrameCount() int {
	return len(bp.frames)
}

// FetchPage pins page id, reading it from the store on a miss.
func (bp *BufferPool) FetchPage(id pagestore.PageID) (*BufferFrame, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.closed {
		return nil, NewError("fetch", ErrPoolClosed)
	}

	now := time.Now()
	if f, ok := bp.pageTable[id]; ok {
		f.pinCount++
		bp.lru.Touch(f, now)
		bp.stats.RecordPageRequest(true)
		return f, nil
	}
	bp.stats.RecordPageRequest(false)

	f, err := bp.acquireFrameLocked()
	if err != nil {
		return nil, NewError("fetch", err)
	}
	start := time.Now()
	if err := bp.store.ReadPage(id, f.data); err != nil {
		bp.releaseFrameLocked(f)
		return nil, NewError("fetch", err)
	}
	bp.stats.RecordPageIO(true, time.Since(start).Nanoseconds())
	if !util.VerifyPageChecksum(f.data) {
		bp.releaseFrameLocked(f)
		logger.Errorf("page %d failed checksum verification", id)
		return nil, NewError("fetch", errors.Wrapf(ErrPageCorrupted, "page %d", id))
	}

	bp.installLocked(f, id, now)
	return f, nil
}

// NewPage allocates a page in the store and pins a zeroed, dirty frame for it.
func (bp *BufferPool) NewPage() (*BufferFrame, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.closed {
		return nil, NewError("new_page", ErrPoolClosed)
	}

	f, err := bp.acquireFrameLocked()
	if err != nil {
		return nil, NewError("new_page", err)
	}
	id, err := bp.store.AllocatePage()
	if err != nil {
		bp.releaseFrameLocked(f)
		return nil, NewError("new_page", err)
	}
	if stale, ok := bp.pageTable[id]; ok {
		// a reader fetched the page while it sat on the free list
		if stale.pinCount > 0 {
			bp.releaseFrameLocked(f)
			return nil, NewError("new_page", errors.Wrapf(ErrPagePinned, "reused page %d", id))
		}
		delete(bp.pageTable, id)
		bp.lru.Remove(stale)
		bp.releaseFrameLocked(stale)
	}
	util.ZeroBytes(f.data)
	bp.installLocked(f, id, time.Now())
	f.dirty = true
	return f, nil
}

// UnpinPage releases one pin. isDirty marks the frame modified.
func (bp *BufferPool) UnpinPage(id pagestore.PageID, isDirty bool) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	f, ok := bp.pageTable[id]
	if !ok || f.pinCount <= 0 {
		return NewError("unpin", errors.Wrapf(ErrPageNotPinned, "page %d", id))
	}
	f.pinCount--
	if isDirty {
		f.dirty = true
	}
	return nil
}

// MarkDirty flags a pinned frame as modified.
func (bp *BufferPool) MarkDirty(f *BufferFrame) {
	bp.mu.Lock()
	f.dirty = true
	bp.mu.Unlock()
}

// FlushPage writes page id back if it is resident and dirty.
func (bp *BufferPool) FlushPage(id pagestore.PageID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.closed {
		return NewError("flush", ErrPoolClosed)
	}
	f, ok := bp.pageTable[id]
	if !ok {
		return nil
	}
	return bp.flushFrameLocked(f)
}

// FlushAll writes every dirty frame back and syncs the store.
func (bp *BufferPool) FlushAll() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.closed {
		return NewError("flush_all", ErrPoolClosed)
	}
	return bp.flushAllLocked()
}

func (bp *BufferPool) flushAllLocked() error {
	for _, f := range bp.frames {
		if !f.resident {
			continue
		}
		if err := bp.flushFrameLocked(f); err != nil {
			return err
		}
	}
	if bp.config.SyncOnFlush {
		if err := bp.store.Sync(); err != nil {
			return NewError("flush_all", err)
		}
	}
	return nil
}

// DeletePage drops page id from the pool and returns it to the store's free
// list. A pinned page cannot be deleted.
func (bp *BufferPool) DeletePage(id pagestore.PageID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.closed {
		return NewError("delete", ErrPoolClosed)
	}
	if f, ok := bp.pageTable[id]; ok {
		if f.pinCount > 0 {
			return NewError("delete", errors.Wrapf(ErrPagePinned, "page %d", id))
		}
		delete(bp.pageTable, id)
		bp.lru.Remove(f)
		bp.releaseFrameLocked(f)
	}
	if err := bp.store.FreePage(id); err != nil {
		return NewError("delete", err)
	}
	return nil
}

// Stats 获取统计信息
func (bp *BufferPool) Stats() BufferPoolStats {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	s := bp.stats.Snapshot()
	s.TotalFrames = int64(len(bp.frames))
	s.FreeFrames = int64(len(bp.freeFrames))
	for _, f := range bp.frames {
		if !f.resident {
			continue
		}
		if f.dirty {
			s.DirtyPages++
		}
		if f.pinCount > 0 {
			s.PinnedPages++
		}
	}
	s.YoungPages = int64(bp.lru.YoungLen())
	s.OldPages = int64(bp.lru.OldLen())
	return s
}

// ResetStats 重置计数器
func (bp *BufferPool) ResetStats() {
	bp.stats.Reset()
}

// Close flushes every dirty frame. The store stays open; its owner closes it.
func (bp *BufferPool) Close() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.closed {
		return NewError("close", ErrPoolClosed)
	}
	err := bp.flushAllLocked()
	bp.closed = true
	for _, f := range bp.frames {
		if f.pinCount > 0 {
			logger.Warnf("page %d still pinned (%d) at close", f.pageID, f.pinCount)
		}
	}
	return err
}

// acquireFrameLocked takes a free frame or evicts the LRU victim.
func (bp *BufferPool) acquireFrameLocked() (*BufferFrame, error) {
	if n := len(bp.freeFrames); n > 0 {
		f := bp.freeFrames[n-1]
		bp.freeFrames = bp.freeFrames[:n-1]
		return f, nil
	}

	victim := bp.lru.Victim()
	if victim == nil {
		return nil, ErrBufferPoolFull
	}
	if err := bp.flushFrameLocked(victim); err != nil {
		return nil, err
	}
	if bp.pageTable[victim.pageID] == victim {
		delete(bp.pageTable, victim.pageID)
	}
	bp.lru.Remove(victim)
	bp.stats.RecordEviction()
	logger.Debugf("evicted page %d from frame %d", victim.pageID, victim.index)
	victim.reset()
	return victim, nil
}

func (bp *BufferPool) releaseFrameLocked(f *BufferFrame) {
	f.reset()
	bp.freeFrames = append(bp.freeFrames, f)
}

func (bp *BufferPool) installLocked(f *BufferFrame, id pagestore.PageID, now time.Time) {
	f.init(id, now)
	f.pinCount = 1
	bp.pageTable[id] = f
	bp.lru.Insert(f, now)
}

// flushFrameLocked stamps the checksum and writes a dirty frame.
func (bp *BufferPool) flushFrameLocked(f *BufferFrame) error {
	if !f.dirty {
		return nil
	}
	util.StampPageChecksum(f.data)
	start := time.Now()
	if err := bp.store.WritePage(f.pageID, f.data); err != nil {
		bp.stats.RecordFlush(false)
		logger.Errorf("flush page %d failed: %v", f.pageID, err)
		return NewError("flush", errors.Wrapf(ErrFlushFailed, "page %d: %v", f.pageID, err))
	}
	bp.stats.RecordPageIO(false, time.Since(start).Nanoseconds())
	bp.stats.RecordFlush(true)
	f.dirty = false
	return nil
}
