package table

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/zhukovaskychina/ycsb-btreedb/logger"
	"github.com/zhukovaskychina/ycsb-btreedb/storage/btree"
	"github.com/zhukovaskychina/ycsb-btreedb/storage/buffer_pool"
	"github.com/zhukovaskychina/ycsb-btreedb/storage/pagestore"
)

const (
	DefaultPoolSize = 128 << 20
	DefaultPageSize = pagestore.DefaultPageSize
)

var (
	ErrEmptyPath = errors.New("table: path is empty")
	ErrClosed    = errors.New("table: closed")
)

// Options 表配置
type Options struct {
	Path        string
	PoolSize    uint64 // 缓冲池大小（字节）
	PageSize    int
	SyncOnFlush bool
}

func (o Options) withDefaults() Options {
	if o.PoolSize == 0 {
		o.PoolSize = DefaultPoolSize
	}
	if o.PageSize == 0 {
		o.PageSize = DefaultPageSize
	}
	return o
}

// Table is an ordered key-value table in one file: a page store, a buffer
// pool sized PoolSize/PageSize frames and a B+tree on top.
type Table struct {
	opts   Options
	store  *pagestore.PageStore
	pool   *buffer_pool.BufferPool
	tree   *btree.BTree
	closed int32
}

// Stats 表统计信息
type Stats struct {
	TableID   string
	Path      string
	PageSize  int
	Pages     int
	FreePages int
	Reads     uint64 // page store reads, buffer pool misses included
	Writes    uint64
	Tree      btree.TreeStats
	Pool      buffer_pool.BufferPoolStats
}

// New opens or creates the table file at opts.Path.
func New(opts Options) (*Table, error) {
	if opts.Path == "" {
		return nil, ErrEmptyPath
	}
	opts = opts.withDefaults()

	store, err := pagestore.OpenFile(opts.Path, opts.PageSize)
	if err != nil {
		return nil, err
	}
	pool, err := buffer_pool.NewBufferPool(store, &buffer_pool.BufferPoolConfig{
		PoolSize:      opts.PoolSize,
		YoungPercent:  buffer_pool.DefaultYoungPercent,
		OldBlocksTime: buffer_pool.DefaultOldBlocksTime,
		SyncOnFlush:   opts.SyncOnFlush,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	tree, err := btree.Open(pool, store)
	if err != nil {
		pool.Close()
		store.Close()
		return nil, err
	}
	logger.Infof("table %s opened: id=%s frames=%d page_size=%d pages=%d",
		opts.Path, store.TableID(), pool.FrameCount(), opts.PageSize, store.NumPages())
	return &Table{opts: opts, store: store, pool: pool, tree: tree}, nil
}

func (t *Table) check() error {
	if atomic.LoadInt32(&t.closed) != 0 {
		return ErrClosed
	}
	return nil
}

// ID 表的唯一标识，创建文件时生成
func (t *Table) ID() uuid.UUID {
	return t.store.TableID()
}

// Path 表文件路径
func (t *Table) Path() string {
	return t.opts.Path
}

// Get returns the value of key. A missing key is found == false, not an error.
func (t *Table) Get(key []byte) ([]byte, bool, error) {
	if err := t.check(); err != nil {
		return nil, false, err
	}
	return t.tree.Get(key)
}

// Put inserts or overwrites key.
func (t *Table) Put(key, value []byte) error {
	if err := t.check(); err != nil {
		return err
	}
	return t.tree.Put(key, value)
}

// Delete removes key, reporting whether it was present.
func (t *Table) Delete(key []byte) (bool, error) {
	if err := t.check(); err != nil {
		return false, err
	}
	return t.tree.Delete(key)
}

// Seek returns an iterator at the first key >= key. It does not see a
// snapshot: writes made while it is open may or may not show up.
func (t *Table) Seek(key []byte) (*btree.Iterator, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	return t.tree.Seek(key)
}

// Flush writes all dirty pages back.
func (t *Table) Flush() error {
	if err := t.check(); err != nil {
		return err
	}
	start := time.Now()
	if err := t.tree.Flush(); err != nil {
		return err
	}
	logger.Debugf("table %s flushed in %v", t.opts.Path, time.Since(start))
	return nil
}

// Stats 获取统计信息
func (t *Table) Stats() (Stats, error) {
	if err := t.check(); err != nil {
		return Stats{}, err
	}
	treeStats, err := t.tree.Stats()
	if err != nil {
		return Stats{}, err
	}
	reads, writes := t.store.IOCounts()
	return Stats{
		TableID:   t.store.TableID().String(),
		Path:      t.opts.Path,
		PageSize:  t.store.PageSize(),
		Pages:     t.store.NumPages(),
		FreePages: t.store.FreeCount(),
		Reads:     reads,
		Writes:    writes,
		Tree:      treeStats,
		Pool:      t.pool.Stats(),
	}, nil
}

// ResetStats 重置缓冲池计数器
func (t *Table) ResetStats() error {
	if err := t.check(); err != nil {
		return err
	}
	t.pool.ResetStats()
	return nil
}

// Close flushes and releases the buffer pool and the file.
func (t *Table) Close() error {
	if !atomic.CompareAndSwapInt32(&t.closed, 0, 1) {
		return ErrClosed
	}
	err := t.tree.Flush()
	if cerr := t.pool.Close(); err == nil {
		err = cerr
	}
	if cerr := t.store.Close(); err == nil {
		err = cerr
	}
	logger.Infof("table %s closed", t.opts.Path)
	return err
}
