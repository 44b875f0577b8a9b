package pagestore

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/zhukovaskychina/ycsb-btreedb/logger"
	"github.com/zhukovaskychina/ycsb-btreedb/util"
)

// PageID is a logical page number. Its physical offset is id * pageSize.
type PageID uint32

const (
	// InvalidPageID doubles as the meta page id; it is never handed out.
	InvalidPageID PageID = 0
	MetaPageID    PageID = 0

	DefaultPageSize = 4096
	MinPageSize     = 512
	MaxPageSize     = 65536

	storeVersion uint32 = 1
)

var (
	storeMagic = [4]byte{'B', 'T', 'D', 'B'}
	freeMagic  = [4]byte{'F', 'R', 'E', 'E'}
)

// meta page layout
const (
	metaMagicOffset     = 8
	metaVersionOffset   = 12
	metaPageSizeOffset  = 16
	metaNextOffset      = 20
	metaFreeHeadOffset  = 24
	metaFreeCountOffset = 28
	metaRootOffset      = 32
	metaUUIDOffset      = 36
	metaEnd             = metaUUIDOffset + 16
)

// free page layout
const (
	freeMagicOffset = 8
	freeNextOffset  = 12
)

var (
	ErrInvalidPageID = errors.New("invalid page id")
	ErrPageSize      = errors.New("page size mismatch")
	ErrBadMeta       = errors.New("meta page is corrupted")
	ErrClosed        = errors.New("page store is closed")
	ErrDoubleFree    = errors.New("page is already free")
)

// PageStore hands out fixed-size pages on a Medium and recycles freed ones
// through an on-disk free list threaded through the free pages themselves.
type PageStore struct {
	mu       sync.Mutex
	medium   Medium
	pageSize int
	closed   bool

	next      PageID
	freeHead  PageID
	freeCount uint32
	root      PageID
	tableID   uuid.UUID

	readCount  uint64
	writeCount uint64
}

// OpenFile opens the page file at path, creating it when absent.
func OpenFile(path string, pageSize int) (*PageStore, error) {
	medium, err := OpenFileMedium(path)
	if err != nil {
		return nil, err
	}
	ps, err := Open(medium, pageSize)
	if err != nil {
		medium.Close()
		return nil, errors.Wrapf(err, "open page store %s", path)
	}
	return ps, nil
}

// Open formats an empty medium or validates an existing one.
func Open(medium Medium, pageSize int) (*PageStore, error) {
	if pageSize < MinPageSize || pageSize > MaxPageSize || pageSize%8 != 0 {
		return nil, errors.Wrapf(ErrPageSize, "unsupported page size %d", pageSize)
	}
	ps := &PageStore{medium: medium, pageSize: pageSize}

	size, err := medium.Size()
	if err != nil {
		return nil, errors.Wrap(err, "stat medium")
	}
	if size == 0 {
		ps.next = 1
		ps.tableID = uuid.New()
		if err := ps.writeMeta(); err != nil {
			return nil, err
		}
		logger.Debugf("page store formatted: page_size=%d table=%s", pageSize, ps.tableID)
		return ps, nil
	}

	if err := ps.loadMeta(); err != nil {
		return nil, err
	}
	logger.Debugf("page store opened: page_size=%d pages=%d free=%d table=%s",
		pageSize, ps.next, ps.freeCount, ps.tableID)
	return ps, nil
}

func (ps *PageStore) loadMeta() error {
	buf := make([]byte, ps.pageSize)
	// the meta page may have been written with another page size; read the
	// fixed prefix first
	if err := ps.readRaw(0, buf[:metaEnd]); err != nil {
		return errors.Wrap(err, "read meta page")
	}
	if string(buf[metaMagicOffset:metaMagicOffset+4]) != string(storeMagic[:]) {
		return errors.Wrap(ErrBadMeta, "bad magic")
	}
	if v := util.GetUB4(buf, metaVersionOffset); v != storeVersion {
		return errors.Wrapf(ErrBadMeta, "unsupported version %d", v)
	}
	if stored := int(util.GetUB4(buf, metaPageSizeOffset)); stored != len(buf) {
		return errors.Wrapf(ErrPageSize, "file uses %d byte pages, configured %d", stored, len(buf))
	}
	if err := ps.readRaw(0, buf); err != nil {
		return errors.Wrap(err, "read meta page")
	}
	if !util.VerifyPageChecksum(buf) {
		return errors.Wrap(ErrBadMeta, "checksum mismatch")
	}

	ps.next = PageID(util.GetUB4(buf, metaNextOffset))
	ps.freeHead = PageID(util.GetUB4(buf, metaFreeHeadOffset))
	ps.freeCount = util.GetUB4(buf, metaFreeCountOffset)
	ps.root = PageID(util.GetUB4(buf, metaRootOffset))
	id, err := uuid.FromBytes(buf[metaUUIDOffset:metaEnd])
	if err != nil {
		return errors.Wrap(ErrBadMeta, err.Error())
	}
	ps.tableID = id
	if ps.next == 0 {
		return errors.Wrap(ErrBadMeta, "next page id is zero")
	}
	return nil
}

func (ps *PageStore) writeMeta() error {
	buf := make([]byte, ps.pageSize)
	copy(buf[metaMagicOffset:], storeMagic[:])
	util.PutUB4(buf, metaVersionOffset, storeVersion)
	util.PutUB4(buf, metaPageSizeOffset, uint32(ps.pageSize))
	util.PutUB4(buf, metaNextOffset, uint32(ps.next))
	util.PutUB4(buf, metaFreeHeadOffset, uint32(ps.freeHead))
	util.PutUB4(buf, metaFreeCountOffset, ps.freeCount)
	util.PutUB4(buf, metaRootOffset, uint32(ps.root))
	copy(buf[metaUUIDOffset:metaEnd], ps.tableID[:])
	util.StampPageChecksum(buf)
	return ps.writeRaw(MetaPageID, buf)
}

func (ps *PageStore) readRaw(id PageID, buf []byte) error {
	n, err := ps.medium.ReadAt(buf, int64(id)*int64(ps.pageSize))
	if err == io.EOF {
		// 超出文件长度的部分按0处理
		util.ZeroBytes(buf[n:])
		err = nil
	}
	if err != nil {
		return err
	}
	atomic.AddUint64(&ps.readCount, 1)
	return nil
}

func (ps *PageStore) writeRaw(id PageID, buf []byte) error {
	if _, err := ps.medium.WriteAt(buf, int64(id)*int64(ps.pageSize)); err != nil {
		return err
	}
	atomic.AddUint64(&ps.writeCount, 1)
	return nil
}

func (ps *PageStore) checkID(id PageID) error {
	if ps.closed {
		return ErrClosed
	}
	if id == InvalidPageID || id >= ps.next {
		return errors.Wrapf(ErrInvalidPageID, "page %d (allocated up to %d)", id, ps.next)
	}
	return nil
}

func (ps *PageStore) checkBuf(buf []byte) error {
	if len(buf) != ps.pageSize {
		return errors.Wrapf(ErrPageSize, "buffer of %d bytes, page is %d", len(buf), ps.pageSize)
	}
	return nil
}

// PageSize returns the fixed transfer size.
func (ps *PageStore) PageSize() int {
	return ps.pageSize
}

// AllocatePage returns a zero-filled page, reusing the free list first.
func (ps *PageStore) AllocatePage() (PageID, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return InvalidPageID, ErrClosed
	}

	zero := make([]byte, ps.pageSize)
	if ps.freeHead != InvalidPageID {
		id := ps.freeHead
		buf := make([]byte, ps.pageSize)
		if err := ps.readRaw(id, buf); err != nil {
			return InvalidPageID, errors.Wrapf(err, "read free page %d", id)
		}
		if string(buf[freeMagicOffset:freeMagicOffset+4]) != string(freeMagic[:]) {
			return InvalidPageID, errors.Wrapf(ErrBadMeta, "free list head %d is not a free page", id)
		}
		// the previous tenant's bytes must not leak into the new one
		if err := ps.writeRaw(id, zero); err != nil {
			return InvalidPageID, errors.Wrapf(err, "zero page %d", id)
		}
		ps.freeHead = PageID(util.GetUB4(buf, freeNextOffset))
		ps.freeCount--
		logger.Debugf("page store reused page %d, %d free left", id, ps.freeCount)
		return id, nil
	}

	id := ps.next
	if id == PageID(^uint32(0)) {
		return InvalidPageID, errors.New("page id space exhausted")
	}
	if err := ps.writeRaw(id, zero); err != nil {
		return InvalidPageID, errors.Wrapf(err, "extend to page %d", id)
	}
	ps.next++
	return id, nil
}

// ReadPage copies page id into buf, which must be exactly one page long.
func (ps *PageStore) ReadPage(id PageID, buf []byte) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if err := ps.checkID(id); err != nil {
		return err
	}
	if err := ps.checkBuf(buf); err != nil {
		return err
	}
	if err := ps.readRaw(id, buf); err != nil {
		return errors.Wrapf(err, "read page %d", id)
	}
	if isFreePage(buf) {
		util.ZeroBytes(buf)
		return errors.Wrapf(ErrInvalidPageID, "page %d is free", id)
	}
	return nil
}

func isFreePage(buf []byte) bool {
	return string(buf[freeMagicOffset:freeMagicOffset+4]) == string(freeMagic[:]) && util.VerifyPageChecksum(buf)
}

// WritePage stores buf, which must be exactly one page long, at page id.
func (ps *PageStore) WritePage(id PageID, buf []byte) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if err := ps.checkID(id); err != nil {
		return err
	}
	if err := ps.checkBuf(buf); err != nil {
		return err
	}
	return errors.Wrapf(ps.writeRaw(id, buf), "write page %d", id)
}

// FreePage links id into the free list.
func (ps *PageStore) FreePage(id PageID) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if err := ps.checkID(id); err != nil {
		return err
	}

	buf := make([]byte, ps.pageSize)
	if err := ps.readRaw(id, buf); err != nil {
		return errors.Wrapf(err, "read page %d", id)
	}
	if isFreePage(buf) {
		return errors.Wrapf(ErrDoubleFree, "page %d", id)
	}

	util.ZeroBytes(buf)
	copy(buf[freeMagicOffset:], freeMagic[:])
	util.PutUB4(buf, freeNextOffset, uint32(ps.freeHead))
	util.StampPageChecksum(buf)
	if err := ps.writeRaw(id, buf); err != nil {
		return errors.Wrapf(err, "write free page %d", id)
	}
	ps.freeHead = id
	ps.freeCount++
	return nil
}

// Root returns the persisted root pointer, InvalidPageID when unset.
func (ps *PageStore) Root() PageID {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.root
}

// SetRoot records a new root pointer; it is persisted by the next Sync.
func (ps *PageStore) SetRoot(id PageID) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return ErrClosed
	}
	ps.root = id
	return nil
}

// TableID is the identity generated when the file was formatted.
func (ps *PageStore) TableID() uuid.UUID {
	return ps.tableID
}

// NumPages counts every page ever allocated, the meta page included.
func (ps *PageStore) NumPages() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return int(ps.next)
}

func (ps *PageStore) FreeCount() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return int(ps.freeCount)
}

// IOCounts returns the number of page reads and writes issued so far.
func (ps *PageStore) IOCounts() (reads, writes uint64) {
	return atomic.LoadUint64(&ps.readCount), atomic.LoadUint64(&ps.writeCount)
}

// Sync persists the meta page and flushes the medium.
func (ps *PageStore) Sync() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return ErrClosed
	}
	return ps.syncLocked()
}

func (ps *PageStore) syncLocked() error {
	if err := ps.writeMeta(); err != nil {
		return errors.Wrap(err, "write meta page")
	}
	return errors.Wrap(ps.medium.Sync(), "sync medium")
}

// Close syncs and releases the medium. Later calls return ErrClosed.
func (ps *PageStore) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return ErrClosed
	}
	err := ps.syncLocked()
	ps.closed = true
	if cerr := ps.medium.Close(); err == nil {
		err = cerr
	}
	return err
}
