package btree

import (
	"github.com/pkg/errors"
	"github.com/zhukovaskychina/ycsb-btreedb/storage/pagestore"
	"github.com/zhukovaskychina/ycsb-btreedb/util"
)

// writeOverflow stores value in a chain of overflow pages and returns the
// head. The chain is built back to front so each page is pinned only once.
func (t *BTree) writeOverflow(value []byte) (pagestore.PageID, error) {
	chunks := (len(value) + t.body - 1) / t.body
	if chunks == 0 {
		chunks = 1
	}
	next := pagestore.InvalidPageID
	for c := chunks - 1; c >= 0; c-- {
		start := c * t.body
		end := start + t.body
		if end > len(value) {
			end = len(value)
		}
		f, err := t.pool.NewPage()
		if err != nil {
			if next != pagestore.InvalidPageID {
				_ = t.freeOverflow(next)
			}
			return pagestore.InvalidPageID, err
		}
		data := f.Data()
		data[offType] = nodeOverflow
		util.PutUB4(data, offNext, uint32(next))
		util.PutUB4(data, offPrev, uint32(end-start))
		copy(data[headerEnd:], value[start:end])
		next = f.ID()
		if err := t.pool.UnpinPage(next, true); err != nil {
			return pagestore.InvalidPageID, err
		}
	}
	return next, nil
}

// readOverflow reassembles a value of length bytes starting at head.
func (t *BTree) readOverflow(head pagestore.PageID, length uint32) ([]byte, error) {
	value := make([]byte, 0, length)
	limit := int(length)/t.body + 1
	id := head
	for hops := 0; id != pagestore.InvalidPageID; hops++ {
		if hops >= limit {
			return nil, errors.Wrapf(ErrCorrupted, "overflow chain at %d longer than %d pages", head, limit)
		}
		f, err := t.pool.FetchPage(id)
		if err != nil {
			return nil, err
		}
		data := f.Data()
		kind := data[offType]
		next := pagestore.PageID(util.GetUB4(data, offNext))
		n := int(util.GetUB4(data, offPrev))
		if kind == nodeOverflow && n <= t.body {
			value = append(value, data[headerEnd:headerEnd+n]...)
		}
		if err := t.pool.UnpinPage(id, false); err != nil {
			return nil, err
		}
		if kind != nodeOverflow || n > t.body {
			return nil, errors.Wrapf(ErrCorrupted, "page %d is not an overflow page", id)
		}
		id = next
	}
	if uint32(len(value)) != length {
		return nil, errors.Wrapf(ErrCorrupted, "overflow chain at %d holds %d bytes, want %d", head, len(value), length)
	}
	return value, nil
}

// freeOverflow returns every page of the chain to the store.
func (t *BTree) freeOverflow(head pagestore.PageID) error {
	id := head
	for id != pagestore.InvalidPageID {
		f, err := t.pool.FetchPage(id)
		if err != nil {
			return err
		}
		data := f.Data()
		kind := data[offType]
		next := pagestore.PageID(util.GetUB4(data, offNext))
		if err := t.pool.UnpinPage(id, false); err != nil {
			return err
		}
		if kind != nodeOverflow {
			return errors.Wrapf(ErrCorrupted, "page %d is not an overflow page", id)
		}
		if err := t.pool.DeletePage(id); err != nil {
			return err
		}
		id = next
	}
	return nil
}

// overflowPages counts the pages of a chain.
func (t *BTree) overflowPages(head pagestore.PageID) (int, error) {
	count := 0
	id := head
	for id != pagestore.InvalidPageID {
		f, err := t.pool.FetchPage(id)
		if err != nil {
			return count, err
		}
		next := pagestore.PageID(util.GetUB4(f.Data(), offNext))
		if err := t.pool.UnpinPage(id, false); err != nil {
			return count, err
		}
		count++
		id = next
	}
	return count, nil
}
