package btree

import (
	"bytes"
	"fmt"
	"math/rand"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhukovaskychina/ycsb-btreedb/storage/buffer_pool"
	"github.com/zhukovaskychina/ycsb-btreedb/storage/pagestore"
)

const testPageSize = 512

func newTestTree(t *testing.T, frames int) (*BTree, *buffer_pool.BufferPool, *pagestore.PageStore) {
	t.Helper()
	store, err := pagestore.Open(pagestore.NewMemoryMedium(), testPageSize)
	require.NoError(t, err)
	pool, err := buffer_pool.NewBufferPool(store, &buffer_pool.BufferPoolConfig{PoolSize: uint64(frames * testPageSize)})
	require.NoError(t, err)
	tree, err := Open(pool, store)
	require.NoError(t, err)
	return tree, pool, store
}

func key(i int) []byte {
	return []byte(fmt.Sprintf("key%06d", i))
}

func value(i, version int) []byte {
	return []byte(fmt.Sprintf("value-%d-v%d", i, version))
}

func TestPutGetRoundTrip(t *testing.T) {
	tree, _, _ := newTestTree(t, 16)
	rnd := rand.New(rand.NewSource(7))
	order := rnd.Perm(2000)

	for _, i := range order {
		require.NoError(t, tree.Put(key(i), value(i, 1)))
	}
	for _, i := range order[:1000] {
		require.NoError(t, tree.Put(key(i), value(i, 2)))
	}

	latest := make(map[int]int)
	for _, i := range order {
		latest[i] = 1
	}
	for _, i := range order[:1000] {
		latest[i] = 2
	}
	for i, version := range latest {
		got, found, err := tree.Get(key(i))
		require.NoError(t, err)
		require.True(t, found, "key %d", i)
		assert.Equal(t, value(i, version), got)
	}

	_, found, err := tree.Get([]byte("missing"))
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, tree.Check())
	s, err := tree.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2000, s.Keys)
	assert.True(t, s.Height >= 3, "height %d", s.Height)
	assert.True(t, s.InternalPages > 1)
}

func TestEmptyValue(t *testing.T) {
	tree, _, _ := newTestTree(t, 8)
	require.NoError(t, tree.Put([]byte("k"), nil))
	got, found, err := tree.Get([]byte("k"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte{}, got)
}

func TestKeyLimits(t *testing.T) {
	tree, _, _ := newTestTree(t, 8)
	assert.True(t, errors.Is(tree.Put(nil, []byte("v")), ErrEmptyKey))
	_, _, err := tree.Get([]byte{})
	assert.True(t, errors.Is(err, ErrEmptyKey))

	big := bytes.Repeat([]byte("k"), MaxKeySize(testPageSize)+1)
	assert.True(t, errors.Is(tree.Put(big, []byte("v")), ErrKeyTooLarge))

	edge := bytes.Repeat([]byte("k"), MaxKeySize(testPageSize))
	require.NoError(t, tree.Put(edge, []byte("v")))

	// positioning has no size limit: big sorts right after edge
	it, err := tree.Seek(big)
	require.NoError(t, err)
	assert.True(t, it.IsEnd())
	it, err = tree.Seek(big[:len(big)-2])
	require.NoError(t, err)
	require.False(t, it.IsEnd())
	assert.Equal(t, edge, it.Key())
}

func TestSeekOrdering(t *testing.T) {
	tree, _, _ := newTestTree(t, 16)
	rnd := rand.New(rand.NewSource(11))
	var all []string
	for _, i := range rnd.Perm(1500) {
		k := key(i * 3)
		all = append(all, string(k))
		require.NoError(t, tree.Put(k, value(i, 0)))
	}
	sort.Strings(all)

	for _, start := range []string{"", "key000000", "key000100", "key001001", "key004497", "key9"} {
		it, err := tree.Seek([]byte(start))
		require.NoError(t, err)

		want := all[sort.SearchStrings(all, start):]
		var got []string
		var prev []byte
		for !it.IsEnd() {
			k := it.Key()
			assert.True(t, bytes.Compare(k, []byte(start)) >= 0)
			if prev != nil {
				assert.True(t, bytes.Compare(prev, k) < 0, "%s then %s", prev, k)
			}
			prev = k
			got = append(got, string(k))
			require.NoError(t, it.Next())
		}
		require.NoError(t, it.Err())
		require.NoError(t, it.Close())
		assert.Equal(t, len(want), len(got), "seek %q", start)
		if len(want) > 0 {
			assert.Equal(t, want[0], got[0])
		}
	}
}

func TestOverflowValues(t *testing.T) {
	tree, _, store := newTestTree(t, 16)
	big := bytes.Repeat([]byte("0123456789"), 500)

	require.NoError(t, tree.Put([]byte("big"), big))
	require.NoError(t, tree.Put([]byte("small"), []byte("s")))
	got, found, err := tree.Get([]byte("big"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, big, got)

	s, err := tree.Stats()
	require.NoError(t, err)
	chain := (len(big) + bodySize(testPageSize) - 1) / bodySize(testPageSize)
	assert.Equal(t, chain, s.OverflowPages)

	it, err := tree.Seek([]byte("big"))
	require.NoError(t, err)
	assert.Equal(t, big, it.Value())

	// replacing an overflow value frees its chain
	require.NoError(t, tree.Put([]byte("big"), []byte("tiny")))
	assert.Equal(t, chain, store.FreeCount())
	s, err = tree.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, s.OverflowPages)

	require.NoError(t, tree.Put([]byte("big"), big))
	assert.Equal(t, 0, store.FreeCount())
	deleted, err := tree.Delete([]byte("big"))
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, chain, store.FreeCount())
}

func TestDeleteReclaimsPages(t *testing.T) {
	tree, _, store := newTestTree(t, 16)
	for i := 0; i < 600; i++ {
		require.NoError(t, tree.Put(key(i), value(i, 0)))
	}
	before, err := tree.Stats()
	require.NoError(t, err)
	require.True(t, before.LeafPages > 10)

	// delete from the middle outwards, checking the structure as leaves go
	for i := 300; i < 600; i++ {
		deleted, err := tree.Delete(key(i))
		require.NoError(t, err)
		require.True(t, deleted)
	}
	require.NoError(t, tree.Check())
	for i := 299; i >= 0; i-- {
		deleted, err := tree.Delete(key(i))
		require.NoError(t, err)
		require.True(t, deleted)
		if i%50 == 0 {
			require.NoError(t, tree.Check())
		}
	}

	s, err := tree.Stats()
	require.NoError(t, err)
	assert.Equal(t, TreeStats{Height: 1, LeafPages: 1}, s)
	assert.Equal(t, store.NumPages()-2, store.FreeCount(), "only the meta page and the root survive")

	deleted, err := tree.Delete(key(1))
	require.NoError(t, err)
	assert.False(t, deleted)

	pages := store.NumPages()
	for i := 0; i < 600; i++ {
		require.NoError(t, tree.Put(key(i), value(i, 1)))
	}
	assert.Equal(t, pages, store.NumPages(), "freed pages are reused")
	require.NoError(t, tree.Check())
}

func TestDeleteKeepsOrdering(t *testing.T) {
	tree, _, _ := newTestTree(t, 16)
	rnd := rand.New(rand.NewSource(3))
	live := make(map[int]bool)
	for _, i := range rnd.Perm(1000) {
		require.NoError(t, tree.Put(key(i), value(i, 0)))
		live[i] = true
	}
	for _, i := range rnd.Perm(1000)[:700] {
		_, err := tree.Delete(key(i))
		require.NoError(t, err)
		delete(live, i)
	}
	require.NoError(t, tree.Check())

	it, err := tree.Seek(nil)
	require.NoError(t, err)
	count := 0
	for ; !it.IsEnd(); require.NoError(t, it.Next()) {
		var i int
		_, err := fmt.Sscanf(string(it.Key()), "key%06d", &i)
		require.NoError(t, err)
		assert.True(t, live[i])
		count++
	}
	assert.Equal(t, len(live), count)
}

func TestReopenFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.db")
	open := func() (*BTree, *buffer_pool.BufferPool, *pagestore.PageStore) {
		store, err := pagestore.OpenFile(path, testPageSize)
		require.NoError(t, err)
		pool, err := buffer_pool.NewBufferPool(store, &buffer_pool.BufferPoolConfig{PoolSize: 16 * testPageSize})
		require.NoError(t, err)
		tree, err := Open(pool, store)
		require.NoError(t, err)
		return tree, pool, store
	}

	tree, pool, store := open()
	for i := 0; i < 500; i++ {
		require.NoError(t, tree.Put(key(i), value(i, 0)))
	}
	root := tree.Root()
	require.NoError(t, tree.Flush())
	require.NoError(t, pool.Close())
	require.NoError(t, store.Close())

	tree, pool, store = open()
	defer store.Close()
	defer pool.Close()
	assert.Equal(t, root, tree.Root())
	for i := 0; i < 500; i++ {
		got, found, err := tree.Get(key(i))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, value(i, 0), got)
	}
	require.NoError(t, tree.Check())
}

func TestIteratorSurvivesConcurrentChanges(t *testing.T) {
	tree, _, _ := newTestTree(t, 16)
	for i := 0; i < 600; i += 2 {
		require.NoError(t, tree.Put(key(i), value(i, 0)))
	}

	it, err := tree.Seek(key(0))
	require.NoError(t, err)
	for n := 0; n < 5; n++ {
		require.NoError(t, it.Next())
	}

	// splits behind and ahead of the cursor, then leaves freed ahead of it
	for i := 1; i < 600; i += 2 {
		require.NoError(t, tree.Put(key(i), value(i, 0)))
	}
	for i := 100; i < 400; i++ {
		_, err := tree.Delete(key(i))
		require.NoError(t, err)
	}

	seen := make(map[string]bool)
	var prev []byte
	for ; !it.IsEnd(); require.NoError(t, it.Next()) {
		k := it.Key()
		if prev != nil {
			require.True(t, bytes.Compare(prev, k) < 0, "%s then %s", prev, k)
		}
		prev = k
		seen[string(k)] = true
	}
	require.NoError(t, it.Err())
	for i := 400; i < 600; i += 2 {
		assert.True(t, seen[string(key(i))], "missing %s", key(i))
	}
}

func TestIteratorOverFreedLeafThenReuse(t *testing.T) {
	tree, pool, store := newTestTree(t, 8)
	for i := 0; i < 300; i++ {
		require.NoError(t, tree.Put(key(i), value(i, 0)))
	}

	it, err := tree.Seek(key(0))
	require.NoError(t, err)
	ahead, err := tree.readNode(it.next)
	require.NoError(t, err)
	require.True(t, ahead.isLeaf())
	freed := ahead.id
	gone := make(map[string]bool)
	for _, k := range ahead.keys {
		found, err := tree.Delete(k)
		require.NoError(t, err)
		require.True(t, found)
		gone[string(k)] = true
	}

	// step onto the freed sibling: the iterator must descend again
	var prev []byte
	for n := len(it.keys); n > 0; n-- {
		prev = it.Key()
		require.NoError(t, it.Next())
	}
	require.False(t, it.IsEnd())
	assert.True(t, bytes.Compare(prev, it.Key()) < 0)
	assert.False(t, gone[string(it.Key())])
	_, err = pool.FetchPage(freed)
	assert.True(t, errors.Is(err, pagestore.ErrInvalidPageID))

	// the freed page is the next one handed out, here to an overflow chain
	big := bytes.Repeat([]byte("B"), 300)
	require.NoError(t, tree.Put([]byte("zzz-big"), big))
	assert.Equal(t, 0, store.FreeCount())

	for i := 0; i < 300; i++ {
		got, found, err := tree.Get(key(i))
		require.NoError(t, err)
		if gone[string(key(i))] {
			assert.False(t, found)
		} else {
			require.True(t, found, "key %d", i)
			assert.Equal(t, value(i, 0), got)
		}
		got, found, err = tree.Get([]byte("zzz-big"))
		require.NoError(t, err, "after key %d", i)
		require.True(t, found)
		require.Equal(t, big, got)
	}
	require.NoError(t, tree.Check())

	for ; !it.IsEnd(); require.NoError(t, it.Next()) {
		assert.False(t, gone[string(it.Key())])
	}
	require.NoError(t, it.Err())
}

func TestSeekPastEnd(t *testing.T) {
	tree, _, _ := newTestTree(t, 8)
	require.NoError(t, tree.Put([]byte("a"), []byte("1")))
	it, err := tree.Seek([]byte("b"))
	require.NoError(t, err)
	assert.True(t, it.IsEnd())
	assert.Nil(t, it.Key())
	require.NoError(t, it.Close())
	assert.True(t, errors.Is(it.Next(), ErrClosed))
}

func TestConcurrentReadersAndWriter(t *testing.T) {
	tree, _, _ := newTestTree(t, 64)
	for i := 0; i < 500; i++ {
		require.NoError(t, tree.Put(key(i), value(i, 0)))
	}

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 500; i < 1500; i++ {
			if err := tree.Put(key(i), value(i, 0)); err != nil {
				errs <- err
				return
			}
		}
	}()
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				got, found, err := tree.Get(key(i))
				if err != nil {
					errs <- err
					return
				}
				if !found || !bytes.Equal(got, value(i, 0)) {
					errs <- fmt.Errorf("reader %d: bad value for %s", r, key(i))
					return
				}
			}
			it, err := tree.Seek(key(r * 100))
			if err != nil {
				errs <- err
				return
			}
			for n := 0; n < 50 && !it.IsEnd(); n++ {
				if err := it.Next(); err != nil {
					errs <- err
					return
				}
			}
		}(r)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	require.NoError(t, tree.Check())
}
