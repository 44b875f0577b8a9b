package table

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Options{})
	assert.True(t, errors.Is(err, ErrEmptyPath))
	assert.Equal(t, 0, LiveInstances())
}

func TestConcurrentOpenClose(t *testing.T) {
	opts := testOptions(t)
	const n = 32

	handles := make([]*Handle, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := Open(opts)
			if assert.NoError(t, err) {
				handles[i] = h
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, LiveInstances())
	assert.Equal(t, n, RefCount())
	for _, h := range handles[1:] {
		assert.Same(t, handles[0].Table, h.Table)
	}

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(h *Handle) {
			defer wg.Done()
			assert.NoError(t, h.Close())
		}(handles[i])
	}
	wg.Wait()
	assert.Equal(t, 0, LiveInstances())
	assert.Equal(t, 0, RefCount())

	// one close too many
	assert.True(t, errors.Is(handles[0].Close(), ErrClosed))
	assert.Equal(t, 0, RefCount())
}

func TestDoubleCloseDoesNotStealReference(t *testing.T) {
	opts := testOptions(t)
	a, err := Open(opts)
	require.NoError(t, err)
	b, err := Open(opts)
	require.NoError(t, err)

	require.NoError(t, a.Close())
	assert.True(t, errors.Is(a.Close(), ErrClosed))
	assert.Equal(t, 1, LiveInstances())

	require.NoError(t, b.Put([]byte("still"), []byte("open")))
	require.NoError(t, b.Close())
	assert.Equal(t, 0, LiveInstances())
}

func TestSecondPathSharesFirstTable(t *testing.T) {
	first := testOptions(t)
	a, err := Open(first)
	require.NoError(t, err)
	b, err := Open(Options{Path: filepath.Join(t.TempDir(), "other.db")})
	require.NoError(t, err)

	assert.Equal(t, first.Path, b.Path())
	require.NoError(t, b.Close())
	require.NoError(t, a.Close())

	// a fresh open after teardown starts a new instance
	c, err := Open(first)
	require.NoError(t, err)
	assert.Equal(t, 1, RefCount())
	require.NoError(t, c.Close())
}
