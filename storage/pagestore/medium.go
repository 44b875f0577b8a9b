package pagestore

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/zhukovaskychina/ycsb-btreedb/util"
)

// Medium is the backing storage of a PageStore.
type Medium interface {
	io.ReaderAt
	io.WriterAt
	Sync() error
	Close() error
	Size() (int64, error)
}

type fileMedium struct {
	*os.File
}

// OpenFileMedium opens or creates the file at path.
func OpenFileMedium(path string) (Medium, error) {
	if err := util.EnsureParentDir(path); err != nil {
		return nil, errors.Wrapf(err, "create directory for %s", path)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return &fileMedium{File: f}, nil
}

func (m *fileMedium) Size() (int64, error) {
	fi, err := m.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// MemoryMedium keeps everything in a byte slice. It survives Close so a test
// can reopen a store over the same contents.
type MemoryMedium struct {
	mu   sync.RWMutex
	data []byte
}

func NewMemoryMedium() *MemoryMedium {
	return &MemoryMedium{}
}

func (m *MemoryMedium) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *MemoryMedium) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := off + int64(len(p))
	if end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	return copy(m.data[off:], p), nil
}

func (m *MemoryMedium) Sync() error { return nil }

func (m *MemoryMedium) Close() error { return nil }

func (m *MemoryMedium) Size() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.data)), nil
}

// Bytes exposes the raw contents, for tests that inspect the medium.
func (m *MemoryMedium) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}
