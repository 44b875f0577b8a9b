package table

import (
	"sync"
	"sync/atomic"

	"github.com/zhukovaskychina/ycsb-btreedb/logger"
)

// 进程内共享的表实例及其引用计数
var (
	sharedMu   sync.Mutex
	shared     *Table
	sharedRefs int
)

// Handle is one reference to the process-wide table. It exposes the table's
// methods directly; Close releases this reference only.
type Handle struct {
	*Table
	released int32
}

// Open returns a handle to the shared table, creating it on first use. Later
// calls share the existing table even when they name another path.
func Open(opts Options) (*Handle, error) {
	if opts.Path == "" {
		return nil, ErrEmptyPath
	}
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if shared == nil {
		t, err := New(opts)
		if err != nil {
			return nil, err
		}
		shared = t
	} else if shared.Path() != opts.Path {
		logger.Warnf("table %s already open, ignoring %s", shared.Path(), opts.Path)
	}
	sharedRefs++
	logger.Debugf("table %s handle opened, refs=%d", shared.Path(), sharedRefs)
	return &Handle{Table: shared}, nil
}

// Close drops this handle's reference. The last one tears the table down.
// Closing the same handle again returns ErrClosed and changes nothing.
func (h *Handle) Close() error {
	if !atomic.CompareAndSwapInt32(&h.released, 0, 1) {
		return ErrClosed
	}
	sharedMu.Lock()
	defer sharedMu.Unlock()

	sharedRefs--
	if sharedRefs > 0 {
		logger.Debugf("table %s handle closed, refs=%d", h.Path(), sharedRefs)
		return nil
	}
	t := shared
	shared = nil
	sharedRefs = 0
	return t.Close()
}

// LiveInstances reports how many shared tables exist, 0 or 1.
func LiveInstances() int {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared == nil {
		return 0
	}
	return 1
}

// RefCount 当前引用数
func RefCount() int {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	return sharedRefs
}
