package buffer_pool

import (
	"github.com/pkg/errors"
)

var (
	// 页面错误
	ErrPageCorrupted = errors.New("page content is corrupted")
	ErrPageNotPinned = errors.New("page is not pinned")
	ErrPagePinned    = errors.New("page is pinned")

	// 缓冲池错误
	ErrBufferPoolFull = errors.New("buffer pool is full: every frame is pinned")
	ErrInvalidConfig  = errors.New("invalid buffer pool configuration")
	ErrPoolClosed     = errors.New("buffer pool is closed")

	// 刷新错误
	ErrFlushFailed = errors.New("failed to flush dirty page")
)

// BufferPoolError 缓冲池错误结构
type BufferPoolError struct {
	Op  string
	Err error
}

func (e *BufferPoolError) Error() string {
	if e.Err == nil {
		return "<nil>"
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *BufferPoolError) Unwrap() error {
	return e.Err
}

// NewError 创建新的缓冲池错误
func NewError(op string, err error) error {
	return &BufferPoolError{
		Op:  op,
		Err: err,
	}
}

// IsBufferPoolFull 检查是否为缓冲池已满错误
func IsBufferPoolFull(err error) bool {
	return errors.Is(err, ErrBufferPoolFull)
}
