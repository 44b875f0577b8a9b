package buffer_pool

import (
	"sync/atomic"
	"time"
)

// BufferPoolStats 缓冲池统计信息
type BufferPoolStats struct {
	// 页面统计
	TotalFrames int64
	FreeFrames  int64
	DirtyPages  int64
	PinnedPages int64
	OldPages    int64
	YoungPages  int64

	// 命中率统计
	PageRequests int64
	PageHits     int64
	PageMisses   int64

	// IO统计
	PageReads     int64
	PageWrites    int64
	PageEvictions int64

	// 刷新统计
	FlushRequests int64
	FlushFailures int64

	// 性能统计
	ReadLatencyTotal  int64 // 纳秒
	WriteLatencyTotal int64 // 纳秒
	LastResetTime     time.Time
}

// NewBufferPoolStats 创建新的统计对象
func NewBufferPoolStats() *BufferPoolStats {
	return &BufferPoolStats{
		LastResetTime: time.Now(),
	}
}

// RecordPageRequest 记录页面请求
func (s *BufferPoolStats) RecordPageRequest(hit bool) {
	atomic.AddInt64(&s.PageRequests, 1)
	if hit {
		atomic.AddInt64(&s.PageHits, 1)
	} else {
		atomic.AddInt64(&s.PageMisses, 1)
	}
}

// RecordPageIO 记录页面IO
func (s *BufferPoolStats) RecordPageIO(isRead bool, latencyNs int64) {
	if isRead {
		atomic.AddInt64(&s.PageReads, 1)
		atomic.AddInt64(&s.ReadLatencyTotal, latencyNs)
	} else {
		atomic.AddInt64(&s.PageWrites, 1)
		atomic.AddInt64(&s.WriteLatencyTotal, latencyNs)
	}
}

// RecordEviction 记录页面淘汰
func (s *BufferPoolStats) RecordEviction() {
	atomic.AddInt64(&s.PageEvictions, 1)
}

// RecordFlush 记录刷新统计
func (s *BufferPoolStats) RecordFlush(success bool) {
	atomic.AddInt64(&s.FlushRequests, 1)
	if !success {
		atomic.AddInt64(&s.FlushFailures, 1)
	}
}

// Snapshot copies the counters. Frame gauges are filled in by the pool.
func (s *BufferPoolStats) Snapshot() BufferPoolStats {
	return BufferPoolStats{
		PageRequests:      atomic.LoadInt64(&s.PageRequests),
		PageHits:          atomic.LoadInt64(&s.PageHits),
		PageMisses:        atomic.LoadInt64(&s.PageMisses),
		PageReads:         atomic.LoadInt64(&s.PageReads),
		PageWrites:        atomic.LoadInt64(&s.PageWrites),
		PageEvictions:     atomic.LoadInt64(&s.PageEvictions),
		FlushRequests:     atomic.LoadInt64(&s.FlushRequests),
		FlushFailures:     atomic.LoadInt64(&s.FlushFailures),
		ReadLatencyTotal:  atomic.LoadInt64(&s.ReadLatencyTotal),
		WriteLatencyTotal: atomic.LoadInt64(&s.WriteLatencyTotal),
		LastResetTime:     s.LastResetTime,
	}
}

// Reset 重置统计信息
func (s *BufferPoolStats) Reset() {
	atomic.StoreInt64(&s.PageRequests, 0)
	atomic.StoreInt64(&s.PageHits, 0)
	atomic.StoreInt64(&s.PageMisses, 0)
	atomic.StoreInt64(&s.PageReads, 0)
	atomic.StoreInt64(&s.PageWrites, 0)
	atomic.StoreInt64(&s.PageEvictions, 0)
	atomic.StoreInt64(&s.FlushRequests, 0)
	atomic.StoreInt64(&s.FlushFailures, 0)
	atomic.StoreInt64(&s.ReadLatencyTotal, 0)
	atomic.StoreInt64(&s.WriteLatencyTotal, 0)
	s.LastResetTime = time.Now()
}

// HitRatio 获取命中率
func (s BufferPoolStats) HitRatio() float64 {
	if s.PageRequests == 0 {
		return 0
	}
	return float64(s.PageHits) / float64(s.PageRequests)
}

// AvgReadLatency 平均读延迟（纳秒）
func (s BufferPoolStats) AvgReadLatency() float64 {
	if s.PageReads == 0 {
		return 0
	}
	return float64(s.ReadLatencyTotal) / float64(s.PageReads)
}

// AvgWriteLatency 平均写延迟（纳秒）
func (s BufferPoolStats) AvgWriteLatency() float64 {
	if s.PageWrites == 0 {
		return 0
	}
	return float64(s.WriteLatencyTotal) / float64(s.PageWrites)
}
