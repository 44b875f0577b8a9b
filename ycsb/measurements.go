package ycsb

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/zhukovaskychina/ycsb-btreedb/logger"
	"github.com/zhukovaskychina/ycsb-btreedb/server/conf"
)

// Operation 操作类型
type Operation int

const (
	OpInsert Operation = iota
	OpRead
	OpUpdate
	OpScan
	OpReadModifyWrite
	OpDelete
	maxOpType
)

var operationNames = [maxOpType]string{"INSERT", "READ", "UPDATE", "SCAN", "READMODIFYWRITE", "DELETE"}

func (op Operation) String() string {
	if op < 0 || op >= maxOpType {
		return "UNKNOWN"
	}
	return operationNames[op]
}

// Measurements collects per-operation latencies.
type Measurements interface {
	Report(op Operation, latency time.Duration)
	StatusMsg() string
	Reset()
}

// BasicMeasurements keeps count, sum, min and max per operation with atomics.
type BasicMeasurements struct {
	count [maxOpType]uint64
	sum   [maxOpType]uint64
	min   [maxOpType]uint64
	max   [maxOpType]uint64
}

func NewBasicMeasurements() *BasicMeasurements {
	m := &BasicMeasurements{}
	m.Reset()
	return m
}

// NewMeasurements picks the implementation named by measurement.type.
func NewMeasurements(props *conf.Cfg) Measurements {
	kind := "basic"
	if props != nil {
		kind = props.GetStringDefault("measurement.type", "basic")
	}
	if kind != "basic" {
		logger.Warnf("measurement type %q is not supported, using basic", kind)
	}
	return NewBasicMeasurements()
}

func (m *BasicMeasurements) Report(op Operation, latency time.Duration) {
	if op < 0 || op >= maxOpType {
		return
	}
	ns := uint64(latency.Nanoseconds())
	atomic.AddUint64(&m.count[op], 1)
	atomic.AddUint64(&m.sum[op], ns)
	for {
		cur := atomic.LoadUint64(&m.min[op])
		if ns >= cur || atomic.CompareAndSwapUint64(&m.min[op], cur, ns) {
			break
		}
	}
	for {
		cur := atomic.LoadUint64(&m.max[op])
		if ns <= cur || atomic.CompareAndSwapUint64(&m.max[op], cur, ns) {
			break
		}
	}
}

// Count 某类操作的次数
func (m *BasicMeasurements) Count(op Operation) uint64 {
	return atomic.LoadUint64(&m.count[op])
}

// StatusMsg formats every operation seen so far, latencies in microseconds.
func (m *BasicMeasurements) StatusMsg() string {
	var sb strings.Builder
	for op := Operation(0); op < maxOpType; op++ {
		count := atomic.LoadUint64(&m.count[op])
		if count == 0 {
			continue
		}
		sum := atomic.LoadUint64(&m.sum[op])
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "[%s: Count=%d Max=%.2f Min=%.2f Avg=%.2f]", op, count,
			float64(atomic.LoadUint64(&m.max[op]))/1e3,
			float64(atomic.LoadUint64(&m.min[op]))/1e3,
			float64(sum)/float64(count)/1e3)
	}
	return sb.String()
}

func (m *BasicMeasurements) Reset() {
	for op := 0; op < int(maxOpType); op++ {
		atomic.StoreUint64(&m.count[op], 0)
		atomic.StoreUint64(&m.sum[op], 0)
		atomic.StoreUint64(&m.min[op], math.MaxUint64)
		atomic.StoreUint64(&m.max[op], 0)
	}
}
