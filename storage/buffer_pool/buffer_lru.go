package buffer_pool

import (
	"container/list"
	"time"
)

// lruList is a midpoint-insertion LRU split into a young and an old
// sublist. A page read for the first time enters the head of the old
// sublist and only reaches young when it is touched again at least
// oldBlocksTime after it came in, so one long scan cannot flush the hot set.
//
// lruList is not safe for concurrent use; the pool mutex guards it.
type lruList struct {
	youngList *list.List
	oldList   *list.List

	youngPercent  float64
	oldBlocksTime time.Duration
}

func newLRUList(youngPercent float64, oldBlocksTime time.Duration) *lruList {
	return &lruList{
		youngList:     list.New(),
		oldList:       list.New(),
		youngPercent:  youngPercent,
		oldBlocksTime: oldBlocksTime,
	}
}

// Len 返回LRU中的页面数
func (l *lruList) Len() int {
	return l.youngList.Len() + l.oldList.Len()
}

func (l *lruList) YoungLen() int {
	return l.youngList.Len()
}

func (l *lruList) OldLen() int {
	return l.oldList.Len()
}

// Insert puts a newly loaded frame at the midpoint.
func (l *lruList) Insert(f *BufferFrame, now time.Time) {
	f.isInYoungRegion = false
	f.firstAccess = now
	f.lastAccess = now
	f.elem = l.oldList.PushFront(f)
}

// Touch records an access to a resident frame.
func (l *lruList) Touch(f *BufferFrame, now time.Time) {
	f.lastAccess = now
	if f.elem == nil {
		return
	}
	if f.isInYoungRegion {
		l.youngList.MoveToFront(f.elem)
		return
	}
	if now.Sub(f.firstAccess) < l.oldBlocksTime {
		return
	}
	l.oldList.Remove(f.elem)
	f.isInYoungRegion = true
	f.elem = l.youngList.PushFront(f)
	l.balance()
}

// Remove drops the frame from whichever sublist holds it.
func (l *lruList) Remove(f *BufferFrame) {
	if f.elem == nil {
		return
	}
	if f.isInYoungRegion {
		l.youngList.Remove(f.elem)
	} else {
		l.oldList.Remove(f.elem)
	}
	f.elem = nil
	f.isInYoungRegion = false
}

// Victim returns the least recently used unpinned frame, looking at the old
// tail first and then the young tail. Nil means every frame is pinned.
func (l *lruList) Victim() *BufferFrame {
	for e := l.oldList.Back(); e != nil; e = e.Prev() {
		if f := e.Value.(*BufferFrame); f.pinCount == 0 {
			return f
		}
	}
	for e := l.youngList.Back(); e != nil; e = e.Prev() {
		if f := e.Value.(*BufferFrame); f.pinCount == 0 {
			return f
		}
	}
	return nil
}

// balance demotes the young tail while young holds more than its share.
func (l *lruList) balance() {
	limit := int(float64(l.Len()) * l.youngPercent)
	for l.youngList.Len() > limit && l.youngList.Len() > 0 {
		e := l.youngList.Back()
		f := e.Value.(*BufferFrame)
		l.youngList.Remove(e)
		f.isInYoungRegion = false
		f.elem = l.oldList.PushFront(f)
	}
}
