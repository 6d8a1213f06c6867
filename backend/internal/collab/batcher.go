package collab

import (
	"encoding/json"
	"sync"
	"time"
)

// Edit 待提交的编辑事件：客户端提交的整篇内容与其声称的版本号
type Edit struct {
	Content   json.RawMessage
	Version   uint64
	ClientID  string
	ArrivedAt time.Time
}

const DefaultBatchDelay = 1000 * time.Millisecond

// Batcher 把一阵密集编辑折叠成一次提交，限制对 MySQL 的写放大。
// 防抖语义：每个文档同时最多一个在途定时器，新编辑到来时取消并重置；
// 窗口关闭时只有最后一条编辑胜出（窗口内 last-write-wins）。
type Batcher struct {
	mu      sync.Mutex
	delay   time.Duration
	pending map[string][]Edit
	timers  map[string]*time.Timer
	flushFn func(docID string, winner Edit)
}

func NewBatcher(delay time.Duration, flushFn func(docID string, winner Edit)) *Batcher {
	if delay <= 0 {
		delay = DefaultBatchDelay
	}
	return &Batcher{
		delay:   delay,
		pending: make(map[string][]Edit),
		timers:  make(map[string]*time.Timer),
		flushFn: flushFn,
	}
}

// Enqueue 追加到该文档的待提交批次，并重置防抖定时器
func (b *Batcher) Enqueue(docID string, e Edit) {
	b.mu.Lock()
	b.pending[docID] = append(b.pending[docID], e)
	if t, ok := b.timers[docID]; ok {
		t.Stop()
	}
	b.timers[docID] = time.AfterFunc(b.delay, func() { b.Flush(docID) })
	b.mu.Unlock()
}

// Flush 取批次中最后一条编辑交给提交回调，清空批次与定时器；空批次是 no-op。
// 窗口内更早的编辑被丢弃，不会落盘也不会广播——下游只需要收敛到最新状态。
func (b *Batcher) Flush(docID string) {
	b.mu.Lock()
	batch := b.pending[docID]
	if len(batch) == 0 {
		b.mu.Unlock()
		return
	}
	winner := batch[len(batch)-1]
	delete(b.pending, docID)
	if t, ok := b.timers[docID]; ok {
		t.Stop()
		delete(b.timers, docID)
	}
	b.mu.Unlock()

	// 回调在锁外执行：提交可能很慢（MySQL 写），期间允许新批次开始积累
	b.flushFn(docID, winner)
}

// FlushAll 逐文档冲刷所有待提交批次。
// 停机或房间清空时的兜底，避免吞掉会话的最后一笔编辑。
func (b *Batcher) FlushAll() {
	b.mu.Lock()
	ids := make([]string, 0, len(b.pending))
	for id := range b.pending {
		ids = append(ids, id)
	}
	b.mu.Unlock()
	for _, id := range ids {
		b.Flush(id)
	}
}
