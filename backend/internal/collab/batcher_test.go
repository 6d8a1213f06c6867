package collab

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// 收集冲刷结果的测试回调
type flushRecorder struct {
	mu      sync.Mutex
	winners []Edit
	docIDs  []string
}

func (r *flushRecorder) record(docID string, winner Edit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docIDs = append(r.docIDs, docID)
	r.winners = append(r.winners, winner)
}

func (r *flushRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.winners)
}

func (r *flushRecorder) last() Edit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.winners[len(r.winners)-1]
}

func TestBatcher_CoalescesEditsWithinWindow(t *testing.T) {
	rec := &flushRecorder{}
	b := NewBatcher(60*time.Millisecond, rec.record)

	// 窗口内连续 5 次编辑，只应冲刷 1 次，且胜出的是最后一条
	for i := 1; i <= 5; i++ {
		b.Enqueue("doc1", Edit{
			Content: json.RawMessage(`[{"text":"v` + string(rune('0'+i)) + `"}]`),
			Version: uint64(i),
		})
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(150 * time.Millisecond)

	if got := rec.count(); got != 1 {
		t.Fatalf("flush count = %d, want 1", got)
	}
	if got := rec.last().Version; got != 5 {
		t.Fatalf("winner version = %d, want 5", got)
	}
	if got := string(rec.last().Content); got != `[{"text":"v5"}]` {
		t.Fatalf("winner content = %q, want %q", got, `[{"text":"v5"}]`)
	}
}

func TestBatcher_SpacedEditsFlushSeparately(t *testing.T) {
	rec := &flushRecorder{}
	b := NewBatcher(20*time.Millisecond, rec.record)

	// 间隔大于窗口的 3 次编辑，应各自冲刷
	for i := 1; i <= 3; i++ {
		b.Enqueue("doc1", Edit{Content: json.RawMessage(`[]`), Version: uint64(i)})
		time.Sleep(70 * time.Millisecond)
	}

	if got := rec.count(); got != 3 {
		t.Fatalf("flush count = %d, want 3", got)
	}
}

func TestBatcher_FlushEmptyIsNoop(t *testing.T) {
	rec := &flushRecorder{}
	b := NewBatcher(20*time.Millisecond, rec.record)

	b.Flush("doc1")

	if got := rec.count(); got != 0 {
		t.Fatalf("flush count = %d, want 0", got)
	}
}

func TestBatcher_FlushAllDrainsPending(t *testing.T) {
	rec := &flushRecorder{}
	b := NewBatcher(10*time.Second, rec.record) // 定时器故意拉长，逼 FlushAll 自己动手

	b.Enqueue("doc1", Edit{Content: json.RawMessage(`[]`), Version: 1})
	b.Enqueue("doc2", Edit{Content: json.RawMessage(`[]`), Version: 2})

	b.FlushAll()

	if got := rec.count(); got != 2 {
		t.Fatalf("flush count = %d, want 2", got)
	}
}

func TestBatcher_TimerFireAfterManualFlushIsNoop(t *testing.T) {
	rec := &flushRecorder{}
	b := NewBatcher(30*time.Millisecond, rec.record)

	b.Enqueue("doc1", Edit{Content: json.RawMessage(`[]`), Version: 1})
	b.Flush("doc1")

	// 手动冲刷已清空批次，之后定时器就算触发也不该再冲一次
	time.Sleep(100 * time.Millisecond)

	if got := rec.count(); got != 1 {
		t.Fatalf("flush count = %d, want 1", got)
	}
}

func TestBatcher_DocumentsAreIndependent(t *testing.T) {
	rec := &flushRecorder{}
	b := NewBatcher(40*time.Millisecond, rec.record)

	b.Enqueue("doc1", Edit{Content: json.RawMessage(`[]`), Version: 1})
	b.Enqueue("doc2", Edit{Content: json.RawMessage(`[]`), Version: 9})

	time.Sleep(120 * time.Millisecond)

	if got := rec.count(); got != 2 {
		t.Fatalf("flush count = %d, want 2", got)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	seen := map[string]bool{}
	for _, id := range rec.docIDs {
		seen[id] = true
	}
	if !seen["doc1"] || !seen["doc2"] {
		t.Fatalf("flushed docs = %v, want doc1 and doc2", rec.docIDs)
	}
}
