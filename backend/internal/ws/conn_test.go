package ws

import (
	"encoding/json"
	"sync"
	"testing"
)

func TestConn_EnqueueAfterCloseIsDropped(t *testing.T) {
	c := newTestConn("a", "alice")
	c.closeSend()

	// 广播先快照目标再在锁外入队，目标可能在两步之间离开并关闭；
	// 关闭后的入队必须静默丢弃，而不是向已关闭的通道发送
	c.Enqueue(ServerMessage{Type: MsgDocumentChanged, DocID: "doc1"})

	if _, ok := <-c.send; ok {
		t.Fatalf("Enqueue after close delivered a message, want dropped")
	}
}

func TestConn_CloseSendIsIdempotent(t *testing.T) {
	c := newTestConn("a", "alice")
	c.closeSend()
	c.closeSend()
}

func TestConn_ConcurrentBroadcastAndClose(t *testing.T) {
	h := NewHub(nil)
	a := newTestConn("a", "alice")
	b := newTestConn("b", "bob")
	h.Join("doc1", a)
	h.Join("doc1", b)

	// 提交 goroutine 持续广播，b 同时离开并关闭出站队列
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			h.BroadcastDocumentChanged("doc1", "a", json.RawMessage(`[]`), uint64(i))
		}
	}()
	go func() {
		defer wg.Done()
		h.Leave("doc1", b)
		b.closeSend()
	}()
	wg.Wait()
}
