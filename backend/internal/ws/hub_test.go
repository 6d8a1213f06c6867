package ws

import (
	"encoding/json"
	"testing"
)

func newTestConn(clientID, name string) *Conn {
	return &Conn{
		clientID: clientID,
		name:     name,
		send:     make(chan ServerMessage, 8),
	}
}

func drain(c *Conn) []ServerMessage {
	var out []ServerMessage
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestHub_JoinReturnsMembers(t *testing.T) {
	h := NewHub(nil)
	a := newTestConn("a", "alice")
	b := newTestConn("b", "bob")

	if got := len(h.Join("doc1", a)); got != 1 {
		t.Fatalf("members after first join = %d, want 1", got)
	}
	if got := len(h.Join("doc1", b)); got != 2 {
		t.Fatalf("members after second join = %d, want 2", got)
	}
}

func TestHub_LeaveReapsEmptyRoom(t *testing.T) {
	h := NewHub(nil)
	a := newTestConn("a", "alice")
	b := newTestConn("b", "bob")
	h.Join("doc1", a)
	h.Join("doc1", b)

	if got := h.Leave("doc1", a); got != 1 {
		t.Fatalf("remaining after first leave = %d, want 1", got)
	}
	if got := h.Leave("doc1", b); got != 0 {
		t.Fatalf("remaining after second leave = %d, want 0", got)
	}
	// 空房间已回收，再 join 是全新房间
	if got := len(h.Join("doc1", a)); got != 1 {
		t.Fatalf("members after rejoin = %d, want 1", got)
	}
}

func TestHub_BroadcastDocumentChangedExcludesOriginator(t *testing.T) {
	h := NewHub(nil)
	a := newTestConn("a", "alice")
	b := newTestConn("b", "bob")
	h.Join("doc1", a)
	h.Join("doc1", b)

	h.BroadcastDocumentChanged("doc1", "a", json.RawMessage(`[{"text":"hi!"}]`), 2)

	if got := drain(a); len(got) != 0 {
		t.Fatalf("originator received %d messages, want 0 (no self-echo)", len(got))
	}
	msgs := drain(b)
	if len(msgs) != 1 {
		t.Fatalf("other member received %d messages, want 1", len(msgs))
	}
	if msgs[0].Type != MsgDocumentChanged || msgs[0].Version != 2 {
		t.Fatalf("message = %+v, want type %q version 2", msgs[0], MsgDocumentChanged)
	}
}

func TestHub_BroadcastUsersReachesEveryone(t *testing.T) {
	h := NewHub(nil)
	a := newTestConn("a", "alice")
	b := newTestConn("b", "bob")
	h.Join("doc1", a)
	h.Join("doc1", b)

	h.BroadcastUsers("doc1")

	for _, c := range []*Conn{a, b} {
		msgs := drain(c)
		if len(msgs) != 1 {
			t.Fatalf("conn %s received %d messages, want 1", c.clientID, len(msgs))
		}
		if msgs[0].Type != MsgUsersChanged || len(msgs[0].Users) != 2 {
			t.Fatalf("conn %s message = %+v, want users-changed with 2 users", c.clientID, msgs[0])
		}
	}
}

func TestHub_BroadcastCursorExcludesOriginator(t *testing.T) {
	h := NewHub(nil)
	a := newTestConn("a", "alice")
	b := newTestConn("b", "bob")
	h.Join("doc1", a)
	h.Join("doc1", b)

	h.BroadcastCursor("doc1", "a", json.RawMessage(`{"path":[0],"offset":3}`))

	if got := drain(a); len(got) != 0 {
		t.Fatalf("originator received %d cursor messages, want 0", len(got))
	}
	msgs := drain(b)
	if len(msgs) != 1 || msgs[0].Type != MsgCursorMoved || msgs[0].UserID != "a" {
		t.Fatalf("messages = %+v, want one cursor-moved from %q", msgs, "a")
	}
}

func TestHub_BroadcastToUnknownRoomIsNoop(t *testing.T) {
	h := NewHub(nil)
	// 不该 panic，也不该发给任何人
	h.BroadcastDocumentChanged("ghost", "a", json.RawMessage(`[]`), 1)
	h.BroadcastUsers("ghost")
}
