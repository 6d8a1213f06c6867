package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"syncServer/backend/internal/cache"
)

// 内存版 PresenceCache，测试替身
type fakePresence struct {
	members map[string][]cache.PresenceMember
	cursors map[string]json.RawMessage
}

func (f *fakePresence) AddMember(ctx context.Context, docID, clientID, name string, ttl time.Duration) error {
	return nil
}

func (f *fakePresence) RemoveMember(ctx context.Context, docID, clientID string) error {
	return nil
}

func (f *fakePresence) GetAliveMembersWithNames(ctx context.Context, docID string) ([]cache.PresenceMember, error) {
	return f.members[docID], nil
}

func (f *fakePresence) SetCursor(ctx context.Context, docID, clientID string, jsonData []byte, ttl time.Duration) error {
	return nil
}

func (f *fakePresence) GetCursor(ctx context.Context, docID, clientID string) ([]byte, error) {
	if cur, ok := f.cursors[docID+"/"+clientID]; ok {
		return cur, nil
	}
	return nil, errors.New("cursor not set")
}

func newPresenceRouter(p cache.PresenceCache) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/documents/:id/presence", NewPresenceHandler(p).Presence)
	return r
}

func TestPresenceHandler_ReturnsAliveMembersWithCursors(t *testing.T) {
	fp := &fakePresence{
		members: map[string][]cache.PresenceMember{
			"doc1": {
				{ClientID: "c1", Name: "alice"},
				{ClientID: "c2", Name: "bob"},
			},
		},
		cursors: map[string]json.RawMessage{
			"doc1/c1": json.RawMessage(`{"path":[0],"offset":3}`),
		},
	}
	r := newPresenceRouter(fp)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/documents/doc1/presence", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got []presenceMember
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("members = %d, want 2", len(got))
	}
	byID := map[string]presenceMember{}
	for _, m := range got {
		byID[m.ClientID] = m
	}
	if byID["c1"].Name != "alice" || string(byID["c1"].Cursor) != `{"path":[0],"offset":3}` {
		t.Fatalf("c1 = %+v, want alice with cursor", byID["c1"])
	}
	// c2 没设过光标，响应里不带
	if len(byID["c2"].Cursor) != 0 {
		t.Fatalf("c2 cursor = %s, want empty", byID["c2"].Cursor)
	}
}

func TestPresenceHandler_EmptyRoom(t *testing.T) {
	r := newPresenceRouter(&fakePresence{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/documents/ghost/presence", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if body := w.Body.String(); body != "[]" {
		t.Fatalf("body = %q, want empty array", body)
	}
}
