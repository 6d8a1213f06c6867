package ws

import (
	"encoding/json"
	"sync"

	"syncServer/backend/internal/cache"
)

// Hub 会话注册表：docID -> 房间内的连接集合。
// 只管成员关系，不碰文档内容；内容状态在同步引擎与缓存里。
type Hub struct {
	// Redis 在线状态句柄，供会话层落地/共享心跳与光标
	presence cache.PresenceCache
	// 保护 rooms，加入/离开/广播都要先拿锁
	mu sync.RWMutex
	// docID -> set of connections
	// 按连接而不是按用户存：同一用户可开多个标签页，广播要逐连接发
	rooms map[string]map[*Conn]struct{}
}

func NewHub(p cache.PresenceCache) *Hub {
	return &Hub{presence: p, rooms: make(map[string]map[*Conn]struct{})}
}

// Join 将连接加入指定文档房间，返回加入后的成员列表
func (h *Hub) Join(docID string, c *Conn) []RoomUser {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[docID] == nil {
		h.rooms[docID] = make(map[*Conn]struct{})
	}
	h.rooms[docID][c] = struct{}{}
	return h.membersLocked(docID)
}

// Leave 将连接从指定文档房间移除，返回剩余成员数。
// 空房间立即回收，避免长时间运行后 map 里堆满死房间。
func (h *Hub) Leave(docID string, c *Conn) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.rooms[docID]
	if !ok {
		return 0
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.rooms, docID)
		return 0
	}
	return len(conns)
}

func (h *Hub) Members(docID string) []RoomUser {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.membersLocked(docID)
}

func (h *Hub) membersLocked(docID string) []RoomUser {
	conns := h.rooms[docID]
	members := make([]RoomUser, 0, len(conns))
	for c := range conns {
		members = append(members, RoomUser{
			ClientID: c.clientID,
			Name:     c.name,
			Color:    c.color,
			Cursor:   c.CursorSnapshot(),
		})
	}
	return members
}

// BroadcastUsers 成员变动时向房间内所有连接推送当前成员列表
func (h *Hub) BroadcastUsers(docID string) {
	h.mu.RLock()
	conns := h.rooms[docID]
	members := h.membersLocked(docID)
	targets := make([]*Conn, 0, len(conns))
	for c := range conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	msg := ServerMessage{Type: MsgUsersChanged, DocID: docID, Users: members}
	for _, c := range targets {
		c.Enqueue(msg)
	}
}

// BroadcastCursor 光标纯转发：不落盘、不进缓存、不进批次
func (h *Hub) BroadcastCursor(docID, excludeClientID string, cursor json.RawMessage) {
	h.mu.RLock()
	conns := h.rooms[docID]
	targets := make([]*Conn, 0, len(conns))
	for c := range conns {
		if c.clientID != excludeClientID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	msg := ServerMessage{Type: MsgCursorMoved, DocID: docID, UserID: excludeClientID, Cursor: cursor}
	for _, c := range targets {
		c.Enqueue(msg)
	}
}

// BroadcastDocumentChanged 提交成功后的回播，发起者除外（它本地已有这份状态）。
// 实现 collab.Broadcaster。
func (h *Hub) BroadcastDocumentChanged(docID, excludeClientID string, content json.RawMessage, version uint64) {
	h.mu.RLock()
	conns := h.rooms[docID]
	targets := make([]*Conn, 0, len(conns))
	for c := range conns {
		if c.clientID != excludeClientID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	msg := ServerMessage{Type: MsgDocumentChanged, DocID: docID, Content: content, Version: version}
	for _, c := range targets {
		c.Enqueue(msg)
	}
}
