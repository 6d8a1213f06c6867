package ws

import (
	"encoding/json"
	"errors"
)

// 事件名与前端约定的线上格式一致
const (
	// 入站
	MsgJoinDocument  = "join-document"
	MsgSendChanges   = "send-changes"
	MsgCursorUpdate  = "cursor-update"
	MsgLeaveDocument = "leave-document"
	// 出站
	MsgLoadDocument    = "load-document"
	MsgDocumentChanged = "document-changed"
	MsgUsersChanged    = "users-changed"
	MsgCursorMoved     = "cursor-moved"
	MsgError           = "error"
)

type UserIdentity struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// ClientMessage 客户端入站事件：封闭的带标签变体。
// 载荷在这里按事件类型校验完才允许进入同步引擎，脏数据在边界上就拒绝。
type ClientMessage struct {
	Type    string          `json:"type"`
	DocID   string          `json:"docId"`
	User    *UserIdentity   `json:"user,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
	Version uint64          `json:"version,omitempty"`
	Cursor  json.RawMessage `json:"cursor,omitempty"`
}

// Validate 逐事件类型的最小模式校验
func (m *ClientMessage) Validate() error {
	if m.DocID == "" {
		return errors.New("missing docId")
	}
	switch m.Type {
	case MsgJoinDocument, MsgLeaveDocument:
		return nil
	case MsgSendChanges:
		if len(m.Content) == 0 {
			return errors.New("missing content")
		}
		if m.Version == 0 {
			return errors.New("missing version")
		}
		return nil
	case MsgCursorUpdate:
		if len(m.Cursor) == 0 {
			return errors.New("missing cursor")
		}
		return nil
	default:
		return errors.New("unknown message type: " + m.Type)
	}
}

// RoomUser users-changed 载荷里的单个会话
type RoomUser struct {
	ClientID string          `json:"id"`
	Name     string          `json:"name"`
	Color    string          `json:"color,omitempty"`
	Cursor   json.RawMessage `json:"cursor,omitempty"`
}

type ServerMessage struct {
	Type    string          `json:"type"`
	DocID   string          `json:"docId,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
	Version uint64          `json:"version,omitempty"`
	Users   []RoomUser      `json:"users,omitempty"`
	UserID  string          `json:"userId,omitempty"`
	Cursor  json.RawMessage `json:"cursor,omitempty"`
	Message string          `json:"message,omitempty"`
}
