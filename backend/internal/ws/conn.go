package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"syncServer/backend/internal/collab"
	"syncServer/backend/internal/store"
)

// 心跳/光标在 Redis 里的存活时间
const presenceTTL = 600 * time.Second

// Conn 一条客户端连接 + 它的会话状态（所在房间、显示身份、光标）
type Conn struct {
	ws     *websocket.Conn
	hub    *Hub
	engine *collab.Engine

	clientID string // 连接级标识，同一用户多标签页各有一个
	userID   string
	username string

	docID string // 当前加入的房间，"" 表示不在任何房间
	name  string
	color string

	cursorMu sync.Mutex
	cursor   json.RawMessage

	// 出站队列，writeLoop 独占写 socket。
	// 提交冲刷在定时器 goroutine 上广播，目标快照在锁外入队，
	// 目标可能在快照之后、入队之前离开：sendClosed 置位后 Enqueue 静默丢弃。
	sendMu     sync.Mutex
	sendClosed bool
	send       chan ServerMessage
}

func NewConn(ws *websocket.Conn, hub *Hub, engine *collab.Engine,
	clientID, userID, username string) *Conn {
	return &Conn{
		ws:       ws,
		hub:      hub,
		engine:   engine,
		clientID: clientID,
		userID:   userID,
		username: username,
		send:     make(chan ServerMessage, 32),
	}
}

// Enqueue 入队出站消息；队列满了直接丢弃，不让慢客户端拖住别人的广播。
// 连接已关闭时同样丢弃：入队和关闭在同一把锁下，不会往已关闭的通道发送。
func (c *Conn) Enqueue(msg ServerMessage) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// closeSend 关闭出站队列让 writeLoop 退出；幂等
func (c *Conn) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

func (c *Conn) CursorSnapshot() json.RawMessage {
	c.cursorMu.Lock()
	defer c.cursorMu.Unlock()
	return c.cursor
}

func (c *Conn) setCursor(cursor json.RawMessage) {
	c.cursorMu.Lock()
	c.cursor = cursor
	c.cursorMu.Unlock()
}

func (c *Conn) readLoop(ctx context.Context) {
	defer func() {
		c.cleanup(ctx)
		c.closeSend()
	}()
	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			// 连接断开（或发来非 JSON），当作离开处理
			log.Printf("read json error (client=%s, doc=%s): %v", c.clientID, c.docID, err)
			return
		}
		if err := msg.Validate(); err != nil {
			c.Enqueue(ServerMessage{Type: MsgError, Message: err.Error()})
			continue
		}

		switch msg.Type {
		case MsgJoinDocument:
			c.handleJoin(ctx, msg)
		case MsgSendChanges:
			c.handleSendChanges(ctx, msg)
		case MsgCursorUpdate:
			c.handleCursorUpdate(ctx, msg)
		case MsgLeaveDocument:
			c.handleLeave(ctx)
		}
	}
}

// handleJoin 注册会话并把当前快照发给加入者本人（不广播）。
// 已在别的房间时先离开，保证同一连接同时只在一个房间。
func (c *Conn) handleJoin(ctx context.Context, msg ClientMessage) {
	snap, err := c.engine.LoadDocument(ctx, msg.DocID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// 只通知请求方本人
			c.Enqueue(ServerMessage{Type: MsgError, DocID: msg.DocID, Message: "document not found"})
			return
		}
		log.Printf("load document error (client=%s, doc=%s): %v", c.clientID, msg.DocID, err)
		c.Enqueue(ServerMessage{Type: MsgError, DocID: msg.DocID, Message: "failed to load document"})
		return
	}

	if c.docID != "" && c.docID != msg.DocID {
		c.handleLeave(ctx)
	}
	c.docID = msg.DocID
	if msg.User != nil {
		c.name = msg.User.Name
		c.color = msg.User.Color
	}
	if c.name == "" {
		c.name = c.username
	}

	c.hub.Join(c.docID, c)
	if c.hub.presence != nil {
		if err := c.hub.presence.AddMember(ctx, c.docID, c.clientID, c.name, presenceTTL); err != nil {
			log.Printf("presence add member error: %v", err)
		}
	}

	c.Enqueue(ServerMessage{
		Type:    MsgLoadDocument,
		DocID:   c.docID,
		Content: snap.Content,
		Version: snap.Version,
	})
	c.hub.BroadcastUsers(c.docID)
}

// handleSendChanges 编辑直接进批次，版本冲突留到冲刷时按 last-write-wins 解决。
// 入批只是追加一条内存记录，并发控制在提交落盘处（引擎的信号量）。
func (c *Conn) handleSendChanges(ctx context.Context, msg ClientMessage) {
	c.engine.SubmitEdit(msg.DocID, c.clientID, msg.Content, msg.Version)
}

// handleCursorUpdate 光标只转发：不持久、不缓存、不进批次
func (c *Conn) handleCursorUpdate(ctx context.Context, msg ClientMessage) {
	c.setCursor(msg.Cursor)
	if c.hub.presence != nil {
		if err := c.hub.presence.SetCursor(ctx, msg.DocID, c.clientID, msg.Cursor, presenceTTL); err != nil {
			log.Printf("presence set cursor error: %v", err)
		}
	}
	c.hub.BroadcastCursor(msg.DocID, c.clientID, msg.Cursor)
}

// handleLeave 退出当前房间；最后一个人走的时候兜底冲刷待提交批次，
// 避免吞掉这个会话的最后一笔编辑
func (c *Conn) handleLeave(ctx context.Context) {
	if c.docID == "" {
		return
	}
	docID := c.docID
	c.docID = ""

	remaining := c.hub.Leave(docID, c)
	if c.hub.presence != nil {
		if err := c.hub.presence.RemoveMember(ctx, docID, c.clientID); err != nil {
			log.Printf("presence remove member error: %v", err)
		}
	}
	if remaining == 0 {
		c.engine.Flush(docID)
	} else {
		c.hub.BroadcastUsers(docID)
	}
}

// cleanup 连接断开等同显式离开
func (c *Conn) cleanup(ctx context.Context) {
	c.handleLeave(ctx)
}

func (c *Conn) writeLoop() {
	// 持续消费出站队列；socket 只在这个 goroutine 上写
	for msg := range c.send {
		if err := c.ws.WriteJSON(msg); err != nil {
			// 写失败只影响本连接，广播对其他成员照常
			log.Printf("write json error (client=%s): %v", c.clientID, err)
			return
		}
	}
}
