package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"syncServer/backend/internal/cache"
)

// PresenceHandler 文档在线成员的只读视图。
// Hub 只知道本实例的连接，这里走 Redis，多实例部署时各实例看到同一份名单。
type PresenceHandler struct {
	presence cache.PresenceCache
}

func NewPresenceHandler(p cache.PresenceCache) *PresenceHandler {
	return &PresenceHandler{presence: p}
}

type presenceMember struct {
	ClientID string          `json:"id"`
	Name     string          `json:"name"`
	Cursor   json.RawMessage `json:"cursor,omitempty"`
}

// Presence 返回房间内心跳未过期的成员及其最近光标
func (h *PresenceHandler) Presence(c *gin.Context) {
	docID := c.Param("id")
	members, err := h.presence.GetAliveMembersWithNames(c.Request.Context(), docID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load presence"})
		return
	}

	out := make([]presenceMember, 0, len(members))
	for _, m := range members {
		// 光标键可能已过期或从未设置，取不到就不带
		cursor, err := h.presence.GetCursor(c.Request.Context(), docID, m.ClientID)
		if err != nil {
			cursor = nil
		}
		out = append(out, presenceMember{ClientID: m.ClientID, Name: m.Name, Cursor: cursor})
	}
	c.JSON(http.StatusOK, out)
}
