package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"syncServer/backend/internal/collab"
	"syncServer/backend/internal/store"
)

// DocumentHandler 文档 CRUD/分享/历史的薄封装。
// 只做参数校验和调 store，不碰同步引擎内部；唯一例外是删除后要让引擎踢掉缓存。
type DocumentHandler struct {
	store   *store.DocumentStore
	history *store.HistoryStore
	engine  *collab.Engine
}

func NewDocumentHandler(docStore *store.DocumentStore, history *store.HistoryStore, engine *collab.Engine) *DocumentHandler {
	return &DocumentHandler{store: docStore, history: history, engine: engine}
}

type createDocumentReq struct {
	Title   string          `json:"title" binding:"required"`
	Content json.RawMessage `json:"content,omitempty"`
}

type updateDocumentReq struct {
	Content json.RawMessage `json:"content" binding:"required"`
}

type shareDocumentReq struct {
	UserID string `json:"userId" binding:"required"`
}

func (h *DocumentHandler) Create(c *gin.Context) {
	ownerID := c.GetString("userId")
	var req createDocumentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	snap, err := h.store.Create(c.Request.Context(), ownerID, req.Title, req.Content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create document"})
		return
	}
	c.JSON(http.StatusCreated, snap)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	snap, err := h.store.Find(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load document"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *DocumentHandler) List(c *gin.Context) {
	userID := c.GetString("userId")
	docs, err := h.store.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list documents"})
		return
	}
	c.JSON(http.StatusOK, docs)
}

// Update HTTP 侧的整篇覆盖，不走批次：REST 调用者没有实时会话，
// 版本按当前版本 +1 推进，改完让在线会话通过下一次 join/edit 追平。
func (h *DocumentHandler) Update(c *gin.Context) {
	docID := c.Param("id")
	var req updateDocumentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	current, err := h.store.Find(c.Request.Context(), docID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load document"})
		return
	}
	snap, err := h.store.Update(c.Request.Context(), docID, req.Content, current.Version+1)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update document"})
		return
	}
	// 缓存立即跟上，别让在线 join 读到旧内容
	h.engine.Invalidate(docID)
	c.JSON(http.StatusOK, snap)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	docID := c.Param("id")
	if err := h.store.Delete(c.Request.Context(), docID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete document"})
		return
	}
	h.engine.Invalidate(docID)
	c.JSON(http.StatusOK, gin.H{"message": "document deleted"})
}

func (h *DocumentHandler) Share(c *gin.Context) {
	docID := c.Param("id")
	var req shareDocumentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	snap, err := h.store.Share(c.Request.Context(), docID, req.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to share document"})
		return
	}
	h.engine.Invalidate(docID)
	c.JSON(http.StatusOK, snap)
}

func (h *DocumentHandler) History(c *gin.Context) {
	entries, err := h.history.ListVersions(c.Request.Context(), c.Param("id"), 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, entries)
}
