package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"syncServer/backend/internal/cache"
)

var ErrNotFound = errors.New("document not found")

// 新文档的默认内容：一个空段落（与前端编辑器的初始状态一致）
var emptyDocument = json.RawMessage(`[{"type":"paragraph","children":[{"text":""}]}]`)

// Document documents 表的一行，文档的权威记录。
// Content 是富文本块节点树序列化后的 JSON，同步引擎把它当作不透明 blob，
// 整篇读、整篇写，不做字符级合并。
type Document struct {
	ID         string `gorm:"primaryKey;size:36"`
	Title      string `gorm:"size:255"`
	Content    []byte `gorm:"type:longtext"`
	Version    uint64
	OwnerID    string `gorm:"size:36;index"`
	SharedWith []byte `gorm:"type:text"` // JSON 数组 []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type DocumentStore struct{ db *gorm.DB }

func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) AutoMigrate() error {
	return s.db.AutoMigrate(&Document{})
}

func (s *DocumentStore) Create(ctx context.Context, ownerID, title string, content json.RawMessage) (*cache.Snapshot, error) {
	if len(content) == 0 {
		content = emptyDocument
	}
	doc := &Document{
		ID:         uuid.NewString(),
		Title:      title,
		Content:    content,
		Version:    1,
		OwnerID:    ownerID,
		SharedWith: []byte("[]"),
	}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, err
	}
	return snapshotOf(doc), nil
}

func (s *DocumentStore) Find(ctx context.Context, docID string) (*cache.Snapshot, error) {
	var doc Document
	err := s.db.WithContext(ctx).First(&doc, "id = ?", docID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return snapshotOf(&doc), nil
}

// Update 以胜出编辑携带的内容与版本整体覆盖文档。
// 服务端不递增也不校验版本号，客户端声称的版本直接成为权威版本。
// 文档不存在时返回 ErrNotFound，调用方据此丢弃本次提交。
func (s *DocumentStore) Update(ctx context.Context, docID string, content json.RawMessage, version uint64) (*cache.Snapshot, error) {
	res := s.db.WithContext(ctx).Model(&Document{}).Where("id = ?", docID).
		Updates(map[string]interface{}{"content": []byte(content), "version": version})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	// 单行更新，MySQL 保证本连接读己之写
	return s.Find(ctx, docID)
}

func (s *DocumentStore) Delete(ctx context.Context, docID string) error {
	res := s.db.WithContext(ctx).Delete(&Document{}, "id = ?", docID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListForUser 拥有的 + 被分享的文档，按最近修改排序
func (s *DocumentStore) ListForUser(ctx context.Context, userID string) ([]*cache.Snapshot, error) {
	var docs []Document
	err := s.db.WithContext(ctx).
		Where("owner_id = ? OR shared_with LIKE ?", userID, `%"`+userID+`"%`).
		Order("updated_at DESC").
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	out := make([]*cache.Snapshot, 0, len(docs))
	for i := range docs {
		out = append(out, snapshotOf(&docs[i]))
	}
	return out, nil
}

// Share 把 userID 加入分享列表（幂等）。
// 读-改-写即可：分享是低频操作，不值得上乐观锁。
func (s *DocumentStore) Share(ctx context.Context, docID, userID string) (*cache.Snapshot, error) {
	var doc Document
	err := s.db.WithContext(ctx).First(&doc, "id = ?", docID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var shared []string
	_ = json.Unmarshal(doc.SharedWith, &shared)
	for _, id := range shared {
		if id == userID {
			return snapshotOf(&doc), nil
		}
	}
	shared = append(shared, userID)
	raw, err := json.Marshal(shared)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&doc).Update("shared_with", raw).Error; err != nil {
		return nil, err
	}
	doc.SharedWith = raw
	return snapshotOf(&doc), nil
}

func snapshotOf(doc *Document) *cache.Snapshot {
	var shared []string
	_ = json.Unmarshal(doc.SharedWith, &shared)
	return &cache.Snapshot{
		DocID:      doc.ID,
		Title:      doc.Title,
		Content:    json.RawMessage(doc.Content),
		Version:    doc.Version,
		OwnerID:    doc.OwnerID,
		SharedWith: shared,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}
