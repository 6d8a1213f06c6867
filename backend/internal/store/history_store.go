package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
)

// HistoryStore 每次成功提交追加一条版本快照（只追加，不参与同步路径）。
// documents 表只保留最新版本，历史查看走这张表。
type HistoryStore struct{ db *sql.DB }

func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

func (s *HistoryStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS document_snapshots (
		document_id VARCHAR(36) NOT NULL,
		version     BIGINT UNSIGNED NOT NULL,
		content     LONGTEXT,
		created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (document_id, version)
	)`)
	return err
}

func (s *HistoryStore) SaveDocumentSnapshot(ctx context.Context, docID string, version uint64, content []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO document_snapshots (document_id, version, content)
		VALUES (?, ?, ?)`,
		docID,
		version,
		content,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		// 1062 = duplicate key：同版本重复提交（客户端版本号可回退），保留首次的即可
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return nil
		}
		return err
	}
	return nil
}

type HistoryEntry struct {
	DocID     string    `json:"docId"`
	Version   uint64    `json:"version"`
	Content   []byte    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListVersions 按版本倒序返回最近 limit 条快照
func (s *HistoryStore) ListVersions(ctx context.Context, docID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, version, content, created_at
		FROM document_snapshots WHERE document_id = ?
		ORDER BY version DESC LIMIT ?`,
		docID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.DocID, &e.Version, &e.Content, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
