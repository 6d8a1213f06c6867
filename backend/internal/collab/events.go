package collab

import (
	"encoding/json"
	"time"
)

// DocCommitEvent 提交成功后发往 Kafka 的事件，按 docId 做 key 保证同文档分区有序。
// 下游（搜索索引、统计、审计）据此重建最新状态，不依赖引擎内部。
type DocCommitEvent struct {
	EventType   string          `json:"eventType"` // 固定 "DOC_COMMITTED"
	DocID       string          `json:"docId"`
	Version     uint64          `json:"version"`
	ClientID    string          `json:"clientId"`
	Content     json.RawMessage `json:"content"`
	CommittedAt time.Time       `json:"committedAt"`
}
