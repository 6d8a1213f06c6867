package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Snapshot 文档某一时刻的快照（内容 + 版本 + 元数据）。
// 缓存按引用存储，不做拷贝，调用方必须把返回的快照当只读，
// 就地修改会污染其他会话看到的内容。
type Snapshot struct {
	DocID      string
	Title      string
	Content    json.RawMessage
	Version    uint64
	OwnerID    string
	SharedWith []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type docEntry struct {
	snap      *Snapshot
	expiresAt time.Time
}

// DocCache 文档读缓存：docID -> 最近一次已知快照，固定 TTL，到期即视为不存在。
// 派生数据，随时可丢弃；权威状态以 MySQL 为准。
type DocCache struct {
	mu       sync.RWMutex
	ttl      time.Duration
	entries  map[string]docEntry
	stop     chan struct{}
	stopOnce sync.Once
}

const (
	// 条目 600s 过期，后台每 120s 清扫一次
	DefaultDocTTL    = 600 * time.Second
	docSweepInterval = 120 * time.Second
)

func NewDocCache(ttl time.Duration) *DocCache {
	if ttl <= 0 {
		ttl = DefaultDocTTL
	}
	c := &DocCache{
		ttl:     ttl,
		entries: make(map[string]docEntry),
		stop:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Get 过期条目等同不存在（过期与否只看写入时间，和访问无关）
func (c *DocCache) Get(docID string) *Snapshot {
	c.mu.RLock()
	e, ok := c.entries[docID]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return nil
	}
	return e.snap
}

func (c *DocCache) Put(docID string, snap *Snapshot) {
	c.mu.Lock()
	c.entries[docID] = docEntry{snap: snap, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *DocCache) Invalidate(docID string) {
	c.mu.Lock()
	delete(c.entries, docID)
	c.mu.Unlock()
}

// GetOrFetch 未命中时调用 fetch 回源并写入缓存。
// 并发未命中允许各自回源（至少一次语义），后写覆盖先写；
// 缓存条目本来就是可丢弃的，last-writer-wins 足够。
func (c *DocCache) GetOrFetch(ctx context.Context, docID string, fetch func(ctx context.Context) (*Snapshot, error)) (*Snapshot, error) {
	if snap := c.Get(docID); snap != nil {
		return snap, nil
	}
	snap, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		c.Put(docID, snap)
	}
	return snap, nil
}

// 定期剔除过期条目，防止 map 无限增长
func (c *DocCache) sweepLoop() {
	ticker := time.NewTicker(docSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for id, e := range c.entries {
				if now.After(e.expiresAt) {
					delete(c.entries, id)
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}

func (c *DocCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}
