package collab

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"syncServer/backend/internal/cache"
	"syncServer/backend/internal/store"
)

// 同步引擎对持久层的口径（实现在 store 包，测试用内存实现替换）
type DocumentStore interface {
	Find(ctx context.Context, docID string) (*cache.Snapshot, error)
	Update(ctx context.Context, docID string, content json.RawMessage, version uint64) (*cache.Snapshot, error)
}

// 每次成功提交追加一条版本快照。尽力而为：失败只打日志，不影响提交本身。
type HistoryStore interface {
	SaveDocumentSnapshot(ctx context.Context, docID string, version uint64, content []byte) error
}

// 提交成功后把变更推给房间内除发起者以外的所有会话（实现在 ws.Hub）
type Broadcaster interface {
	BroadcastDocumentChanged(docID, excludeClientID string, content json.RawMessage, version uint64)
}

// 单文档的提交互斥：同一文档的提交串行，不同文档并行
type docState struct {
	mu sync.Mutex
}

// Engine 同步引擎：join 发快照、edit 进批次、批次冲刷时落盘并回播。
// 缓存/批次/定时器都是实例内部状态，多个 Engine 实例（比如测试）互不干扰。
type Engine struct {
	mu   sync.RWMutex
	docs map[string]*docState

	store       DocumentStore
	docCache    *cache.DocCache
	history     HistoryStore
	dispatcher  *KafkaDispatcher
	broadcaster Broadcaster

	// 限制同时在途的提交落盘数，nil 表示不限
	sem *SemaphoreControl

	batcher *Batcher
}

type EngineOptions struct {
	BatchDelay time.Duration     // 防抖窗口 D，默认 1s
	Sem        *SemaphoreControl // 提交并发上限
}

func NewEngine(docStore DocumentStore, docCache *cache.DocCache, history HistoryStore,
	dispatcher *KafkaDispatcher, broadcaster Broadcaster, opt EngineOptions) *Engine {
	e := &Engine{
		docs:        make(map[string]*docState),
		store:       docStore,
		docCache:    docCache,
		history:     history,
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
		sem:         opt.Sem,
	}
	e.batcher = NewBatcher(opt.BatchDelay, e.commit)
	return e
}

func (e *Engine) getOrCreateDoc(docID string) *docState {
	e.mu.RLock()
	ds := e.docs[docID]
	e.mu.RUnlock()
	if ds != nil {
		return ds
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if ds = e.docs[docID]; ds == nil {
		ds = &docState{}
		e.docs[docID] = ds
	}
	return ds
}

// LoadDocument join 时取当前快照：缓存命中直接用，未命中回源 MySQL。
// 文档不存在返回 store.ErrNotFound，只通知加入者本人，不广播。
func (e *Engine) LoadDocument(ctx context.Context, docID string) (*cache.Snapshot, error) {
	return e.docCache.GetOrFetch(ctx, docID, func(ctx context.Context) (*cache.Snapshot, error) {
		return e.store.Find(ctx, docID)
	})
}

// SubmitEdit 不做版本预校验，乐观收下交给批次；同窗口的冲突在冲刷时按
// last-write-wins 解决，并发编辑互相覆盖且无冲突信号。
func (e *Engine) SubmitEdit(docID, clientID string, content json.RawMessage, version uint64) {
	e.batcher.Enqueue(docID, Edit{
		Content:   content,
		Version:   version,
		ClientID:  clientID,
		ArrivedAt: time.Now(),
	})
}

// commit 批次冲刷回调：落盘、刷缓存、记历史、发事件、回播给房间内其他人。
// 在途提交不可取消；落盘失败不自动重试，跳过缓存与广播让两者保持互相一致，
// 客户端停留在上一版本，等下一次成功编辑把状态带回来。
func (e *Engine) commit(docID string, winner Edit) {
	if e.sem != nil {
		// 提交在定时器 goroutine 上，锁住 MySQL 写的并发即可，允许一直等
		_ = e.sem.Acquire(context.Background())
		defer e.sem.Release()
	}

	ds := e.getOrCreateDoc(docID)
	ds.mu.Lock()
	defer ds.mu.Unlock()

	ctx := context.Background()
	snap, err := e.store.Update(ctx, docID, winner.Content, winner.Version)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// 文档已被并发删除：静默丢弃，不广播
			log.Printf("commit dropped, document gone: doc=%s version=%d", docID, winner.Version)
			return
		}
		log.Printf("commit failed: doc=%s version=%d err=%v", docID, winner.Version, err)
		return
	}
	e.docCache.Put(docID, snap)

	if e.history != nil {
		if err := e.history.SaveDocumentSnapshot(ctx, docID, winner.Version, []byte(winner.Content)); err != nil {
			log.Printf("history snapshot failed: doc=%s version=%d err=%v", docID, winner.Version, err)
		}
	}

	if e.dispatcher != nil {
		evt := DocCommitEvent{
			EventType:   "DOC_COMMITTED",
			DocID:       docID,
			Version:     winner.Version,
			ClientID:    winner.ClientID,
			Content:     winner.Content,
			CommittedAt: time.Now(),
		}
		enqueueCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		if err := e.dispatcher.Enqueue(enqueueCtx, evt); err != nil {
			log.Printf("commit event enqueue failed: doc=%s version=%d err=%v", docID, winner.Version, err)
		}
		cancel()
	}

	if e.broadcaster != nil {
		e.broadcaster.BroadcastDocumentChanged(docID, winner.ClientID, snap.Content, snap.Version)
	}
}

// Flush 房间清空时由会话层触发的兜底冲刷
func (e *Engine) Flush(docID string) {
	e.batcher.Flush(docID)
}

// Invalidate 文档被删除后踢掉缓存条目
func (e *Engine) Invalidate(docID string) {
	e.docCache.Invalidate(docID)
}

// Shutdown 停机前的显式排水：冲刷所有待提交批次
func (e *Engine) Shutdown() {
	e.batcher.FlushAll()
}
