package cache

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// PresenceCache 房间在线状态与光标的共享存储。
// 多实例部署时各实例看到同一份在线成员，单实例时也充当光标的旁路存储。
type PresenceCache interface {
	AddMember(ctx context.Context, docID, clientID, name string, ttl time.Duration) error
	RemoveMember(ctx context.Context, docID, clientID string) error
	GetAliveMembersWithNames(ctx context.Context, docID string) ([]PresenceMember, error)
	SetCursor(ctx context.Context, docID, clientID string, jsonData []byte, ttl time.Duration) error
	GetCursor(ctx context.Context, docID, clientID string) ([]byte, error)
}

type PresenceMember struct {
	ClientID string
	Name     string
}

// 基于 redis 的 PresenceCache 实现
type redisPresence struct {
	rdb *redis.Client
}

func NewRedisPresence(rdb *redis.Client) PresenceCache {
	return &redisPresence{rdb: rdb}
}

func (p *redisPresence) AddMember(ctx context.Context, docID, clientID, name string, ttl time.Duration) error {
	pipe := p.rdb.Pipeline()
	// 房间成员集合
	pipe.SAdd(ctx, roomKey(docID), clientID)
	// 成员心跳键（TTL 过期即视为离线）
	pipe.Set(ctx, memberKey(docID, clientID), "1", ttl)
	// 房间名字表(哈希)
	pipe.HSet(ctx, namesKey(docID), clientID, name)
	_, err := pipe.Exec(ctx)
	return err
}

func (p *redisPresence) RemoveMember(ctx context.Context, docID, clientID string) error {
	pipe := p.rdb.Pipeline()
	pipe.SRem(ctx, roomKey(docID), clientID)
	pipe.Del(ctx, memberKey(docID, clientID))
	pipe.HDel(ctx, namesKey(docID), clientID)
	pipe.Del(ctx, cursorKey(docID, clientID))
	_, err := pipe.Exec(ctx)
	return err
}

func (p *redisPresence) GetAliveMembersWithNames(ctx context.Context, docID string) ([]PresenceMember, error) {
	// step1: 候选成员
	clientIDs, err := p.rdb.SMembers(ctx, roomKey(docID)).Result()
	if err != nil {
		return nil, err
	}
	if len(clientIDs) == 0 {
		return nil, nil
	}

	// step2: 心跳键还在的才算在线
	existsCmds := make([]*redis.IntCmd, 0, len(clientIDs))
	pipe := p.rdb.Pipeline()
	for _, clientID := range clientIDs {
		existsCmds = append(existsCmds, pipe.Exists(ctx, memberKey(docID, clientID)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	aliveIDs := make([]string, 0, len(clientIDs))
	for i, cmd := range existsCmds {
		if cmd.Val() == 1 {
			aliveIDs = append(aliveIDs, clientIDs[i])
		}
	}
	if len(aliveIDs) == 0 {
		return nil, nil
	}

	// step3: 批量取名字
	names, err := p.rdb.HMGet(ctx, namesKey(docID), aliveIDs...).Result()
	if err != nil {
		return nil, err
	}
	members := make([]PresenceMember, 0, len(aliveIDs))
	for i, v := range names {
		name := ""
		if v != nil {
			name, _ = v.(string)
		}
		members = append(members, PresenceMember{ClientID: aliveIDs[i], Name: name})
	}
	return members, nil
}

func (p *redisPresence) SetCursor(ctx context.Context, docID, clientID string, jsonData []byte, ttl time.Duration) error {
	return p.rdb.Set(ctx, cursorKey(docID, clientID), jsonData, ttl).Err()
}

func (p *redisPresence) GetCursor(ctx context.Context, docID, clientID string) ([]byte, error) {
	return p.rdb.Get(ctx, cursorKey(docID, clientID)).Bytes()
}
