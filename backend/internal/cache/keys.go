package cache

import "fmt"

// 键语义：
// - roomKey(docID):             房间候选成员集合（Set<clientId>）
// - memberKey(docID,clientID):  成员心跳键（String，占位"1"，带 TTL）
// - namesKey(docID):            房间内 clientId→displayName 映射（Hash）
// - cursorKey(docID,clientID):  成员光标/选区 JSON（String，带 TTL）

const (
	keyRoomFmt   = "presence:room:%s"       // Set<clientId>
	keyMemberFmt = "presence:member:%s:%s"  // String "1" with TTL
	keyNamesFmt  = "presence:room:names:%s" // Hash<clientId -> displayName>
	keyCursorFmt = "presence:cursor:%s:%s"  // String JSON with TTL
)

func roomKey(docID string) string                    { return fmt.Sprintf(keyRoomFmt, docID) }
func memberKey(docID string, clientID string) string { return fmt.Sprintf(keyMemberFmt, docID, clientID) }
func namesKey(docID string) string                   { return fmt.Sprintf(keyNamesFmt, docID) }
func cursorKey(docID string, clientID string) string { return fmt.Sprintf(keyCursorFmt, docID, clientID) }
