package ingest

import (
	"context"
	"time"

	chatmodel "IMStore/module/chat/model"
)

// LedgerIface 发号器对会话账本的最小依赖（便于替身测试）
type LedgerIface interface {
	EnsureExists(ctx context.Context, conversationID string, convType int32) (*chatmodel.Conversation, error)
	AllocateForward(ctx context.Context, conversationID string, count int64) (int64, error)
	AdvanceBy(ctx context.Context, conversationID string, n int64) error
}

// MemberIface 成员账本的最小依赖
type MemberIface interface {
	EnsureForDirect(ctx context.Context, conversationID, userA, userB string, currentVersion int64, now time.Time) error
	EnsureForGroup(ctx context.Context, conversationID, groupID string, currentVersion int64, now time.Time) error
	LowerJoinBoundaryForAllActiveMembers(ctx context.Context, conversationID string, newJoinSeq int64, newJoinTime time.Time) error
}

// StoreIface 消息存储的最小依赖
type StoreIface interface {
	Append(ctx context.Context, m *chatmodel.MessageModel) error
	BulkAppend(ctx context.Context, msgs []*chatmodel.MessageModel) error
}

// SendReq 实时消息摄入请求（队列消息体）
type SendReq struct {
	ConvType    int32     `json:"conv_type"` // 1=单聊 2=群聊
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id,omitempty"` // 单聊对端
	GroupID     string    `json:"group_id,omitempty"`     // 群聊
	MsgType     int32     `json:"msg_type"`
	Content     string    `json:"content"`
	PayloadVer  int32     `json:"payload_ver"`
	ClientMsgID string    `json:"client_msg_id"`
	SentAt      time.Time `json:"sent_at"`
}

// ImportReq 历史批次导入请求：一个会话一个自然日的消息
type ImportReq struct {
	ConvType  int32       `json:"conv_type"`
	SenderA   string      `json:"user_a,omitempty"` // 单聊双方
	SenderB   string      `json:"user_b,omitempty"`
	GroupID   string      `json:"group_id,omitempty"`
	BatchDate time.Time   `json:"batch_date"` // 该批所属自然日
	Messages  []ImportMsg `json:"messages"`
}

// ImportMsg 历史消息（尚未定序）
type ImportMsg struct {
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id,omitempty"`
	MsgType     int32     `json:"msg_type"`
	Content     string    `json:"content"`
	PayloadVer  int32     `json:"payload_ver"`
	ClientMsgID string    `json:"client_msg_id"`
	SentAt      time.Time `json:"sent_at"`
}
