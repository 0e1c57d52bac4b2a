package model

import (
	"time"

	"IMStore/service/mgo"

	"go.mongodb.org/mongo-driver/mongo"
)

// Membership 用户×会话的可见窗口与读进度。
// 读范围 = [JoinSeq, LeaveSeq]；LeaveSeq 为空表示仍在会话中（上界开放）。
// 约束：(user_id, conversation_id) 唯一；回灌期间 JoinSeq 只降不升。
type Membership struct {
	UserID         string     `bson:"user_id"`
	ConversationID string     `bson:"conversation_id"`
	ConvType       int32      `bson:"conv_type"` // 冗余自会话，省一次查
	JoinSeq        int64      `bson:"join_seq"`  // 可见下界
	JoinTime       time.Time  `bson:"join_time"`
	LeaveSeq       *int64     `bson:"leave_seq,omitempty"` // 可见上界；nil=未离开
	LeaveTime      *time.Time `bson:"leave_time,omitempty"`
	LastReadSeq    int64      `bson:"last_read_seq"`
	LastReadTime   time.Time  `bson:"last_read_time"`
	CreateTime     time.Time  `bson:"create_time"`
	UpdateTime     time.Time  `bson:"update_time"`
}

const (
	MemberFieldUserID         = "user_id"
	MemberFieldConversationID = "conversation_id"
	MemberFieldConvType       = "conv_type"
	MemberFieldJoinSeq        = "join_seq"
	MemberFieldJoinTime       = "join_time"
	MemberFieldLeaveSeq       = "leave_seq"
	MemberFieldLeaveTime      = "leave_time"
	MemberFieldLastReadSeq    = "last_read_seq"
	MemberFieldLastReadTime   = "last_read_time"
	MemberFieldCreateTime     = "create_time"
	MemberFieldUpdateTime     = "update_time"
)

func (m *Membership) GetTableName() string {
	return "membership"
}

func (m *Membership) Collection() *mongo.Collection {
	return mgo.GetDB().Collection(m.GetTableName())
}
