package model

import (
	"time"

	"IMStore/service/mgo"

	"go.mongodb.org/mongo-driver/mongo"
)

// ===== 会话类型 =====
const (
	ConvTypeDirect int32 = 1 // 单聊：id = p2p:<lo>_<hi>
	ConvTypeGroup  int32 = 2 // 群聊：id = grp:<gid>
)

// SeqHorizon 新会话计数器起点 H。
// H 以下是历史回灌区，以上是实时区；H 本身可被首个 backward 批次认领一次。
const SeqHorizon int64 = 100000

// Conversation 会话账本：每个会话一条，唯一的“下一个 seq”权威来源。
// SeqCounter 只通过 ledger 的原子发号移动，禁止直接写。
type Conversation struct {
	ConversationID string    `bson:"conversation_id"` // PK
	ConvType       int32     `bson:"conv_type"`       // 1=单聊 2=群聊
	SeqCounter     int64     `bson:"seq_counter"`     // 当前水位；创建时固定为 SeqHorizon
	CreateTime     time.Time `bson:"create_time"`
	UpdateTime     time.Time `bson:"update_time"`
}

const (
	ConvFieldConversationID = "conversation_id"
	ConvFieldConvType       = "conv_type"
	ConvFieldSeqCounter     = "seq_counter"
	ConvFieldCreateTime     = "create_time"
	ConvFieldUpdateTime     = "update_time"
)

func (c *Conversation) GetTableName() string {
	return "conversation"
}

func (c *Conversation) Collection() *mongo.Collection {
	return mgo.GetDB().Collection(c.GetTableName())
}
