package model

import (
	"fmt"
	"time"
)

// ===== 消息状态 =====
const (
	MsgStatusNormal  int32 = 0
	MsgStatusRevoked int32 = 1
)

// MessageModel 单条消息；按 SendTime 的年月落到 message_YYYYMM 分区集合。
// 写入后除 Status/SoftDeleted 外不可变；(conversation_id, seq) 分区内唯一。
type MessageModel struct {
	ServerMsgID    string    `bson:"_id"`             // 服务端雪花ID
	ConversationID string    `bson:"conversation_id"`
	Seq            int64     `bson:"seq"`            // 仅由发号器赋值
	SendID         string    `bson:"send_id"`        // 发送者
	RecvID         string    `bson:"recv_id"`        // 单聊对端；群聊为空
	MsgType        int32     `bson:"msg_type"`       // 1=文本,2=图片,3=语音...
	Content        string    `bson:"content"`        // 消息体
	PayloadVersion int32     `bson:"payload_ver"`    // 消息体编码版本
	ClientMsgID    string    `bson:"client_msg_id"`  // 客户端幂等ID
	SoftDeleted    bool      `bson:"soft_deleted"`
	Status         int32     `bson:"status"`
	SendTime       time.Time `bson:"send_time"` // 分区路由键
	CreateTime     time.Time `bson:"create_time"`
	UpdateTime     time.Time `bson:"update_time"`
}

const (
	MsgFieldServerMsgID    = "_id"
	MsgFieldConversationID = "conversation_id"
	MsgFieldSeq            = "seq"
	MsgFieldSendID         = "send_id"
	MsgFieldRecvID         = "recv_id"
	MsgFieldMsgType        = "msg_type"
	MsgFieldContent        = "content"
	MsgFieldClientMsgID    = "client_msg_id"
	MsgFieldSoftDeleted    = "soft_deleted"
	MsgFieldStatus         = "status"
	MsgFieldSendTime       = "send_time"
	MsgFieldCreateTime     = "create_time"
)

const msgPartitionPrefix = "message_"

// MsgPartitionName 取消息分区集合名：message_200503 这类按月命名
func MsgPartitionName(sentAt time.Time) string {
	return fmt.Sprintf("%s%04d%02d", msgPartitionPrefix, sentAt.Year(), int(sentAt.Month()))
}

// IsMsgPartition 判断集合名是否为消息分区：前缀后必须是 6 位数字年月
func IsMsgPartition(coll string) bool {
	if len(coll) != len(msgPartitionPrefix)+6 || coll[:len(msgPartitionPrefix)] != msgPartitionPrefix {
		return false
	}
	for _, r := range coll[len(msgPartitionPrefix):] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
