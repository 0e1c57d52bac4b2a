package model

import (
	"time"

	"IMStore/service/mgo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// CdcCheckpoint 每个被观察库一条：change stream 的续传位置。
// 启动时 upsert-if-absent 创建，每轮成功 drain 后覆写；只有运维重置会删除。
type CdcCheckpoint struct {
	ID          string    `bson:"_id"` // 被观察库标识
	ResumeToken bson.Raw  `bson:"resume_token,omitempty"`
	UpdateTime  time.Time `bson:"update_time"`
}

const (
	CkptFieldID          = "_id"
	CkptFieldResumeToken = "resume_token"
	CkptFieldUpdateTime  = "update_time"
)

func (c *CdcCheckpoint) GetTableName() string {
	return "cdc_checkpoint"
}

func (c *CdcCheckpoint) Collection() *mongo.Collection {
	return mgo.GetDB().Collection(c.GetTableName())
}

// CdcHeartbeat 一次性心跳记录：仅在没有 checkpoint 时写入，
// 逼迫新开的 change stream 产出一个可续传的位置。
type CdcHeartbeat struct {
	ID string    `bson:"_id"`
	Ts time.Time `bson:"ts"`
}

func (h *CdcHeartbeat) GetTableName() string {
	return "cdc_heartbeat"
}

func (h *CdcHeartbeat) Collection() *mongo.Collection {
	return mgo.GetDB().Collection(h.GetTableName())
}
