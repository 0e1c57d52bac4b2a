package cdc

import (
	"context"
	"time"

	chatmodel "IMStore/module/chat/model"
	"IMStore/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoCheckpoint 每个被观察库一条 checkpoint 记录
type MongoCheckpoint struct {
	Coll    *mongo.Collection
	StoreID string
}

func NewMongoCheckpoint(db *mongo.Database, storeID string) *MongoCheckpoint {
	ck := chatmodel.CdcCheckpoint{}
	return &MongoCheckpoint{Coll: db.Collection(ck.GetTableName()), StoreID: storeID}
}

// EnsureExists 启动时 upsert-if-absent，占住这条记录
func (c *MongoCheckpoint) EnsureExists(ctx context.Context) error {
	_, err := c.Coll.UpdateOne(ctx,
		bson.M{chatmodel.CkptFieldID: c.StoreID},
		bson.M{"$setOnInsert": bson.M{
			chatmodel.CkptFieldID:         c.StoreID,
			chatmodel.CkptFieldUpdateTime: time.Now(),
		}},
		options.Update().SetUpsert(true),
	)
	return errs.WrapMsg(err, "ensure checkpoint", "store", c.StoreID)
}

// Load 读续传位置；记录不存在或 token 为空都返回 nil
func (c *MongoCheckpoint) Load(ctx context.Context) (bson.Raw, error) {
	var out chatmodel.CdcCheckpoint
	err := c.Coll.FindOne(ctx, bson.M{chatmodel.CkptFieldID: c.StoreID}).Decode(&out)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "load checkpoint", "store", c.StoreID)
	}
	if len(out.ResumeToken) == 0 {
		return nil, nil
	}
	// 结构校验：token 必须是合法 bson 文档
	if err := out.ResumeToken.Validate(); err != nil {
		return nil, nil // 当作不存在，走全新开流+心跳
	}
	return out.ResumeToken, nil
}

// Save 每轮 drain 成功后覆写
func (c *MongoCheckpoint) Save(ctx context.Context, token bson.Raw) error {
	_, err := c.Coll.UpdateOne(ctx,
		bson.M{chatmodel.CkptFieldID: c.StoreID},
		bson.M{"$set": bson.M{
			chatmodel.CkptFieldResumeToken: token,
			chatmodel.CkptFieldUpdateTime:  time.Now(),
		}},
		options.Update().SetUpsert(true),
	)
	return errs.WrapMsg(err, "save checkpoint", "store", c.StoreID)
}

// Clear 运维重置：强制下一轮全量重扫（全新开流）
func (c *MongoCheckpoint) Clear(ctx context.Context) error {
	_, err := c.Coll.UpdateOne(ctx,
		bson.M{chatmodel.CkptFieldID: c.StoreID},
		bson.M{"$unset": bson.M{chatmodel.CkptFieldResumeToken: ""},
			"$set": bson.M{chatmodel.CkptFieldUpdateTime: time.Now()}},
	)
	return errs.WrapMsg(err, "clear checkpoint", "store", c.StoreID)
}

// Status 运维端点用：checkpoint 是否存在、多久没动了
func (c *MongoCheckpoint) Status(ctx context.Context) (exists bool, updatedAt time.Time, err error) {
	var out chatmodel.CdcCheckpoint
	e := c.Coll.FindOne(ctx, bson.M{chatmodel.CkptFieldID: c.StoreID}).Decode(&out)
	if e == mongo.ErrNoDocuments {
		return false, time.Time{}, nil
	}
	if e != nil {
		return false, time.Time{}, errs.Wrap(e)
	}
	return len(out.ResumeToken) > 0, out.UpdateTime, nil
}
