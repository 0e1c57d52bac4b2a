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

// MongoOpener 基于 mongo change stream 的游标实现
type MongoOpener struct {
	DB *mongo.Database
}

func (o *MongoOpener) Open(ctx context.Context, resume bson.Raw) (Source, error) {
	opts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup). // update 也带全文档，下游才好回放
		SetMaxAwaitTime(200 * time.Millisecond)
	if len(resume) > 0 {
		opts.SetResumeAfter(resume)
	}
	cs, err := o.DB.Watch(ctx, mongo.Pipeline{}, opts)
	if err != nil {
		if len(resume) > 0 {
			// token 被存储拒绝：按 CheckpointInvalid 处理（调用方丢弃重开）
			return nil, errs.ErrCheckpointInvalid.WrapMsg("open with resume token", "cause", err.Error())
		}
		return nil, errs.WrapMsg(err, "open change stream")
	}
	return &mongoSource{cs: cs}, nil
}

type mongoSource struct {
	cs *mongo.ChangeStream
}

// changeDoc change stream 事件的解码骨架
type changeDoc struct {
	OperationType string   `bson:"operationType"`
	FullDocument  bson.Raw `bson:"fullDocument"`
	DocumentKey   bson.Raw `bson:"documentKey"`
	Ns            struct {
		Coll string `bson:"coll"`
	} `bson:"ns"`
}

func (s *mongoSource) TryNext(ctx context.Context) (*Event, bool, error) {
	if !s.cs.TryNext(ctx) {
		if err := s.cs.Err(); err != nil {
			return nil, false, errs.WrapMsg(err, "change stream next")
		}
		return nil, false, nil
	}
	var doc changeDoc
	if err := s.cs.Decode(&doc); err != nil {
		return nil, false, errs.WrapMsg(err, "decode change event")
	}
	return &Event{
		OpType:       doc.OperationType,
		Coll:         doc.Ns.Coll,
		FullDocument: doc.FullDocument,
		DocumentKey:  doc.DocumentKey,
	}, true, nil
}

func (s *mongoSource) ResumeToken() bson.Raw {
	return s.cs.ResumeToken()
}

func (s *mongoSource) Close(ctx context.Context) error {
	return s.cs.Close(ctx)
}

// MongoHeartbeat 心跳：往 cdc_heartbeat 插一条随写随弃的记录
type MongoHeartbeat struct {
	DB      *mongo.Database
	StoreID string
}

func (h *MongoHeartbeat) Beat(ctx context.Context) error {
	hb := chatmodel.CdcHeartbeat{}
	_, err := h.DB.Collection(hb.GetTableName()).UpdateOne(ctx,
		bson.M{"_id": h.StoreID},
		bson.M{"$set": bson.M{"ts": time.Now()}},
		options.Update().SetUpsert(true),
	)
	return errs.WrapMsg(err, "cdc heartbeat")
}
