package ledger

import (
	"context"
	"time"

	chatmodel "IMStore/module/chat/model"
	"IMStore/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Ledger 会话账本 DAO：发号全部走单次 FindOneAndUpdate，
// 原子性委托给存储，进程内外都不加锁。
type Ledger struct {
	Coll *mongo.Collection
}

func New(db *mongo.Database) *Ledger {
	conv := chatmodel.Conversation{}
	return &Ledger{Coll: db.Collection(conv.GetTableName())}
}

// EnsureExists 幂等取或建：并发首写者都会看到同一条记录（同一 create_time、
// 同一起点 SeqCounter=H）。upsert 竞态报 dup 时退化为普通读。
func (l *Ledger) EnsureExists(ctx context.Context, conversationID string, convType int32) (*chatmodel.Conversation, error) {
	now := time.Now()
	filter := bson.M{chatmodel.ConvFieldConversationID: conversationID}
	update := bson.M{
		"$setOnInsert": bson.M{
			chatmodel.ConvFieldConversationID: conversationID,
			chatmodel.ConvFieldConvType:       convType,
			chatmodel.ConvFieldSeqCounter:     chatmodel.SeqHorizon,
			chatmodel.ConvFieldCreateTime:     now,
		},
		"$set": bson.M{chatmodel.ConvFieldUpdateTime: now},
	}

	var out chatmodel.Conversation
	err := l.Coll.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After),
	).Decode(&out)
	if err == nil {
		return &out, nil
	}

	// upsert 在极少数竞态下报 E11000，落一次普通读兜底
	if e := l.Coll.FindOne(ctx, filter).Decode(&out); e == nil {
		return &out, nil
	}
	return nil, errs.WrapMsg(err, "ensure conversation", "conv", conversationID)
}

// AllocateForward 原子把计数器加 count。
// count==1 返回加完之后的值（即这条消息的 seq）；
// count>1 返回加之前的值，块区间为 [pre+1, pre+count]。
func (l *Ledger) AllocateForward(ctx context.Context, conversationID string, count int64) (int64, error) {
	if count <= 0 {
		return 0, errs.ErrArgs.WrapMsg("count must be positive", "count", count)
	}
	now := time.Now()
	var before struct {
		SeqCounter int64 `bson:"seq_counter"`
	}
	err := l.Coll.FindOneAndUpdate(ctx,
		bson.M{chatmodel.ConvFieldConversationID: conversationID},
		bson.M{
			"$inc": bson.M{chatmodel.ConvFieldSeqCounter: count},
			"$set": bson.M{chatmodel.ConvFieldUpdateTime: now},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&before)
	if err == mongo.ErrNoDocuments {
		// 不应发生：EnsureExists 之后记录不可删；发生则整单放弃重投
		return 0, errs.ErrConversationNotFound.WrapMsg("allocate forward", "conv", conversationID)
	}
	if err != nil {
		return 0, errs.WrapMsg(err, "allocate forward", "conv", conversationID)
	}
	if count == 1 {
		return before.SeqCounter + 1, nil
	}
	return before.SeqCounter, nil
}

// AllocateBackward 历史回灌发号，返回块顶 anchor，块区间 [anchor-count+1, anchor]。
// 边界规则（counter 仍等于 H，从未前移过）：
//   - count==1：H 本身可被认领一次，计数器不动；
//   - count>1：只减 count-1，H 保留为块内最低分配值。
// 其余情况一律减 count。
// 条件算术用 aggregation pipeline 更新，在存储端单步完成；anchor 恒取更新前的值。
func (l *Ledger) AllocateBackward(ctx context.Context, conversationID string, count int64) (int64, error) {
	if count <= 0 {
		return 0, errs.ErrArgs.WrapMsg("count must be positive", "count", count)
	}
	now := time.Now()

	// counter==H 时的扣减量
	var atHorizon any
	if count == 1 {
		atHorizon = "$" + chatmodel.ConvFieldSeqCounter
	} else {
		atHorizon = bson.M{"$subtract": bson.A{"$" + chatmodel.ConvFieldSeqCounter, count - 1}}
	}

	pipeline := bson.A{bson.M{"$set": bson.M{
		chatmodel.ConvFieldSeqCounter: bson.M{"$cond": bson.A{
			bson.M{"$eq": bson.A{"$" + chatmodel.ConvFieldSeqCounter, chatmodel.SeqHorizon}},
			atHorizon,
			bson.M{"$subtract": bson.A{"$" + chatmodel.ConvFieldSeqCounter, count}},
		}},
		chatmodel.ConvFieldUpdateTime: now,
	}}}

	var before struct {
		SeqCounter int64 `bson:"seq_counter"`
	}
	err := l.Coll.FindOneAndUpdate(ctx,
		bson.M{chatmodel.ConvFieldConversationID: conversationID},
		pipeline,
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&before)
	if err == mongo.ErrNoDocuments {
		return 0, errs.ErrConversationNotFound.WrapMsg("allocate backward", "conv", conversationID)
	}
	if err != nil {
		return 0, errs.WrapMsg(err, "allocate backward", "conv", conversationID)
	}
	return before.SeqCounter, nil
}

// AdvanceBy 批量导入的对账：forward 批次落库后把存量计数器前移 n。
// backward 批次不得调用（见 ingest.reconcile）。
func (l *Ledger) AdvanceBy(ctx context.Context, conversationID string, n int64) error {
	res, err := l.Coll.UpdateOne(ctx,
		bson.M{chatmodel.ConvFieldConversationID: conversationID},
		bson.M{
			"$inc": bson.M{chatmodel.ConvFieldSeqCounter: n},
			"$set": bson.M{chatmodel.ConvFieldUpdateTime: time.Now()},
		},
	)
	if err != nil {
		return errs.WrapMsg(err, "advance counter", "conv", conversationID, "n", n)
	}
	if res.MatchedCount == 0 {
		return errs.ErrConversationNotFound.WrapMsg("advance counter", "conv", conversationID)
	}
	return nil
}

// Get 普通读（运维/测试用）
func (l *Ledger) Get(ctx context.Context, conversationID string) (*chatmodel.Conversation, error) {
	var out chatmodel.Conversation
	err := l.Coll.FindOne(ctx, bson.M{chatmodel.ConvFieldConversationID: conversationID}).Decode(&out)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrConversationNotFound.WrapMsg("get", "conv", conversationID)
	}
	if err != nil {
		return nil, errs.Wrap(err)
	}
	return &out, nil
}
