package message

import (
	"context"
	"sync"
	"time"

	"IMStore/data/database/mgo/mongoutil"
	chatmodel "IMStore/module/chat/model"
	"IMStore/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store 按月分区的消息存储。
// 分区集合随首次写入出现；唯一索引 (conversation_id, seq) 在首次触达分区时补建。
type Store struct {
	DB *mongo.Database

	mu      sync.Mutex
	indexed map[string]struct{} // 本进程已确认建过索引的分区

	nowFn func() time.Time // 月游标起点，测试可替换
}

func NewStore(db *mongo.Database) *Store {
	return &Store{
		DB:      db,
		indexed: make(map[string]struct{}),
		nowFn:   time.Now,
	}
}

// Append 单条写入：落到 send_time 对应的月分区。
// 同分区 (conversation_id, seq) 冲突 → DuplicateSequence，绝不静默覆盖。
func (s *Store) Append(ctx context.Context, m *chatmodel.MessageModel) error {
	part := chatmodel.MsgPartitionName(m.SendTime)
	if err := s.ensurePartitionIndex(ctx, part); err != nil {
		return err
	}
	_, err := s.DB.Collection(part).InsertOne(ctx, m)
	if mongoutil.IsDup(err) {
		return errs.ErrDuplicateSequence.WrapMsg("append", "conv", m.ConversationID, "seq", m.Seq, "partition", part)
	}
	if err != nil {
		return errs.WrapMsg(err, "append", "conv", m.ConversationID, "partition", part)
	}
	return nil
}

// BulkAppend 批量写入（历史导入用）；一个会话日批次落在同一个月分区。
// Ordered(false) 让非冲突行尽量写完，但任一 dup 仍整体报 DuplicateSequence。
func (s *Store) BulkAppend(ctx context.Context, msgs []*chatmodel.MessageModel) error {
	if len(msgs) == 0 {
		return nil
	}
	part := chatmodel.MsgPartitionName(msgs[0].SendTime)
	if err := s.ensurePartitionIndex(ctx, part); err != nil {
		return err
	}
	docs := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		docs = append(docs, m)
	}
	_, err := s.DB.Collection(part).InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if mongoutil.IsDup(err) {
		return errs.ErrDuplicateSequence.WrapMsg("bulk append", "conv", msgs[0].ConversationID, "partition", part, "n", len(msgs))
	}
	if err != nil {
		return errs.WrapMsg(err, "bulk append", "conv", msgs[0].ConversationID, "partition", part)
	}
	return nil
}

// QueryRange 补洞拉取：(sinceSeq, untilSeq]，按 seq 升序返回。
// 从当月起逐月回走，停止条件见 walkRange。
func (s *Store) QueryRange(ctx context.Context, conversationID string, sinceSeq, untilSeq int64) ([]*chatmodel.MessageModel, error) {
	return walkRange(ctx, s, s.nowFn(), conversationID, sinceSeq, untilSeq)
}

// QueryBefore 历史翻页：seq < cursor 的最近 limit 条，按 seq 降序返回
func (s *Store) QueryBefore(ctx context.Context, conversationID string, cursorSeq int64, limit int64) ([]*chatmodel.MessageModel, error) {
	return walkBefore(ctx, s, s.nowFn(), conversationID, cursorSeq, limit)
}

// SetStatus 状态翻转（撤回等）：消息唯一允许的两处可变字段之一
func (s *Store) SetStatus(ctx context.Context, sentAt time.Time, conversationID string, seq int64, status int32) error {
	part := chatmodel.MsgPartitionName(sentAt)
	_, err := s.DB.Collection(part).UpdateOne(ctx,
		bson.M{chatmodel.MsgFieldConversationID: conversationID, chatmodel.MsgFieldSeq: seq},
		bson.M{"$set": bson.M{chatmodel.MsgFieldStatus: status, "update_time": time.Now()}},
	)
	return errs.WrapMsg(err, "set status", "conv", conversationID, "seq", seq)
}

// SoftDelete 软删标记
func (s *Store) SoftDelete(ctx context.Context, sentAt time.Time, conversationID string, seq int64) error {
	part := chatmodel.MsgPartitionName(sentAt)
	_, err := s.DB.Collection(part).UpdateOne(ctx,
		bson.M{chatmodel.MsgFieldConversationID: conversationID, chatmodel.MsgFieldSeq: seq},
		bson.M{"$set": bson.M{chatmodel.MsgFieldSoftDeleted: true, "update_time": time.Now()}},
	)
	return errs.WrapMsg(err, "soft delete", "conv", conversationID, "seq", seq)
}

func (s *Store) findRange(ctx context.Context, part, conversationID string, sinceSeq, untilSeq int64) ([]*chatmodel.MessageModel, error) {
	cursor, err := s.DB.Collection(part).Find(ctx, bson.M{
		chatmodel.MsgFieldConversationID: conversationID,
		chatmodel.MsgFieldSeq: bson.M{
			"$gt":  sinceSeq,
			"$lte": untilSeq,
		},
	})
	if err != nil {
		return nil, errs.WrapMsg(err, "query range", "partition", part)
	}
	var batch []*chatmodel.MessageModel
	if err := cursor.All(ctx, &batch); err != nil {
		return nil, errs.Wrap(err)
	}
	return batch, nil
}

func (s *Store) findBefore(ctx context.Context, part, conversationID string, cursorSeq, limit int64) ([]*chatmodel.MessageModel, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: chatmodel.MsgFieldSeq, Value: -1}}).
		SetLimit(limit)
	cursor, err := s.DB.Collection(part).Find(ctx, bson.M{
		chatmodel.MsgFieldConversationID: conversationID,
		chatmodel.MsgFieldSeq:            bson.M{"$lt": cursorSeq},
	}, opts)
	if err != nil {
		return nil, errs.WrapMsg(err, "query before", "partition", part)
	}
	var batch []*chatmodel.MessageModel
	if err := cursor.All(ctx, &batch); err != nil {
		return nil, errs.Wrap(err)
	}
	return batch, nil
}

func (s *Store) hasSeqAtOrBelow(ctx context.Context, part, conversationID string, seq int64) (bool, error) {
	err := s.DB.Collection(part).FindOne(ctx, bson.M{
		chatmodel.MsgFieldConversationID: conversationID,
		chatmodel.MsgFieldSeq:            bson.M{"$lte": seq},
	}, options.FindOne().SetProjection(bson.M{chatmodel.MsgFieldSeq: 1})).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, errs.WrapMsg(err, "probe range bottom", "partition", part)
	}
	return true, nil
}

func (s *Store) partitionExists(ctx context.Context, part string) (bool, error) {
	s.mu.Lock()
	if _, ok := s.indexed[part]; ok {
		s.mu.Unlock()
		return true, nil
	}
	s.mu.Unlock()

	names, err := s.DB.ListCollectionNames(ctx, bson.M{"name": part})
	if err != nil {
		return false, errs.WrapMsg(err, "list partitions", "partition", part)
	}
	return len(names) > 0, nil
}

// ensurePartitionIndex 首次触达某分区时补 (conversation_id, seq) 唯一索引
func (s *Store) ensurePartitionIndex(ctx context.Context, part string) error {
	s.mu.Lock()
	if _, ok := s.indexed[part]; ok {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	_, err := s.DB.Collection(part).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: chatmodel.MsgFieldConversationID, Value: 1},
			{Key: chatmodel.MsgFieldSeq, Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName("uniq_conv_seq"),
	})
	if err != nil {
		return errs.WrapMsg(err, "ensure partition index", "partition", part)
	}

	s.mu.Lock()
	s.indexed[part] = struct{}{}
	s.mu.Unlock()
	return nil
}

func monthOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
