package member

import (
	"context"
	"time"

	chatmodel "IMStore/module/chat/model"
	"IMStore/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GroupMemberSource 群成员名单的来源（通讯录服务等外部协作方，仅接口）
type GroupMemberSource interface {
	ListMemberIDs(ctx context.Context, groupID string) ([]string, error)
}

// Member 成员账本 DAO。
// (user_id, conversation_id) 唯一索引兜底，所有创建都是 $setOnInsert upsert。
type Member struct {
	Coll   *mongo.Collection
	Groups GroupMemberSource
}

func New(db *mongo.Database, groups GroupMemberSource) *Member {
	m := chatmodel.Membership{}
	return &Member{Coll: db.Collection(m.GetTableName()), Groups: groups}
}

// EnsureForDirect 给单聊双方各建一条成员记录；已存在则原样返回。
// currentVersion 是 ensure 会话时读到的计数器快照，作为 join_seq。
func (m *Member) EnsureForDirect(ctx context.Context, conversationID, userA, userB string, currentVersion int64, now time.Time) error {
	for _, uid := range []string{userA, userB} {
		if err := m.ensureOne(ctx, conversationID, uid, chatmodel.ConvTypeDirect, currentVersion, now); err != nil {
			return err
		}
	}
	return nil
}

// EnsureForGroup 拉群成员名单，逐个幂等建成员记录
func (m *Member) EnsureForGroup(ctx context.Context, conversationID, groupID string, currentVersion int64, now time.Time) error {
	if m.Groups == nil {
		return errs.ErrInternal.WrapMsg("group member source not wired")
	}
	ids, err := m.Groups.ListMemberIDs(ctx, groupID)
	if err != nil {
		return errs.WrapMsg(err, "list group members", "group", groupID)
	}
	for _, uid := range ids {
		if err := m.ensureOne(ctx, conversationID, uid, chatmodel.ConvTypeGroup, currentVersion, now); err != nil {
			return err
		}
	}
	return nil
}

func (m *Member) ensureOne(ctx context.Context, conversationID, userID string, convType int32, joinSeq int64, now time.Time) error {
	_, err := m.Coll.UpdateOne(ctx,
		bson.M{
			chatmodel.MemberFieldUserID:         userID,
			chatmodel.MemberFieldConversationID: conversationID,
		},
		bson.M{
			"$setOnInsert": bson.M{
				chatmodel.MemberFieldUserID:         userID,
				chatmodel.MemberFieldConversationID: conversationID,
				chatmodel.MemberFieldConvType:       convType,
				chatmodel.MemberFieldJoinSeq:        joinSeq,
				chatmodel.MemberFieldJoinTime:       now,
				chatmodel.MemberFieldLastReadSeq:    int64(0),
				chatmodel.MemberFieldCreateTime:     now,
			},
			"$set": bson.M{chatmodel.MemberFieldUpdateTime: now},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return errs.WrapMsg(err, "ensure membership", "conv", conversationID, "user", userID)
	}
	return nil
}

// LowerJoinBoundary 回灌专用：把 join_seq/join_time 压到更早。
// 只动 leave_seq 仍为空的行；用 $min 保证只降不升（重放安全）。
func (m *Member) LowerJoinBoundary(ctx context.Context, conversationID, userID string, newJoinSeq int64, newJoinTime time.Time) error {
	_, err := m.Coll.UpdateOne(ctx,
		bson.M{
			chatmodel.MemberFieldUserID:         userID,
			chatmodel.MemberFieldConversationID: conversationID,
			chatmodel.MemberFieldLeaveSeq:       nil,
		},
		bson.M{
			"$min": bson.M{
				chatmodel.MemberFieldJoinSeq:  newJoinSeq,
				chatmodel.MemberFieldJoinTime: newJoinTime,
			},
			"$set": bson.M{chatmodel.MemberFieldUpdateTime: time.Now()},
		},
	)
	return errs.WrapMsg(err, "lower join boundary", "conv", conversationID, "user", userID)
}

// LowerJoinBoundaryForAllActiveMembers 群量版：会话内所有未离开成员一次压低
func (m *Member) LowerJoinBoundaryForAllActiveMembers(ctx context.Context, conversationID string, newJoinSeq int64, newJoinTime time.Time) error {
	_, err := m.Coll.UpdateMany(ctx,
		bson.M{
			chatmodel.MemberFieldConversationID: conversationID,
			chatmodel.MemberFieldLeaveSeq:       nil,
		},
		bson.M{
			"$min": bson.M{
				chatmodel.MemberFieldJoinSeq:  newJoinSeq,
				chatmodel.MemberFieldJoinTime: newJoinTime,
			},
			"$set": bson.M{chatmodel.MemberFieldUpdateTime: time.Now()},
		},
	)
	return errs.WrapMsg(err, "lower join boundary all", "conv", conversationID)
}

// MarkReadTo 推进读进度：last_read_seq 只前移（$max），并回传推进后的值
func (m *Member) MarkReadTo(ctx context.Context, conversationID, userID string, upToSeq int64) (int64, error) {
	now := time.Now()
	res := m.Coll.FindOneAndUpdate(ctx,
		bson.M{
			chatmodel.MemberFieldUserID:         userID,
			chatmodel.MemberFieldConversationID: conversationID,
		},
		bson.M{
			"$max": bson.M{chatmodel.MemberFieldLastReadSeq: upToSeq},
			"$set": bson.M{
				chatmodel.MemberFieldLastReadTime: now,
				chatmodel.MemberFieldUpdateTime:   now,
			},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)

	var out chatmodel.Membership
	if err := res.Decode(&out); err != nil {
		if err == mongo.ErrNoDocuments {
			return 0, errs.ErrArgs.WrapMsg("membership not found", "conv", conversationID, "user", userID)
		}
		return 0, errs.Wrap(err)
	}
	return out.LastReadSeq, nil
}

// Leave 关窗：置 leave_seq/leave_time，可见上界定格
func (m *Member) Leave(ctx context.Context, conversationID, userID string, leaveSeq int64, now time.Time) error {
	_, err := m.Coll.UpdateOne(ctx,
		bson.M{
			chatmodel.MemberFieldUserID:         userID,
			chatmodel.MemberFieldConversationID: conversationID,
			chatmodel.MemberFieldLeaveSeq:       nil,
		},
		bson.M{"$set": bson.M{
			chatmodel.MemberFieldLeaveSeq:   leaveSeq,
			chatmodel.MemberFieldLeaveTime:  now,
			chatmodel.MemberFieldUpdateTime: now,
		}},
	)
	return errs.WrapMsg(err, "leave", "conv", conversationID, "user", userID)
}
