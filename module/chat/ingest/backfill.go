package ingest

import (
	"context"
	"sort"
	"time"

	"IMStore/logger"
	chatmodel "IMStore/module/chat/model"
	ids "IMStore/tools/ids"

	"go.uber.org/zap"
)

// Importer 历史批次导入：一个会话×一个自然日为一个单元，整单成败。
// 方向由批次日期与边界日期比较决定：边界(含)之前 backward，之后 forward。
type Importer struct {
	Ledger LedgerIface
	Member MemberIface
	Store  StoreIface

	Boundary time.Time // 回灌边界日期
}

// Run 导入一个批次。任一步失败整批放弃（不部分提交），交给队列重投。
func (im *Importer) Run(ctx context.Context, req *ImportReq) error {
	if len(req.Messages) == 0 {
		return nil
	}

	convID, err := conversationIDOf(req.ConvType, req.SenderA, req.SenderB, req.GroupID)
	if err != nil {
		return err
	}

	now := time.Now()
	conv, err := im.Ledger.EnsureExists(ctx, convID, req.ConvType)
	if err != nil {
		return err
	}
	if req.ConvType == chatmodel.ConvTypeGroup {
		err = im.Member.EnsureForGroup(ctx, convID, req.GroupID, conv.SeqCounter, now)
	} else {
		err = im.Member.EnsureForDirect(ctx, convID, req.SenderA, req.SenderB, conv.SeqCounter, now)
	}
	if err != nil {
		return err
	}

	// 计数器快照只读这一次；区间纯靠快照+批大小算出
	snapshot := conv.SeqCounter
	n := int64(len(req.Messages))
	backward := IsBackward(req.BatchDate, im.Boundary)
	minSeq, _ := ComputeInterval(snapshot, n, backward)

	// 时间升序 ↔ seq 升序
	msgs := append([]ImportMsg(nil), req.Messages...)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].SentAt.Before(msgs[j].SentAt) })

	models := make([]*chatmodel.MessageModel, 0, len(msgs))
	for i, src := range msgs {
		models = append(models, &chatmodel.MessageModel{
			ServerMsgID:    ids.GenerateString(),
			ConversationID: convID,
			Seq:            minSeq + int64(i),
			SendID:         src.SenderID,
			RecvID:         src.RecipientID,
			MsgType:        src.MsgType,
			Content:        src.Content,
			PayloadVersion: src.PayloadVer,
			ClientMsgID:    src.ClientMsgID,
			Status:         chatmodel.MsgStatusNormal,
			SendTime:       src.SentAt,
			CreateTime:     now,
			UpdateTime:     now,
		})
	}

	if err := im.Store.BulkAppend(ctx, models); err != nil {
		return err
	}

	return im.reconcile(ctx, convID, req.BatchDate, minSeq, n, backward)
}

// reconcile 落库后的账本对账。
// minSeq 压到 H 及以下 → 所有未离开成员的可见下界同步压低；
// 计数器只有 forward 批次前移（backward 批次区间在快照之下/含快照，
// 再前移就把进度记了两次）。
func (im *Importer) reconcile(ctx context.Context, convID string, batchDate time.Time, minSeq, n int64, backward bool) error {
	if minSeq <= chatmodel.SeqHorizon {
		if err := im.Member.LowerJoinBoundaryForAllActiveMembers(ctx, convID, minSeq, batchDate); err != nil {
			return err
		}
	}
	if !backward {
		if err := im.Ledger.AdvanceBy(ctx, convID, n); err != nil {
			return err
		}
	}
	logger.Debug("import batch reconciled",
		zap.String("conv", convID), zap.Int64("min_seq", minSeq),
		zap.Int64("n", n), zap.Bool("backward", backward))
	return nil
}

// IsBackward 批次日期在边界(含)之前 → 视为比已有记录更老，走 backward
func IsBackward(batchDate, boundary time.Time) bool {
	return !batchDate.After(boundary)
}

// ComputeInterval 由计数器快照与批大小算出批次将占用的连续区间 [minSeq, maxSeq]。
// backward：maxSeq=快照，minSeq=maxSeq-n+1；forward：minSeq=快照+1，maxSeq=快照+n。
func ComputeInterval(snapshot, n int64, backward bool) (minSeq, maxSeq int64) {
	if backward {
		maxSeq = snapshot
		minSeq = maxSeq - n + 1
		return minSeq, maxSeq
	}
	minSeq = snapshot + 1
	maxSeq = snapshot + n
	return minSeq, maxSeq
}
