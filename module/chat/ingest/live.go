package ingest

import (
	"context"
	"sync/atomic"
	"time"

	"IMStore/logger"
	"IMStore/module/chat/ledger"
	chatmodel "IMStore/module/chat/model"
	"IMStore/tools/errs"
	ids "IMStore/tools/ids"

	"go.uber.org/zap"
)

// LiveWorker 实时摄入：ensure → 发号(1) → 落库。
// 会话内顺序靠队列消费并发=1 保证；跨会话不保证也不需要。
type LiveWorker struct {
	Ledger LedgerIface
	Member MemberIface
	Store  StoreIface

	StagingCap int32         // 在途上限；超过即背压
	StallSleep time.Duration // 背压时先睡再拒

	inflight atomic.Int32
}

// Handle 处理一条实时消息；返回错误则消息 NAK 回队列重投。
func (w *LiveWorker) Handle(ctx context.Context, req *SendReq) error {
	if err := w.admit(); err != nil {
		return err
	}
	defer w.inflight.Add(-1)

	convID, err := conversationIDOf(req.ConvType, req.SenderID, req.RecipientID, req.GroupID)
	if err != nil {
		return err
	}

	now := time.Now()
	conv, err := w.Ledger.EnsureExists(ctx, convID, req.ConvType)
	if err != nil {
		return err
	}
	if req.ConvType == chatmodel.ConvTypeGroup {
		err = w.Member.EnsureForGroup(ctx, convID, req.GroupID, conv.SeqCounter, now)
	} else {
		err = w.Member.EnsureForDirect(ctx, convID, req.SenderID, req.RecipientID, conv.SeqCounter, now)
	}
	if err != nil {
		return err
	}

	seq, err := w.Ledger.AllocateForward(ctx, convID, 1)
	if err != nil {
		return err
	}

	m := &chatmodel.MessageModel{
		ServerMsgID:    ids.GenerateString(),
		ConversationID: convID,
		Seq:            seq,
		SendID:         req.SenderID,
		RecvID:         req.RecipientID,
		MsgType:        req.MsgType,
		Content:        req.Content,
		PayloadVersion: req.PayloadVer,
		ClientMsgID:    req.ClientMsgID,
		Status:         chatmodel.MsgStatusNormal,
		SendTime:       req.SentAt,
		CreateTime:     now,
		UpdateTime:     now,
	}
	if err := w.Store.Append(ctx, m); err != nil {
		// DuplicateSequence 说明发号或重放出了问题，必须暴露，不得吞掉
		logger.Error("live append failed",
			zap.String("conv", convID), zap.Int64("seq", seq), zap.Error(err))
		return err
	}
	return nil
}

// admit 背压闸门：在途超过上限先睡一拍，再拒绝让 broker 重投
func (w *LiveWorker) admit() error {
	if w.StagingCap > 0 && w.inflight.Load() >= w.StagingCap {
		time.Sleep(w.StallSleep)
		if w.inflight.Load() >= w.StagingCap {
			return errs.ErrWriteConflict.WrapMsg("live staging full", "cap", w.StagingCap)
		}
	}
	w.inflight.Add(1)
	return nil
}

// InflightDepth 运维面板用
func (w *LiveWorker) InflightDepth() int32 { return w.inflight.Load() }

func conversationIDOf(convType int32, sender, recipient, groupID string) (string, error) {
	if convType == chatmodel.ConvTypeGroup {
		if groupID == "" {
			return "", errs.ErrArgs.WrapMsg("group_id required")
		}
		return ledger.BuildGroupConvID(groupID), nil
	}
	if sender == "" || recipient == "" {
		return "", errs.ErrArgs.WrapMsg("sender/recipient required")
	}
	return ledger.BuildDirectConvID(sender, recipient), nil
}
