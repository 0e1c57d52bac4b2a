package replica

import (
	"context"
	"encoding/json"
	"time"

	"IMStore/global/config"
	"IMStore/logger"
	chatmodel "IMStore/module/chat/model"
	"IMStore/service/natsx"
	"IMStore/service/pgsink"
	"IMStore/tools/errs"
	"IMStore/tools/safe"

	"go.uber.org/zap"
)

// sinkSpec 一个实体在分析库里的落位
type sinkSpec struct {
	biz     string
	table   string
	columns []string
	toRow   func(doc json.RawMessage) ([]any, error)
}

var sinkSpecs = []sinkSpec{
	{
		biz:   config.BizCdcMessage,
		table: "msg_replica",
		columns: []string{"server_msg_id", "conversation_id", "seq", "send_id", "recv_id",
			"msg_type", "content", "payload_ver", "client_msg_id", "soft_deleted", "status",
			"send_time", "create_time"},
		toRow: func(doc json.RawMessage) ([]any, error) {
			var m chatmodel.MessageModel
			if err := json.Unmarshal(doc, &m); err != nil {
				return nil, err
			}
			return []any{m.ServerMsgID, m.ConversationID, m.Seq, m.SendID, m.RecvID,
				m.MsgType, m.Content, m.PayloadVersion, m.ClientMsgID, m.SoftDeleted, m.Status,
				m.SendTime, m.CreateTime}, nil
		},
	},
	{
		biz:     config.BizCdcConv,
		table:   "conv_replica",
		columns: []string{"conversation_id", "conv_type", "seq_counter", "create_time", "update_time"},
		toRow: func(doc json.RawMessage) ([]any, error) {
			var c chatmodel.Conversation
			if err := json.Unmarshal(doc, &c); err != nil {
				return nil, err
			}
			return []any{c.ConversationID, c.ConvType, c.SeqCounter, c.CreateTime, c.UpdateTime}, nil
		},
	},
	{
		biz:   config.BizCdcMember,
		table: "member_replica",
		columns: []string{"user_id", "conversation_id", "conv_type", "join_seq", "join_time",
			"leave_seq", "leave_time", "last_read_seq", "create_time"},
		toRow: func(doc json.RawMessage) ([]any, error) {
			var m chatmodel.Membership
			if err := json.Unmarshal(doc, &m); err != nil {
				return nil, err
			}
			return []any{m.UserID, m.ConversationID, m.ConvType, m.JoinSeq, m.JoinTime,
				m.LeaveSeq, m.LeaveTime, m.LastReadSeq, m.CreateTime}, nil
		},
	},
}

// handleBatch 消费一条批消息：只回放 insert；整条消息要么全部落库后 ACK，
// 要么报错 NAK 等 broker 重投（进程内不重试）。
func handleBatch(spec sinkSpec) natsx.NatsxHandler {
	return func(ctx context.Context, msg natsx.NatsxMessage) error {
		var batch Batch
		if err := json.Unmarshal(msg.Data, &batch); err != nil {
			logger.Error("replica: bad batch payload", zap.String("biz", spec.biz), zap.Error(err))
			return nil // 坏消息重投无意义
		}
		if batch.Op != "insert" {
			return nil // update 暂不回放，账本态以主库为准
		}

		rows := make([][]any, 0, len(batch.Docs))
		for _, doc := range batch.Docs {
			row, err := spec.toRow(doc)
			if err != nil {
				return errs.WrapMsg(err, "map row", "table", spec.table, "batch", batch.BatchID)
			}
			rows = append(rows, row)
		}

		sink, ok := pgsink.TryGet()
		if !ok {
			return errs.ErrInternal.WrapMsg("pg sink not ready")
		}
		n, err := sink.BulkInsert(ctx, spec.table, spec.columns, rows)
		if err != nil {
			return err
		}
		logger.Debug("replica batch applied",
			zap.String("table", spec.table), zap.String("batch", batch.BatchID), zap.Int("rows", n))
		return nil
	}
}

// StartConsumers 起分析库回放消费（阻塞到 ctx 结束）
func StartConsumers(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = config.Global.ReplicaWorkers
	}
	perBiz := workers / len(sinkSpecs)
	if perBiz <= 0 {
		perBiz = 1
	}
	for _, spec := range sinkSpecs {
		h := handleBatch(spec)
		for i := 0; i < perBiz; i++ {
			biz := spec.biz
			handler := h
			safe.Go("replica-consumer", func() {
				if err := natsx.PullConsume(ctx, biz, 4, time.Second, handler); err != nil {
					logger.Errorf("replica consumer %s exited: %v", biz, err)
				}
			})
		}
	}
	<-ctx.Done()
}
