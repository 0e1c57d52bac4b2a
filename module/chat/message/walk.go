package message

import (
	"context"
	"time"

	chatmodel "IMStore/module/chat/model"
)

// partitionIO 单个月分区上的最小读取面；月回走只依赖它，Store 是生产实现
type partitionIO interface {
	partitionExists(ctx context.Context, part string) (bool, error)
	findRange(ctx context.Context, part, conversationID string, sinceSeq, untilSeq int64) ([]*chatmodel.MessageModel, error)
	findBefore(ctx context.Context, part, conversationID string, cursorSeq, limit int64) ([]*chatmodel.MessageModel, error)
	hasSeqAtOrBelow(ctx context.Context, part, conversationID string, seq int64) (bool, error)
}

// walkRange 从 from 所在月起逐月回走，收集 (sinceSeq, untilSeq]，按 seq 升序返回。
// 停止条件：分区缺失（已走到最老月之前），或当前分区出现 ≤ sinceSeq 的记录
// （范围下界已覆盖，更早的月份不可能再有界内 seq）。
func walkRange(ctx context.Context, src partitionIO, from time.Time, conversationID string, sinceSeq, untilSeq int64) ([]*chatmodel.MessageModel, error) {
	if untilSeq <= sinceSeq {
		return nil, nil
	}
	var all []*chatmodel.MessageModel
	for cur := monthOf(from); ; cur = cur.AddDate(0, -1, 0) {
		part := chatmodel.MsgPartitionName(cur)
		exists, err := src.partitionExists(ctx, part)
		if err != nil {
			return nil, err
		}
		if !exists {
			break
		}

		batch, err := src.findRange(ctx, part, conversationID, sinceSeq, untilSeq)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)

		reached, err := src.hasSeqAtOrBelow(ctx, part, conversationID, sinceSeq)
		if err != nil {
			return nil, err
		}
		if reached {
			break
		}
	}
	sortBySeqAsc(all)
	return all, nil
}

// walkBefore 逐月回走收集 seq < cursorSeq 的最近 limit 条，按 seq 降序返回
func walkBefore(ctx context.Context, src partitionIO, from time.Time, conversationID string, cursorSeq, limit int64) ([]*chatmodel.MessageModel, error) {
	if limit <= 0 {
		return nil, nil
	}
	var all []*chatmodel.MessageModel
	for cur := monthOf(from); int64(len(all)) < limit; cur = cur.AddDate(0, -1, 0) {
		part := chatmodel.MsgPartitionName(cur)
		exists, err := src.partitionExists(ctx, part)
		if err != nil {
			return nil, err
		}
		if !exists {
			break
		}

		batch, err := src.findBefore(ctx, part, conversationID, cursorSeq, limit-int64(len(all)))
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
	}
	sortBySeqDesc(all)
	if int64(len(all)) > limit {
		all = all[:limit]
	}
	return all, nil
}
