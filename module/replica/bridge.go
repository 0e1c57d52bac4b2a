package replica

import (
	"context"
	"encoding/json"

	"IMStore/logger"
	"IMStore/tools/errs"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Batch 复制桥上的一条队列消息：同一实体、同一操作类型的一组文档
type Batch struct {
	BatchID string            `json:"batch_id"`
	Entity  string            `json:"entity"` // message / conversation / membership
	Op      string            `json:"op"`     // insert / update
	Docs    []json.RawMessage `json:"docs"`
}

// PublishFn 底层发布（natsx.Publish 的形状，可替身）
type PublishFn func(ctx context.Context, biz string, data []byte, hdr map[string]string) error

// Bridge 发布侧：超限对半拆
type Bridge struct {
	Publish PublishFn
	Ceiling int // 序列化上限(byte)
}

// PublishBatch 发布一批；序列化超过上限且批内多于一个元素时对半拆，
// 递归到低于上限或只剩单元素为止。返回成功发布的元素个数。
func (b *Bridge) PublishBatch(ctx context.Context, biz string, batch *Batch) (int, error) {
	if len(batch.Docs) == 0 {
		return 0, nil
	}
	data, err := json.Marshal(batch)
	if err != nil {
		return 0, errs.WrapMsg(err, "marshal batch", "entity", batch.Entity)
	}

	if len(data) > b.Ceiling && len(batch.Docs) > 1 {
		mid := len(batch.Docs) / 2
		left := &Batch{BatchID: uuid.NewString(), Entity: batch.Entity, Op: batch.Op, Docs: batch.Docs[:mid]}
		right := &Batch{BatchID: uuid.NewString(), Entity: batch.Entity, Op: batch.Op, Docs: batch.Docs[mid:]}

		n1, err := b.PublishBatch(ctx, biz, left)
		if err != nil {
			return n1, err
		}
		n2, err := b.PublishBatch(ctx, biz, right)
		return n1 + n2, err
	}

	if len(data) > b.Ceiling {
		// 单元素仍超限：只能照发，交给 broker 的上限去拦
		logger.Warn("single element exceeds payload ceiling",
			zap.String("entity", batch.Entity), zap.Int("size", len(data)))
	}

	hdr := map[string]string{"Nats-Msg-Id": batch.BatchID}
	if err := b.Publish(ctx, biz, data, hdr); err != nil {
		return 0, errs.WrapMsg(err, "publish batch", "entity", batch.Entity, "n", len(batch.Docs))
	}
	return len(batch.Docs), nil
}
