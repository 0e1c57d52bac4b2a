package ingest

import (
	"context"
	"encoding/json"
	"time"

	"IMStore/global/config"
	"IMStore/logger"
	"IMStore/service/natsx"
	"IMStore/tools/safe"

	"go.uber.org/zap"
)

// StartLiveConsumer 实时摄入消费（阻塞）。
// 单 worker、batch=1：保证同一会话内的投递顺序。
func StartLiveConsumer(ctx context.Context, w *LiveWorker) {
	h := func(ctx context.Context, msg natsx.NatsxMessage) error {
		var req SendReq
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			logger.Error("live ingest: bad payload", zap.Error(err))
			return nil // 解不开的消息重投也没用，ACK 丢弃
		}
		return w.Handle(ctx, &req)
	}
	if err := natsx.PullConsume(ctx, config.BizLiveIngest, 1, 500*time.Millisecond, h); err != nil {
		logger.Errorf("live consumer exited: %v", err)
	}
}

// StartImportConsumers 历史导入消费（阻塞到 ctx 结束）。
// 批次之间自洽（一个会话日一单），可以放开并发。
func StartImportConsumers(ctx context.Context, im *Importer, workers int) {
	if workers <= 0 {
		workers = config.Global.ImportWorkers
	}
	h := func(ctx context.Context, msg natsx.NatsxMessage) error {
		var req ImportReq
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			logger.Error("import: bad payload", zap.Error(err))
			return nil
		}
		return im.Run(ctx, &req)
	}
	for i := 0; i < workers; i++ {
		idx := i
		safe.Go("import-consumer", func() {
			if err := natsx.PullConsume(ctx, config.BizBatchImport, 8, time.Second, h); err != nil {
				logger.Errorf("import consumer %d exited: %v", idx, err)
			}
		})
	}
	<-ctx.Done()
}
