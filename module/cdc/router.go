package cdc

import (
	"context"
	"time"

	"IMStore/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// 周期状态机：IDLE → OPEN_CURSOR → DRAIN → CHECKPOINT → IDLE。
// 特意做成外部周期触发的轮询，而不是常开的阻塞订阅：牺牲一点延迟，
// 换掉长连接的运维负担。
type State int32

const (
	StateIdle State = iota
	StateOpenCursor
	StateDrain
	StateCheckpoint
)

// 路由器自身的簿记集合：它们的事件推进 checkpoint，但不进业务 handler
var systemColls = map[string]struct{}{
	"cdc_checkpoint": {},
	"cdc_heartbeat":  {},
}

// Router 变更捕获路由器；单线程 drain，handler 串行 flush。
type Router struct {
	Opener     CursorOpener
	Ckpt       CheckpointStore
	Heartbeat  HeartbeatWriter
	BatchLimit int // 单轮事件上限；0 不限

	handlers []Handler
	state    State
}

func NewRouter(opener CursorOpener, ckpt CheckpointStore, hb HeartbeatWriter) *Router {
	return &Router{Opener: opener, Ckpt: ckpt, Heartbeat: hb}
}

// Register 注册 (predicate, handler)
func (r *Router) Register(h Handler) {
	r.handlers = append(r.handlers, h)
}

func (r *Router) State() State { return r.state }

// RunCycle 跑一个完整周期。周期内部错误只影响本轮，下一轮重来。
func (r *Router) RunCycle(ctx context.Context) error {
	// ===== OPEN_CURSOR =====
	r.state = StateOpenCursor
	defer func() { r.state = StateIdle }()

	resume, err := r.Ckpt.Load(ctx)
	if err != nil {
		return err
	}

	src, err := r.openWith(ctx, resume)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close(ctx) }()

	// ===== DRAIN =====
	r.state = StateDrain
	processed := 0
	for {
		if r.BatchLimit > 0 && processed >= r.BatchLimit {
			break
		}
		ev, ok, err := src.TryNext(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break // 没有立即可用的事件
		}
		processed++

		if _, sys := systemColls[ev.Coll]; sys {
			continue // 自家簿记，只推位置不分发，避免反馈环
		}
		for _, h := range r.handlers {
			if h.Supports(ev.Coll) {
				h.Buffer(ev)
			}
		}
	}

	// 每轮对每个 handler 都 flush 一次：哪怕本轮没给它攒到事件，
	// 上一轮可能有残留
	for _, h := range r.handlers {
		if err := h.Flush(ctx); err != nil {
			// 单 handler 失败不许拖垮 checkpoint 和其他 handler；
			// 这批数据接受至多一次
			logger.Error("cdc handler flush failed",
				zap.String("handler", h.Name()), zap.Error(err))
		}
	}

	// ===== CHECKPOINT =====
	r.state = StateCheckpoint
	if token := src.ResumeToken(); len(token) > 0 {
		if err := r.Ckpt.Save(ctx, token); err != nil {
			return err
		}
	}
	logger.Debug("cdc cycle done", zap.Int("events", processed))
	return nil
}

// openWith 按 checkpoint 续传；token 坏掉就丢弃全新开流并打心跳
func (r *Router) openWith(ctx context.Context, resume bson.Raw) (Source, error) {
	if len(resume) > 0 {
		src, err := r.Opener.Open(ctx, resume)
		if err == nil {
			return src, nil
		}
		// CheckpointInvalid：接受一段缺口/重复窗口，换取恢复
		logger.Warn("cdc resume token rejected, restarting fresh", zap.Error(err))
		if err := r.Ckpt.Clear(ctx); err != nil {
			return nil, err
		}
	}

	src, err := r.Opener.Open(ctx, nil)
	if err != nil {
		return nil, err
	}
	// 全新开流后同步写一条心跳，保证流立刻产出带 token 的位置
	if err := r.Heartbeat.Beat(ctx); err != nil {
		_ = src.Close(ctx)
		return nil, err
	}
	return src, nil
}

// Start 周期触发（阻塞到 ctx 结束）
func (r *Router) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := r.RunCycle(ctx); err != nil {
				logger.Error("cdc cycle failed", zap.Error(err))
			}
		}
	}
}
