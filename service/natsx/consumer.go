package natsx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NatsxMessage 投递给业务的消息视图（header 已摊平成 map）
type NatsxMessage struct {
	Subject string
	Data    []byte
	Header  map[string]string
}

// NatsxHandler 业务处理函数；返回 nil 则 ACK，返回错误则 NAK 交给 broker 重投
type NatsxHandler func(ctx context.Context, msg NatsxMessage) error

// NatsxMiddleware 消费中间件（幂等、日志、指标）
type NatsxMiddleware func(NatsxHandler) NatsxHandler

// NatsxChain 由外到内组合中间件
func NatsxChain(h NatsxHandler, mws ...NatsxMiddleware) NatsxHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// NatsxConsumer 消费端。
// 存储面的消费全部走 JetStream Pull：ack 语义明确，关停时未 ack 的留给 broker 重投。
type NatsxConsumer struct {
	c   *NatsxClient
	mws []NatsxMiddleware
}

func NewNatsxConsumer(c *NatsxClient, mws ...NatsxMiddleware) *NatsxConsumer {
	return &NatsxConsumer{c: c, mws: mws}
}

// PullConsume 拉取消费（批量），阻塞直到 ctx 结束。
// handler 返回 nil 则 ACK；返回错误则 NAK（broker 重投）。
func (cs *NatsxConsumer) PullConsume(ctx context.Context, biz string, batch int, wait time.Duration, h NatsxHandler) error {
	r, ok := cs.c.route(biz)
	if !ok {
		return fmt.Errorf("route not found: %s", biz)
	}
	if r.Mode != JetStreamPull {
		return fmt.Errorf("biz=%s not JetStreamPull", biz)
	}
	if cs.c.js == nil {
		return errors.New("jetstream not initialized")
	}
	if r.Durable == "" {
		return errors.New("JetStreamPull requires Durable consumer name")
	}

	opts := []nats.SubOpt{nats.PullMaxWaiting(8)}
	if r.MaxDeliver > 0 {
		opts = append(opts, nats.MaxDeliver(r.MaxDeliver))
	}
	sub, err := cs.c.js.PullSubscribe(r.Subject, r.Durable, opts...)
	if err != nil {
		return err
	}
	h = NatsxChain(h, cs.mws...)
	if batch <= 0 {
		batch = 64
	}
	if wait <= 0 {
		wait = 500 * time.Millisecond
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			msgs, err := sub.Fetch(batch, nats.MaxWait(wait))
			if err == nats.ErrTimeout {
				continue
			}
			if err != nil {
				time.Sleep(200 * time.Millisecond)
				continue
			}
			for _, m := range msgs {
				msg := NatsxMessage{
					Subject: m.Subject,
					Data:    append([]byte(nil), m.Data...),
					Header:  headerToMap(m.Header),
				}
				if err := h(ctx, msg); err == nil {
					_ = m.Ack()
				} else {
					_ = m.Nak()
				}
			}
		}
	}
}

func headerToMap(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
