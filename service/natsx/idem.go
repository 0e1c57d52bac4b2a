package natsx

import (
	"context"
	"strings"
	"sync"
	"time"
)

// IdemStore 消费端去重存储。标记与查询分离：
// 只有业务处理成功后才 Mark，失败走 NAK 时键不存在，broker 重投仍会执行。
type IdemStore interface {
	Seen(key string) (bool, error)
	Mark(key string, ttl time.Duration) error
}

// ===== 内存实现（单进程；跨进程用 redis.RedisIdem） =====

type MemIdem struct {
	mu   sync.Mutex
	m    map[string]int64 // key -> expireUnix
	ttl  time.Duration
	stop chan struct{}
	once sync.Once
}

func NewMemIdem(defaultTTL time.Duration) *MemIdem {
	mi := &MemIdem{
		m:    make(map[string]int64),
		ttl:  defaultTTL,
		stop: make(chan struct{}),
	}
	go mi.sweep()
	return mi
}

// Close 停掉过期清理协程
func (mi *MemIdem) Close() {
	mi.once.Do(func() { close(mi.stop) })
}

func (mi *MemIdem) sweep() {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-mi.stop:
			return
		case <-t.C:
			now := time.Now().Unix()
			mi.mu.Lock()
			for k, exp := range mi.m {
				if exp <= now {
					delete(mi.m, k)
				}
			}
			mi.mu.Unlock()
		}
	}
}

func (mi *MemIdem) Seen(key string) (bool, error) {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	exp, ok := mi.m[key]
	return ok && exp > time.Now().Unix(), nil
}

func (mi *MemIdem) Mark(key string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = mi.ttl
	}
	mi.mu.Lock()
	mi.m[key] = time.Now().Add(ttl).Unix()
	mi.mu.Unlock()
	return nil
}

// ===== 去重键 =====

// dedupKey 优先取消息ID头；没有则退化为 subject+内容
func dedupKey(msg NatsxMessage) string {
	for _, k := range []string{"Nats-Msg-Id", "nats-msg-id", "X-Msg-Id", "x-msg-id"} {
		if v, ok := msg.Header[k]; ok && v != "" {
			return v
		}
	}
	return msg.Subject + "|" + strings.TrimSpace(string(msg.Data))
}

// ===== 幂等中间件 =====

// NatsxIdemMiddleware 重复投递直接 ACK。
// 标记只在 handler 返回 nil 之后落下：失败的消息保持未标记，
// NAK 重投时 handler 会再次执行（at-least-once 不退化）。
// 去重存储自身出错时放行消息，宁可重复处理。
func NatsxIdemMiddleware(store IdemStore, ttl time.Duration) NatsxMiddleware {
	return func(next NatsxHandler) NatsxHandler {
		return func(ctx context.Context, msg NatsxMessage) error {
			key := dedupKey(msg)
			if seen, err := store.Seen(key); err == nil && seen {
				return nil
			}
			if err := next(ctx, msg); err != nil {
				return err
			}
			_ = store.Mark(key, ttl)
			return nil
		}
	}
}
