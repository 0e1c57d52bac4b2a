package mgo

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	mgo "IMStore/data/database/mgo/mongoutil"
	"IMStore/logger"

	"go.mongodb.org/mongo-driver/mongo"
)

const (
	connectBase   = 200 * time.Millisecond
	connectCap    = 5 * time.Second
	healthEvery   = 10 * time.Second
	healthFailMax = 3 // 连续失败到这个数就弃连重建
)

// MongoManager 异步连接管理：进程启动不等库，首次连上 close(readyCh)，
// 之后周期探活，掉线自动重建连接。
type MongoManager struct {
	mu        sync.RWMutex
	client    *mgo.Client
	readyCh   chan struct{}
	readyOnce sync.Once

	lastErr atomic.Value // error
}

var globalMgr MongoManager

// StartAsync 启动守护协程，一直跑到 ctx 结束
func StartAsync(ctx context.Context, cfg *mgo.Config) {
	if globalMgr.readyCh == nil {
		globalMgr.readyCh = make(chan struct{})
	}
	go globalMgr.loop(ctx, cfg)
}

func (m *MongoManager) loop(ctx context.Context, cfg *mgo.Config) {
	for {
		if !m.connect(ctx, cfg) {
			return
		}
		if !m.keepAlive(ctx) {
			return
		}
		// 探活判定掉线，回到连接阶段
		logger.Warnf("mongo connection lost, reconnecting")
	}
}

// connect 带退避抖动的连接重试；返回 false 表示 ctx 已结束
func (m *MongoManager) connect(ctx context.Context, cfg *mgo.Config) bool {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return false
		}

		cli, err := mgo.NewMongoDB(ctx, cfg)
		if err == nil {
			m.mu.Lock()
			m.client = cli
			m.mu.Unlock()
			m.readyOnce.Do(func() { close(m.readyCh) })
			logger.Infof("mongo connected db=%s", cfg.Database)
			return true
		}
		m.lastErr.Store(err)

		backoff := connectBase << attempt
		if backoff > connectCap {
			backoff = connectCap
		}
		jitter := time.Duration(rand.Int63n(int64(backoff/5) + 1))

		timer := time.NewTimer(backoff - jitter/2)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
		if attempt < 6 {
			attempt++
		}
	}
}

// keepAlive 周期探活；返回 false 表示 ctx 结束，true 表示掉线需重连
func (m *MongoManager) keepAlive(ctx context.Context) bool {
	fails := 0
	t := time.NewTicker(healthEvery)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			m.dropClient()
			return false
		case <-t.C:
			m.mu.RLock()
			c := m.client
			m.mu.RUnlock()
			if c == nil {
				return true
			}
			if err := c.GetDB().Client().Ping(ctx, nil); err != nil {
				m.lastErr.Store(err)
				fails++
				if fails >= healthFailMax {
					m.dropClient()
					return true
				}
				continue
			}
			fails = 0
		}
	}
}

func (m *MongoManager) dropClient() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		_ = m.client.GetDB().Client().Disconnect(context.Background())
		m.client = nil
	}
}

// Ready 首次连接成功时 close；可 select 等待
func Ready() <-chan struct{} {
	return globalMgr.readyCh
}

func Manager() *MongoManager {
	return &globalMgr
}

// Err 最近一次连接/探活错误
func Err() error {
	if v := globalMgr.lastErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// GetDB 未就绪直接 panic；启动路径先 WaitReady
func GetDB() *mongo.Database {
	globalMgr.mu.RLock()
	defer globalMgr.mu.RUnlock()
	if globalMgr.client == nil {
		panic("mongo not ready: wait Ready() or use TryGetDB()")
	}
	return globalMgr.client.GetDB()
}

func TryGetDB() (*mongo.Database, bool) {
	globalMgr.mu.RLock()
	defer globalMgr.mu.RUnlock()
	if globalMgr.client == nil {
		return nil, false
	}
	return globalMgr.client.GetDB(), true
}

// WaitReady 阻塞到首次就绪或 ctx 超时
func WaitReady(ctx context.Context, m *MongoManager) error {
	m.mu.RLock()
	readyCh := m.readyCh
	connected := m.client != nil
	m.mu.RUnlock()

	if connected {
		return nil
	}
	if readyCh == nil {
		return fmt.Errorf("mongo manager not started")
	}
	select {
	case <-readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
