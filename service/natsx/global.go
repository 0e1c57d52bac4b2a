package natsx

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	gMu       sync.RWMutex
	gClient   *NatsxClient
	gConsumer *NatsxConsumer
	gMws      []NatsxMiddleware
)

// UseGlobalMiddlewares 在 SetGlobal 之前配置（例如幂等）
func UseGlobalMiddlewares(mws ...NatsxMiddleware) {
	gMu.Lock()
	defer gMu.Unlock()
	gMws = append(gMws, mws...)
}

// SetGlobal 安装全局客户端（config 启动时调用一次）
func SetGlobal(c *NatsxClient) {
	gMu.Lock()
	defer gMu.Unlock()
	gClient = c
	gConsumer = NewNatsxConsumer(c, gMws...)
}

// Publish 全局发布
func Publish(ctx context.Context, biz string, data []byte, hdr map[string]string) error {
	gMu.RLock()
	c := gClient
	gMu.RUnlock()
	if c == nil {
		return errors.New("natsx not started")
	}
	return c.Publish(ctx, biz, data, hdr)
}

// PullConsume 全局拉批消费（阻塞）
func PullConsume(ctx context.Context, biz string, batch int, wait time.Duration, h NatsxHandler) error {
	gMu.RLock()
	c := gConsumer
	gMu.RUnlock()
	if c == nil {
		return errors.New("natsx not started")
	}
	return c.PullConsume(ctx, biz, batch, wait, h)
}

// StopGlobal 优雅关闭
func StopGlobal() error {
	gMu.Lock()
	defer gMu.Unlock()
	if gClient == nil {
		return nil
	}
	err := gClient.Close()
	gClient, gConsumer = nil, nil
	return err
}
