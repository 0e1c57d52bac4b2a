package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	redisOnce sync.Once
	redisMgr  *RedisManager
)

type RedisManager struct {
	client *redis.Client
}

// Config 用于初始化 Redis
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// InitRedis 初始化 Redis 管理器（单例）
func InitRedis(c Config) error {
	var initErr error
	redisOnce.Do(func() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     c.Addr,
			Password: c.Password,
			DB:       c.DB,
			PoolSize: c.PoolSize,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := rdb.Ping(ctx).Err(); err != nil {
			initErr = err
			return
		}

		redisMgr = &RedisManager{client: rdb}
	})
	return initErr
}

// GetRedis 获取 Redis Client
func GetRedis() *redis.Client {
	if redisMgr == nil {
		panic("Redis not initialized, call InitRedis first")
	}
	return redisMgr.client
}

// CloseRedis 关闭连接
func CloseRedis() error {
	if redisMgr == nil {
		return nil
	}
	return redisMgr.client.Close()
}

// ---- 跨进程幂等，实现 natsx.IdemStore ----
// 标记只在消费成功后写入（见 natsx.NatsxIdemMiddleware），
// 所以这里是普通的 EXISTS/SET 而非 SETNX 抢占。

type RedisIdem struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisIdem(prefix string) *RedisIdem {
	return &RedisIdem{rdb: GetRedis(), prefix: prefix}
}

// Seen 是否已消费过
func (ri *RedisIdem) Seen(key string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n, err := ri.rdb.Exists(ctx, ri.prefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark 消费成功后落去重标记
func (ri *RedisIdem) Mark(key string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return ri.rdb.Set(ctx, ri.prefix+key, 1, ttl).Err()
}
