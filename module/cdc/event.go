package cdc

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// 事件操作类型（与 mongo change stream 的 operationType 对齐）
const (
	OpInsert  = "insert"
	OpUpdate  = "update"
	OpReplace = "replace"
	OpDelete  = "delete"
)

// Event 一条已提交变更
type Event struct {
	OpType       string   // insert / update / ...
	Coll         string   // 来源集合
	FullDocument bson.Raw // 变更后全文档（insert/replace 必有；update 取决于流配置）
	DocumentKey  bson.Raw
}

// Source 一次 capture 周期内打开的游标。
// TryNext 非阻塞：没有立即可用的事件时返回 ok=false。
type Source interface {
	TryNext(ctx context.Context) (ev *Event, ok bool, err error)
	ResumeToken() bson.Raw // 最近一次成功读到事件后的续传位置
	Close(ctx context.Context) error
}

// CursorOpener 打开游标；resume 为空表示全新开流
type CursorOpener interface {
	Open(ctx context.Context, resume bson.Raw) (Source, error)
}

// CheckpointStore 续传位置的持久化
type CheckpointStore interface {
	Load(ctx context.Context) (bson.Raw, error) // 不存在返回 nil, nil
	Save(ctx context.Context, token bson.Raw) error
	Clear(ctx context.Context) error
}

// HeartbeatWriter 仅在无 checkpoint 全新开流后写一条废弃记录，
// 逼迫流产出一个可续传 token（裸游标在无事件时拿不到位置）。
type HeartbeatWriter interface {
	Beat(ctx context.Context) error
}

// Handler 按来源集合分发的实体处理器。
// Buffer 只积攒内存，Flush 每轮 drain 末尾统一调用（无论有没有积攒到东西）。
type Handler interface {
	Name() string
	Supports(coll string) bool
	Buffer(ev *Event)
	Flush(ctx context.Context) error
}
