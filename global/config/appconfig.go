package config

import "time"

// AppConfig 消息存储/复制核心的进程配置。
// 与网关不同：本进程只有存储、发号、CDC 与复制四条链路。
type AppConfig struct {
	NodeType string
	NodeId   string
	Port     int // 运维端口（checkpoint 状态/清理等）

	// —— 发号 ——
	SeqHorizon int64 // 新会话计数器起点 H；以下为历史回灌区，以上为实时区

	// —— 历史回灌 ——
	BackfillBoundary time.Time // 该日期(含)之前的批次走 backward 方向
	ImportWorkers    int       // 历史导入消费并发

	// —— 实时摄入 ——
	LiveStagingCap  int           // 内存暂存上限，超过则 sleep 后 nak 回投
	LiveStallSleep  time.Duration // 背压时的等待
	LiveAckWait     time.Duration
	LiveMaxDeliver  int

	// —— CDC ——
	CdcInterval    time.Duration // 周期触发间隔（界定复制延迟上界）
	CdcBatchLimit  int           // 单轮 drain 的事件上限，0 不限
	WatchedDB      string

	// —— 复制桥 ——
	PayloadCeiling  int // 单条队列消息序列化上限(byte)；超限对半拆
	ReplicaWorkers  int // 分析库回放消费并发
	SinkSubBatch    int // 分析库单事务写入行数
}

var Global = AppConfig{
	NodeType: "msgStoreNode",
	NodeId:   "store_01",
	Port:     8090,

	SeqHorizon: 100000,

	BackfillBoundary: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	ImportWorkers:    8,

	LiveStagingCap: 4096,
	LiveStallSleep: 200 * time.Millisecond,
	LiveAckWait:    30 * time.Second,
	LiveMaxDeliver: 5,

	CdcInterval:   5 * time.Second,
	CdcBatchLimit: 0,
	WatchedDB:     "im_store",

	PayloadCeiling: 50 * 1024 * 1024,
	ReplicaWorkers: 16,
	SinkSubBatch:   1000,
}
