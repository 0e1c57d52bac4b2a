package config

import (
	"context"
	"time"

	"IMStore/data/database/mgo/mongoutil"
	"IMStore/logger"
	"IMStore/service/mgo"
	"IMStore/service/natsx"
	"IMStore/service/pgsink"
	redis "IMStore/service/storage/redis"
	ids "IMStore/tools/ids"
)

// Biz 路由名（natsx 按 Biz 找 subject）
const (
	BizLiveIngest  = "msg.live"    // 实时消息摄入，串行消费
	BizBatchImport = "msg.import"  // 历史批次导入
	BizCdcMessage  = "cdc.message" // CDC 广播：消息
	BizCdcConv     = "cdc.conv"    // CDC 广播：会话
	BizCdcMember   = "cdc.member"  // CDC 广播：成员
)

func ConfigAll(ctx context.Context) {
	ConfigIds()
	ConfigRedis()
	ConfigMgo(ctx)
	ConfigNats()
	ConfigPg(ctx)
}

func ConfigIds() {
	logger.Infof("配置id生成 node=%s", Global.NodeId)
	ids.SetNodeID(100)
}

func ConfigRedis() {
	cfg := redis.Config{
		Addr: "127.0.0.1:6379", Password: "", DB: 0, PoolSize: 64,
	}
	if err := redis.InitRedis(cfg); err != nil {
		logger.Errorf("redis init: %v", err)
	}
}

func ConfigMgo(ctx context.Context) {
	mgo.StartAsync(ctx, &mongoutil.Config{
		Address:     []string{"127.0.0.1:27017"},
		Database:    Global.WatchedDB,
		MaxPoolSize: 100,
	})
}

func ConfigNats() {
	cli, err := natsx.NewNatsxClient(natsx.NatsxConfig{
		Servers: []string{"nats://127.0.0.1:4222"},
		Name:    Global.NodeId,
	})
	if err != nil {
		logger.Errorf("nats init: %v", err)
		return
	}
	routes := []natsx.NatsxRoute{
		{Biz: BizLiveIngest, Subject: "im.msg.live", Mode: natsx.JetStreamPull,
			Durable: "msg-live", AckWait: Global.LiveAckWait, MaxAckPending: 1,
			MaxDeliver: Global.LiveMaxDeliver},
		{Biz: BizBatchImport, Subject: "im.msg.import", Mode: natsx.JetStreamPull,
			Durable: "msg-import", AckWait: 2 * time.Minute, MaxAckPending: 64},
		{Biz: BizCdcMessage, Subject: "im.cdc.message", Mode: natsx.JetStreamPull,
			Durable: "cdc-message", AckWait: time.Minute, MaxAckPending: 128},
		{Biz: BizCdcConv, Subject: "im.cdc.conversation", Mode: natsx.JetStreamPull,
			Durable: "cdc-conversation", AckWait: time.Minute, MaxAckPending: 128},
		{Biz: BizCdcMember, Subject: "im.cdc.membership", Mode: natsx.JetStreamPull,
			Durable: "cdc-membership", AckWait: time.Minute, MaxAckPending: 128},
	}
	for _, r := range routes {
		if err := cli.RegisterRoute(r); err != nil {
			logger.Errorf("nats route %s: %v", r.Biz, err)
		}
	}
	// 消费端幂等：redis 按 Nats-Msg-Id 去重（成功后才标记），必须在 SetGlobal 前装好
	natsx.UseGlobalMiddlewares(natsx.NatsxIdemMiddleware(
		redis.NewRedisIdem("imstore:idem:"), 24*time.Hour))
	natsx.SetGlobal(cli)
}

func ConfigPg(ctx context.Context) {
	if err := pgsink.Init(ctx, pgsink.Config{
		Url: "postgres://im:im@127.0.0.1:5432/im_warehouse",
	}); err != nil {
		logger.Errorf("pg sink init: %v", err)
	}
}
