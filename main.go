package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"IMStore/global/config"
	"IMStore/logger"
	adminhttp "IMStore/module/admin"
	"IMStore/module/cdc"
	"IMStore/module/chat/api"
	"IMStore/module/chat/ingest"
	"IMStore/module/chat/ledger"
	"IMStore/module/chat/member"
	"IMStore/module/chat/message"
	"IMStore/module/replica"
	"IMStore/service/mgo"
	"IMStore/service/natsx"
	redisx "IMStore/service/storage/redis"
	"IMStore/tools/safe"

	"go.uber.org/zap/zapcore"
)

func main() {
	logger.Setup(zapcore.InfoLevel)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ===== 基础设施 =====
	config.ConfigAll(ctx)

	waitCtx, waitCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := mgo.WaitReady(waitCtx, mgo.Manager()); err != nil {
		waitCancel()
		logger.Errorf("mongo 未就绪: %v", err)
		os.Exit(1)
	}
	waitCancel()
	db := mgo.GetDB()

	if err := ledger.EnsureIndexes(ctx, db); err != nil {
		logger.Errorf("索引引导失败: %v", err)
		os.Exit(1)
	}

	// ===== 账本与存储 =====
	convLedger := ledger.New(db)
	members := member.New(db, member.NewMongoGroupSource(db))
	store := message.NewStore(db)

	// ===== 摄入 =====
	live := &ingest.LiveWorker{
		Ledger:     convLedger,
		Member:     members,
		Store:      store,
		StagingCap: int32(config.Global.LiveStagingCap),
		StallSleep: config.Global.LiveStallSleep,
	}
	importer := &ingest.Importer{
		Ledger:   convLedger,
		Member:   members,
		Store:    store,
		Boundary: config.Global.BackfillBoundary,
	}
	safe.Go("live-consumer", func() { ingest.StartLiveConsumer(ctx, live) })
	safe.Go("import-consumers", func() { ingest.StartImportConsumers(ctx, importer, config.Global.ImportWorkers) })

	// ===== CDC → 复制桥 =====
	ckpt := cdc.NewMongoCheckpoint(db, config.Global.NodeId)
	if err := ckpt.EnsureExists(ctx); err != nil {
		logger.Errorf("checkpoint 初始化失败: %v", err)
		os.Exit(1)
	}
	bridge := &replica.Bridge{
		Publish: natsx.Publish,
		Ceiling: config.Global.PayloadCeiling,
	}
	router := cdc.NewRouter(
		&cdc.MongoOpener{DB: db},
		ckpt,
		&cdc.MongoHeartbeat{DB: db, StoreID: config.Global.NodeId},
	)
	router.BatchLimit = config.Global.CdcBatchLimit
	router.Register(replica.NewMessageHandler(bridge))
	router.Register(replica.NewConversationHandler(bridge))
	router.Register(replica.NewMembershipHandler(bridge))
	safe.Go("cdc-router", func() { router.Start(ctx, config.Global.CdcInterval) })

	// ===== 分析库回放 =====
	safe.Go("replica-consumers", func() { replica.StartConsumers(ctx, config.Global.ReplicaWorkers) })

	// ===== 运维面 =====
	admin := &adminhttp.Server{
		Ckpt: ckpt,
		Live: live,
		Chat: &api.Handlers{Ledger: convLedger, Member: members, Store: store},
	}
	safe.Go("admin-http", func() { admin.Run(config.Global.Port) })

	logger.Infof("msg store 节点启动 node=%s port=%d", config.Global.NodeId, config.Global.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("收到退出信号，开始关停")
	cancel()
	if err := natsx.StopGlobal(); err != nil {
		logger.Warnf("nats 关停: %v", err)
	}
	if err := redisx.CloseRedis(); err != nil {
		logger.Warnf("redis 关停: %v", err)
	}
	logger.Infof("已退出")
}
