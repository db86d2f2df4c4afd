package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"wagerledger/internal/config"
	"wagerledger/internal/engine"
	"wagerledger/internal/handler"
	"wagerledger/internal/infrastructure/cache"
	"wagerledger/internal/infrastructure/database"
	"wagerledger/internal/infrastructure/lock"
	"wagerledger/internal/infrastructure/logger"
	"wagerledger/internal/infrastructure/metrics"
	"wagerledger/internal/infrastructure/mq"
	"wagerledger/internal/job"
	"wagerledger/internal/model"
	"wagerledger/internal/repository"
	"wagerledger/internal/service"
	"wagerledger/pkg/idgen"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	log := logger.Init()
	defer log.Sync()

	// 加载配置
	cfg, err := config.LoadConfig("config/config.yaml")
	if err != nil {
		log.Fatal("加载配置失败", zap.Error(err))
	}
	logger.SetLevel(cfg.Log.Level)
	metrics.Init()

	// 初始化 ID 生成器
	if err := idgen.Init(cfg.Business.WorkerID); err != nil {
		log.Fatal("初始化 ID 生成器失败", zap.Error(err))
	}

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 数据库：打不开就只在内存里跑
	db, err := database.Open(&cfg.Database, log)
	if err != nil {
		if errors.Is(err, database.ErrDisabled) {
			log.Warn("未启用持久化，状态仅保存在内存中")
		} else {
			log.Warn("数据库不可用，状态仅保存在内存中", zap.Error(err))
		}
		db = nil
	}

	var flusher *job.SnapshotFlusher
	var snapshots *repository.SnapshotRepository
	persister := service.Persister(service.NoopPersister{})
	if db != nil {
		snapshots = repository.NewSnapshotRepository(db)
		flusher = job.NewSnapshotFlusher(snapshots, time.Duration(cfg.Business.SnapshotFlushIntervalMs)*time.Millisecond, log)
		persister = flusher
	}

	locker, redisClose := newLocker(ctx, cfg, log)
	defer redisClose()

	// 初始化 Kafka
	producer, err := mq.NewProducer(&cfg.Kafka, log)
	if err != nil {
		log.Warn("Kafka 不可用，事件只写日志", zap.Error(err))
		producer = mq.NewLogProducer(log)
	}
	defer producer.Close()

	outbox := repository.NewOutboxRepository(cfg.Business.OutboxCapacity)

	seed := cfg.Business.RandomSeed
	if seed == 0 {
		seed = engine.NewSeed()
	}

	svc := service.NewServices(service.Infra{
		Locker:    locker,
		Events:    outbox,
		Persister: persister,
		Logger:    log,
		Topics:    cfg.Kafka.Topic,
	}, service.Options{
		BcryptCost:   cfg.Business.BcryptCost,
		FeedCapacity: cfg.Business.FeedCapacity,
		Engine:       engine.NewEngine(engine.NewLockedRand(seed)),
	})

	if snapshots != nil {
		snap, err := snapshots.Load(ctx)
		if err != nil {
			log.Warn("读取快照失败，从空状态启动", zap.Error(err))
		} else {
			svc.Restore(snap)
			log.Info("快照已恢复",
				zap.Int("accounts", len(snap.Accounts)),
				zap.Int("transactions", len(snap.Transactions)),
				zap.Int("feed", len(snap.Feed)),
			)
		}
	}

	op, err := svc.Sessions.EnsureOperator(ctx, service.OperatorSeed{
		ID:           cfg.Operator.ID,
		DisplayName:  cfg.Operator.DisplayName,
		Email:        cfg.Operator.Email,
		Phone:        cfg.Operator.Phone,
		Secret:       cfg.Operator.Secret,
		ReferralCode: cfg.Operator.ReferralCode,
	})
	if err != nil {
		log.Fatal("初始化运营账户失败", zap.Error(err))
	}
	log.Info("运营账户就绪", zap.String("account_id", op.ID))

	// 启动后台任务
	var wg sync.WaitGroup
	run := func(start func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start(ctx)
		}()
	}

	if flusher != nil {
		flusher.Bind(job.SnapshotSources{
			Accounts:     svc.Sessions.AllAccounts,
			Transactions: svc.Ledger.AllTransactions,
			Feed:         svc.Feed.List,
			Config:       svc.Settings.Get,
			Session:      svc.Sessions.CurrentAccountID,
			Tasks:        svc.Tasks.AllTasks,
		})
		run(flusher.Start)
	}

	outboxSender := job.NewOutboxSender(outbox, producer,
		time.Duration(cfg.Business.OutboxIntervalMs)*time.Millisecond, cfg.Business.MaxRetryCount, log)
	run(outboxSender.Start)

	simulator := job.NewFeedSimulator(svc.Feed, svc.Settings.Get,
		func() { persister.MarkDirty(model.RecordFeed) },
		engine.NewLockedRand(seed+1),
		time.Duration(cfg.Business.FeedSimulationIntervalSeconds)*time.Second, log)
	run(simulator.Start)

	// 设置路由
	router := handler.SetupRouter(svc, log)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Info("服务启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("服务启动失败", zap.Error(err))
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("正在关闭服务...")

	// 关闭 HTTP 服务（等待最多5秒），再停后台任务，保证最后一轮写库能看到全部请求
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("服务关闭失败", zap.Error(err))
	}

	cancel()
	wg.Wait()
	closeDB(db, log)

	log.Info("服务已关闭")
}

// newLocker 按配置选择账户锁，Redis 连不上时退回进程内锁
func newLocker(ctx context.Context, cfg *config.Config, log *zap.Logger) (lock.Locker, func()) {
	if cfg.Lock.Driver != "redis" {
		return lock.NewLocalLocker(), func() {}
	}

	client, err := cache.InitRedis(ctx, &cfg.Redis, log)
	if err != nil {
		log.Warn("Redis 不可用，使用进程内锁", zap.Error(err))
		return lock.NewLocalLocker(), func() {}
	}

	locker := lock.NewRedisLocker(client, lock.RedisLockerOptions{
		TTL:           time.Duration(cfg.Lock.TTLSeconds) * time.Second,
		RetryInterval: time.Duration(cfg.Lock.RetryIntervalMs) * time.Millisecond,
		MaxRetries:    cfg.Lock.MaxRetries,
	}, log)
	return locker, func() {
		if err := client.Close(); err != nil {
			log.Warn("关闭 Redis 失败", zap.Error(err))
		}
	}
}

func closeDB(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}
	if err := database.Close(db); err != nil {
		log.Warn("关闭数据库失败", zap.Error(err))
	}
}
