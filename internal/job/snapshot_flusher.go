package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wagerledger/internal/infrastructure/metrics"
	"wagerledger/internal/model"

	"go.uber.org/zap"
)

// SnapshotStore 快照落盘
type SnapshotStore interface {
	SaveAccounts(ctx context.Context, accounts []model.Account) error
	SaveTransactions(ctx context.Context, txns []model.Transaction) error
	SaveFeed(ctx context.Context, entries []model.FeedEntry) error
	SaveConfig(ctx context.Context, cfg model.PlatformConfig) error
	SaveSession(ctx context.Context, accountID string) error
	SaveTasks(ctx context.Context, tasks []model.Task) error
}

// SnapshotSources 读取各部分当前状态，服务创建后再绑定
type SnapshotSources struct {
	Accounts     func() []model.Account
	Transactions func() []model.Transaction
	Feed         func() []model.FeedEntry
	Config       func() model.PlatformConfig
	Session      func() string
	Tasks        func() []model.Task
}

// SnapshotFlusher 记录哪些部分变脏，定时批量写库
//
// MarkDirty 只改内存标记，不会阻塞业务操作；写库失败的部分保持脏标记，下一轮重试。
type SnapshotFlusher struct {
	store    SnapshotStore
	log      *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	interval time.Duration

	mu      sync.Mutex
	sources SnapshotSources
	dirty   map[model.SnapshotRecord]bool

	flushMu sync.Mutex // 同一时间只有一轮写库
}

func NewSnapshotFlusher(store SnapshotStore, interval time.Duration, log *zap.Logger) *SnapshotFlusher {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &SnapshotFlusher{
		store:    store,
		log:      log,
		stopCh:   make(chan struct{}),
		interval: interval,
		dirty:    make(map[model.SnapshotRecord]bool),
	}
}

func (f *SnapshotFlusher) Bind(sources SnapshotSources) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = sources
}

func (f *SnapshotFlusher) MarkDirty(records ...model.SnapshotRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range records {
		f.dirty[r] = true
	}
}

// Pending 当前仍未落盘的部分
func (f *SnapshotFlusher) Pending() []model.SnapshotRecord {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []model.SnapshotRecord
	for _, r := range model.AllSnapshotRecords {
		if f.dirty[r] {
			out = append(out, r)
		}
	}
	return out
}

func (f *SnapshotFlusher) Start(ctx context.Context) {
	f.log.Info("[SnapshotFlusher] 快照落盘任务启动", zap.Duration("interval", f.interval))

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.finalFlush()
			f.log.Info("[SnapshotFlusher] 收到停止信号，任务退出")
			return
		case <-f.stopCh:
			f.finalFlush()
			f.log.Info("[SnapshotFlusher] 任务停止")
			return
		case <-ticker.C:
			_ = f.Flush(ctx)
		}
	}
}

func (f *SnapshotFlusher) Stop() {
	f.stopOnce.Do(func() { close(f.stopCh) })
}

func (f *SnapshotFlusher) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.Flush(ctx); err != nil {
		f.log.Error("[SnapshotFlusher] 退出前落盘失败", zap.Strings("pending", recordNames(f.Pending())), zap.Error(err))
	}
}

// Flush 写出所有脏的部分，返回合并后的错误
func (f *SnapshotFlusher) Flush(ctx context.Context) error {
	f.flushMu.Lock()
	defer f.flushMu.Unlock()

	f.mu.Lock()
	sources := f.sources
	var records []model.SnapshotRecord
	for _, r := range model.AllSnapshotRecords {
		if f.dirty[r] {
			records = append(records, r)
			delete(f.dirty, r)
		}
	}
	f.mu.Unlock()

	var errs []error
	for _, r := range records {
		if err := f.save(ctx, sources, r); err != nil {
			metrics.PersistFailures.WithLabelValues(string(r)).Inc()
			f.log.Warn("[SnapshotFlusher] 落盘失败，稍后重试", zap.String("record", string(r)), zap.Error(err))
			f.MarkDirty(r)
			errs = append(errs, fmt.Errorf("%s: %w", r, err))
		}
	}
	return errors.Join(errs...)
}

var errSourceUnbound = errors.New("数据源未绑定")

func (f *SnapshotFlusher) save(ctx context.Context, src SnapshotSources, r model.SnapshotRecord) error {
	switch r {
	case model.RecordAccounts:
		if src.Accounts == nil {
			return errSourceUnbound
		}
		return f.store.SaveAccounts(ctx, src.Accounts())
	case model.RecordTransactions:
		if src.Transactions == nil {
			return errSourceUnbound
		}
		return f.store.SaveTransactions(ctx, src.Transactions())
	case model.RecordFeed:
		if src.Feed == nil {
			return errSourceUnbound
		}
		return f.store.SaveFeed(ctx, src.Feed())
	case model.RecordConfig:
		if src.Config == nil {
			return errSourceUnbound
		}
		return f.store.SaveConfig(ctx, src.Config())
	case model.RecordSession:
		if src.Session == nil {
			return errSourceUnbound
		}
		return f.store.SaveSession(ctx, src.Session())
	case model.RecordTasks:
		if src.Tasks == nil {
			return errSourceUnbound
		}
		return f.store.SaveTasks(ctx, src.Tasks())
	}
	return fmt.Errorf("未知的快照记录: %s", r)
}

func recordNames(records []model.SnapshotRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = string(r)
	}
	return out
}
