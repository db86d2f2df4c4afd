package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Locker 按 key 互斥。Acquire 成功后必须调用 release，release 可重复调用
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// AccountLockKey 账户锁的 key，同一账户的余额读-判断-写在这把锁内完成
func AccountLockKey(accountID string) string {
	return fmt.Sprintf("wager:lock:account:%s", accountID)
}

// ============================================================================
// 进程内实现
// ============================================================================

type localEntry struct {
	ch   chan struct{}
	refs int
}

// LocalLocker 每个 key 一个容量为 1 的信号量，等待时响应 ctx 取消
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]*localEntry
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{entries: make(map[string]*localEntry)}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.unref(key, e)
		})
	}, nil
}

// unref 没有持有者和等待者时回收 entry
func (l *LocalLocker) unref(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// ============================================================================
// Redis 实现
// ============================================================================

type RedisLockerOptions struct {
	TTL           time.Duration
	RetryInterval time.Duration
	MaxRetries    int
}

// RedisLocker 基于 DistributedLock，每次加锁用新的 uuid 作为持有者标识
type RedisLocker struct {
	client *redis.Client
	opts   RedisLockerOptions
	logger *zap.Logger
}

func NewRedisLocker(client *redis.Client, opts RedisLockerOptions, logger *zap.Logger) *RedisLocker {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 100 * time.Millisecond
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 30
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{client: client, opts: opts, logger: logger}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	dl := NewDistributedLock(l.client, key, uuid.NewString(), l.opts.TTL)
	if err := dl.Lock(ctx, l.opts.RetryInterval, l.opts.MaxRetries); err != nil {
		return nil, fmt.Errorf("加锁失败 %s: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// 调用方的 ctx 可能已经取消，释放用独立的超时
			unlockCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := dl.Unlock(unlockCtx); err != nil {
				l.logger.Warn("[Lock] 释放分布式锁失败", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}
