package idgen

import (
	"fmt"
	"sync"
	"time"
)

// ============================================================================
// 雪花算法 ID 生成器
// ============================================================================
//
// 账户号、流水号、对局号都由这里生成：
//   1. 进程内全局唯一
//   2. 趋势递增，快照落库时便于索引
//
// 【结构】64位
//
//   0 - 41位时间戳 - 10位机器ID - 12位序列号
//
// ============================================================================

const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

// Snowflake 雪花算法ID生成器
type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

var (
	defaultGenerator *Snowflake
	initMu           sync.Mutex
)

// NewSnowflake 创建独立的生成器
func NewSnowflake(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("workerID 必须在 0-%d 之间", maxWorkerID)
	}
	return &Snowflake{workerID: workerID}, nil
}

// Init 初始化默认ID生成器，只有第一次调用生效
func Init(workerID int64) error {
	initMu.Lock()
	defer initMu.Unlock()

	if defaultGenerator != nil {
		return nil
	}
	g, err := NewSnowflake(workerID)
	if err != nil {
		return err
	}
	defaultGenerator = g
	return nil
}

// NextID 生成下一个ID
func NextID() int64 {
	initMu.Lock()
	g := defaultGenerator
	if g == nil {
		g = &Snowflake{workerID: 1}
		defaultGenerator = g
	}
	initMu.Unlock()
	return g.Generate()
}

// Generate 生成ID
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// 序列号用完，等待下一毫秒
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

// 号码格式：前缀 + 年月日时分秒 + 雪花ID（十进制）
// 雪花ID整体保留，避免同一秒内截断后撞号
func generate(prefix string) string {
	id := NextID()
	return fmt.Sprintf("%s%s%d", prefix, time.Now().Format("20060102150405"), id)
}

// GenerateAccountID 生成账户号
func GenerateAccountID() string {
	return generate("ACC")
}

// GenerateTransactionNo 生成流水号
func GenerateTransactionNo() string {
	return generate("TXN")
}

// GenerateGameNo 生成对局号
func GenerateGameNo() string {
	return generate("BET")
}

// GenerateTaskNo 生成运营待办编号
func GenerateTaskNo() string {
	return generate("TSK")
}
