// Package feed 战绩播报
//
// 固定容量的环形缓冲，只用于首页滚动展示。超出容量时丢弃最旧的记录，
// 读取顺序始终是从新到旧。
package feed

import (
	"sync"

	"wagerledger/internal/model"
)

// DefaultCapacity 播报保留的条数
const DefaultCapacity = 50

type Feed struct {
	mu      sync.RWMutex
	entries []model.FeedEntry
	next    int // 下一次写入的位置
	size    int
}

func New(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Feed{entries: make([]model.FeedEntry, capacity)}
}

// Push 写入一条，满了覆盖最旧的一条
func (f *Feed) Push(entry model.FeedEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries[f.next] = entry
	f.next = (f.next + 1) % len(f.entries)
	if f.size < len(f.entries) {
		f.size++
	}
}

// List 从新到旧返回副本
func (f *Feed) List() []model.FeedEntry {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]model.FeedEntry, 0, f.size)
	capacity := len(f.entries)
	for i := 1; i <= f.size; i++ {
		e := f.entries[(f.next-i+capacity)%capacity]
		e.Position = i - 1
		out = append(out, e)
	}
	return out
}

// Restore 用快照恢复，entries 按从新到旧排列，超出容量的旧记录丢弃
func (f *Feed) Restore(entries []model.FeedEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()

	capacity := len(f.entries)
	for i := range f.entries {
		f.entries[i] = model.FeedEntry{}
	}
	f.next = 0
	f.size = 0

	if len(entries) > capacity {
		entries = entries[:capacity]
	}
	// 从最旧的开始写，保证最新的落在最后
	for i := len(entries) - 1; i >= 0; i-- {
		f.entries[f.next] = entries[i]
		f.next = (f.next + 1) % capacity
		f.size++
	}
}

func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.size
}

func (f *Feed) Capacity() int {
	return len(f.entries)
}
