package model

import (
	"time"
)

// SnapshotRecord 快照中可独立持久化的单元
type SnapshotRecord string

const (
	RecordAccounts     SnapshotRecord = "accounts"
	RecordTransactions SnapshotRecord = "transactions"
	RecordFeed         SnapshotRecord = "feed"
	RecordConfig       SnapshotRecord = "config"
	RecordSession      SnapshotRecord = "session"
	RecordTasks        SnapshotRecord = "tasks"
)

// AllSnapshotRecords 按刷盘顺序排列
var AllSnapshotRecords = []SnapshotRecord{
	RecordAccounts,
	RecordTransactions,
	RecordFeed,
	RecordConfig,
	RecordSession,
	RecordTasks,
}

// 单例记录在 snapshot_record 表中的名字
const (
	SnapshotKeyPlatformConfig = "platform_config"
	SnapshotKeyCurrentSession = "current_session"
)

// SnapshotRow 单例记录以 JSON 文档保存，新增字段对旧快照向后兼容
type SnapshotRow struct {
	Name      string    `gorm:"primaryKey;type:varchar(64)"`
	Payload   string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (SnapshotRow) TableName() string {
	return "snapshot_record"
}

// Snapshot 进程启动时加载的全部状态
type Snapshot struct {
	Accounts         []Account
	Transactions     []Transaction // 按 Seq 从新到旧
	Feed             []FeedEntry   // 从新到旧
	Config           PlatformConfig
	SessionAccountID string // 未登录时为空
	Tasks            []Task
}
