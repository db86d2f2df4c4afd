package model

import (
	"time"
)

// GameKind 游戏类型
type GameKind string

const (
	GameCoin  GameKind = "COIN"
	GameDice  GameKind = "DICE"
	GameWheel GameKind = "WHEEL"
)

const (
	CoinHead = "HEAD"
	CoinTail = "TAIL"
)

// BetOutcome 一局的结果，只被账本消费一次，不单独持久化
type BetOutcome struct {
	GameID    string    `json:"game_id"`
	Game      GameKind  `json:"game"`
	Stake     int64     `json:"stake"`
	Payout    int64     `json:"payout"` // 输了为 0
	Win       bool      `json:"win"`
	Label     string    `json:"label"` // 硬币面 / 骰子点数 / 转盘倍率
	Timestamp time.Time `json:"timestamp"`
}

// FeedEntry 战绩播报条目
type FeedEntry struct {
	GameID      string    `gorm:"primaryKey;type:varchar(64)" json:"game_id"`
	Position    int       `gorm:"not null" json:"-"` // 0 为最新
	Game        GameKind  `gorm:"type:varchar(16);not null" json:"game"`
	DisplayName string    `gorm:"type:varchar(64)" json:"display_name"`
	Stake       int64     `gorm:"not null" json:"stake"`
	Payout      int64     `gorm:"not null" json:"payout"`
	Win         bool      `gorm:"not null" json:"win"`
	Label       string    `gorm:"type:varchar(16)" json:"label"`
	Simulated   bool      `gorm:"not null;default:false" json:"simulated"`
	Timestamp   time.Time `gorm:"not null" json:"timestamp"`
}

func (FeedEntry) TableName() string {
	return "result_feed"
}
