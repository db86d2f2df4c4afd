package model

import "wagerledger/pkg/money"

// MinBetFloor 最低下注的下限；硬币 1.9 倍赔付下，下注 2 分起才有正的净赢额
const MinBetFloor int64 = 2

// PlatformConfig 运营配置，全局唯一
type PlatformConfig struct {
	BiasPercentage        int    `json:"bias_percentage"` // 0-100，玩家获胜分支的概率
	MinDeposit            int64  `json:"min_deposit"`
	MinWithdraw           int64  `json:"min_withdraw"`
	MinBet                int64  `json:"min_bet"`
	PaymentContact        string `json:"payment_contact"` // 收款号码
	NoticeText            string `json:"notice_text"`
	FeedSimulationEnabled bool   `json:"feed_simulation_enabled"`
}

// DefaultPlatformConfig 默认配置，快照里缺失的字段以这里为准
func DefaultPlatformConfig() PlatformConfig {
	return PlatformConfig{
		BiasPercentage:        45,
		MinDeposit:            money.FromMajor(500),
		MinWithdraw:           money.FromMajor(1000),
		MinBet:                money.FromMajor(10),
		PaymentContact:        "01700000000",
		NoticeText:            "Welcome! 50% bonus on your first deposit via Bkash/Nagad.",
		FeedSimulationEnabled: true,
	}
}

// SettingsPatch 部分更新，nil 字段保持原值
type SettingsPatch struct {
	BiasPercentage        *int    `json:"bias_percentage"`
	MinDeposit            *int64  `json:"min_deposit"`
	MinWithdraw           *int64  `json:"min_withdraw"`
	MinBet                *int64  `json:"min_bet"`
	PaymentContact        *string `json:"payment_contact"`
	NoticeText            *string `json:"notice_text"`
	FeedSimulationEnabled *bool   `json:"feed_simulation_enabled"`
}

// Apply 返回合并后的新配置
func (p SettingsPatch) Apply(cfg PlatformConfig) PlatformConfig {
	if p.BiasPercentage != nil {
		cfg.BiasPercentage = *p.BiasPercentage
	}
	if p.MinDeposit != nil {
		cfg.MinDeposit = *p.MinDeposit
	}
	if p.MinWithdraw != nil {
		cfg.MinWithdraw = *p.MinWithdraw
	}
	if p.MinBet != nil {
		cfg.MinBet = *p.MinBet
	}
	if p.PaymentContact != nil {
		cfg.PaymentContact = *p.PaymentContact
	}
	if p.NoticeText != nil {
		cfg.NoticeText = *p.NoticeText
	}
	if p.FeedSimulationEnabled != nil {
		cfg.FeedSimulationEnabled = *p.FeedSimulationEnabled
	}
	return cfg
}
