package model

import (
	"time"
)

// ============================================================================
// 交易类型常量
// ============================================================================

const (
	TransactionTypeDeposit         = "DEPOSIT"          // 充值申请
	TransactionTypeWithdraw        = "WITHDRAW"         // 提现申请
	TransactionTypeBetWin          = "BET_WIN"          // 投注赢（净额）
	TransactionTypeBetLoss         = "BET_LOSS"         // 投注输（本金）
	TransactionTypeAdminAdjustment = "ADMIN_ADJUSTMENT" // 运营调整余额
)

const (
	TransactionStatusPending   = "PENDING"
	TransactionStatusApproved  = "APPROVED"
	TransactionStatusRejected  = "REJECTED"
	TransactionStatusCompleted = "COMPLETED"
)

// ValidStatusTransitions 只有 PENDING 可以流转，其余都是终态
var ValidStatusTransitions = map[string][]string{
	TransactionStatusPending: {TransactionStatusApproved, TransactionStatusRejected},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// IsTerminalStatus 终态之后不允许任何流转
func IsTerminalStatus(status string) bool {
	switch status {
	case TransactionStatusApproved, TransactionStatusRejected, TransactionStatusCompleted:
		return true
	}
	return false
}

// IsWalletRequestType 充值/提现走人工审核
func IsWalletRequestType(t string) bool {
	return t == TransactionTypeDeposit || t == TransactionTypeWithdraw
}

// ============================================================================
// 账户流水实体
// ============================================================================

// Transaction 账户流水
//
// 1. 只追加，除审核状态外不修改，保证审计可追溯
// 2. Amount 始终为正数，方向由 Type 决定；运营调整看前后余额
// 3. 记录写入时的前后余额，便于校验余额一致性
type Transaction struct {
	ID            string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	AccountID     string     `gorm:"type:varchar(64);index;not null" json:"account_id"`
	Type          string     `gorm:"type:varchar(20);not null" json:"type"`
	Amount        int64      `gorm:"not null" json:"amount"`
	Method        string     `gorm:"type:varchar(32)" json:"method,omitempty"`       // 支付方式，如 Bkash / Nagad
	Number        string     `gorm:"type:varchar(32)" json:"number,omitempty"`       // 对方号码
	ExternalRef   string     `gorm:"type:varchar(64)" json:"external_ref,omitempty"` // 外部流水号
	Status        string     `gorm:"type:varchar(20);index;not null" json:"status"`
	BalanceBefore int64      `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64      `gorm:"not null" json:"balance_after"`
	Remark        string     `gorm:"type:varchar(256)" json:"remark,omitempty"`
	Seq           int64      `gorm:"index;not null" json:"-"` // 日志位置，越大越新
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
}

func (Transaction) TableName() string {
	return "account_transaction"
}
