package model

import (
	"time"
)

const (
	RoleStandard = "STANDARD"
	RoleOperator = "OPERATOR"
)

const (
	AccountStatusActive    = "ACTIVE"
	AccountStatusSuspended = "SUSPENDED"
)

// Account 用户账户
// 身份、凭证、角色、状态归会话目录所有；余额只允许账本写入
type Account struct {
	ID           string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Phone        string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"phone"`        // 登录标识，全局唯一
	DisplayName  string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"display_name"` // 昵称，全局唯一
	Email        string    `gorm:"type:varchar(128)" json:"email,omitempty"`                  // 联系方式
	SecretHash   string    `gorm:"type:varchar(128);not null" json:"-"`                       // bcrypt 哈希
	Balance      int64     `gorm:"not null;default:0" json:"balance"`                         // 可用余额（分）
	Role         string    `gorm:"type:varchar(16);not null;default:STANDARD" json:"role"`    // 角色
	Status       string    `gorm:"type:varchar(16);not null;default:ACTIVE" json:"status"`    // 状态
	ReferralCode string    `gorm:"type:varchar(32)" json:"referral_code,omitempty"`           // 推荐码
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}

func (a *Account) IsOperator() bool {
	return a.Role == RoleOperator
}

func (a *Account) IsSuspended() bool {
	return a.Status == AccountStatusSuspended
}
