// Package money 金额计算工具
//
// 系统内所有金额都以最小货币单位（分）的 int64 表示，
// 只有在倍率计算和展示时才借助 decimal，避免浮点误差。
package money

import (
	"github.com/shopspring/decimal"
)

// MinorPerMajor 1 元 = 100 分
const MinorPerMajor = 100

// FromMajor 整元金额换算成分
func FromMajor(units int64) int64 {
	return units * MinorPerMajor
}

// MulRatio 金额乘以倍率，结果向零截断到分
func MulRatio(amount int64, ratio decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(ratio).Truncate(0).IntPart()
}

// MulInt 金额乘以整数倍率
func MulInt(amount, multiplier int64) int64 {
	return amount * multiplier
}

// Format 按元展示，保留两位小数
// 例如：12345 -> "123.45"
func Format(amount int64) string {
	return decimal.New(amount, -2).StringFixed(2)
}

// ClampNonNegative 余额下限保护
func ClampNonNegative(amount int64) int64 {
	if amount < 0 {
		return 0
	}
	return amount
}
