package scoring

import "github.com/shopspring/decimal"

const unlimitedText = "unlimited"

// Score 成员得分：有限的非负十进制数，或 Unlimited（视为正无穷）
// 零值等价于 Finite(0)
type Score struct {
	value     decimal.Decimal
	unlimited bool
}

func Unlimited() Score {
	return Score{unlimited: true}
}

func Finite(v decimal.Decimal) Score {
	return Score{value: v}
}

func (s Score) IsUnlimited() bool {
	return s.unlimited
}

// Value 有限得分的数值；Unlimited 时返回 0，调用方应先判断 IsUnlimited
func (s Score) Value() decimal.Decimal {
	if s.unlimited {
		return decimal.Zero
	}
	return s.value
}

// Cmp 返回 -1 / 0 / 1；Unlimited 大于任何有限值，两个 Unlimited 相等
func (s Score) Cmp(other Score) int {
	switch {
	case s.unlimited && other.unlimited:
		return 0
	case s.unlimited:
		return 1
	case other.unlimited:
		return -1
	}
	return s.value.Cmp(other.value)
}

func (s Score) Equal(other Score) bool {
	return s.Cmp(other) == 0
}

// String 审计日志中的展示形式
func (s Score) String() string {
	if s.unlimited {
		return unlimitedText
	}
	return s.value.String()
}
