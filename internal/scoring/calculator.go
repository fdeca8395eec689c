package scoring

import (
	"saghat/internal/model"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 得分计算
// ============================================================================
//
//   score = ln(最近一次分配额) * ln(余额) * 缴费未还款期数
//           ------------------------------------------------
//           最近一期缴款额 * 还款笔数 * ln(历史分配总额) * 分配次数 * ln(申请额)
//
// 分母各因子按顺序检查，任一因子缺失或 <= 0 立即返回 Unlimited；
// 分子各因子 <= 0 时按 0 计，分子为 0 则得分为 0，不会变成 Unlimited。
//
// 【关键点】对数以 lnPrecision 位计算并以该精度参与乘积，只在最终除法时舍入到 Precision 位。
// 是否为正按舍入到 Precision 位后的值判断：金额本身是 8 位小数，
// 所以任何 > 1 的金额对数都为正（ln(1.00000001) -> 0.00000001），<= 1 的金额对数都不为正。
// ============================================================================

const (
	// Precision 对数和最终除法保留的小数位，与金额精度一致
	Precision   = 8
	lnPrecision = 16
)

// Compute 纯函数，只依赖传入的成员和历史快照
func Compute(member *model.Member, h *model.MemberHistory) Score {
	denominator, ok := computeDenominator(member, h)
	if !ok {
		return Unlimited()
	}

	numerator := lnOrZero(h.LastActiveAllocationAmount).
		Mul(lnOrZero(&member.Balance)).
		Mul(decimal.NewFromInt(h.UnrepaidPeriods()))
	if !numerator.IsPositive() {
		return Finite(decimal.Zero)
	}

	return Finite(numerator.DivRound(denominator, Precision))
}

// computeDenominator 返回 false 表示分母为 0（得分 Unlimited）
func computeDenominator(member *model.Member, h *model.MemberHistory) (decimal.Decimal, bool) {
	if h.LastPaymentAmount == nil || !h.LastPaymentAmount.IsPositive() {
		return decimal.Zero, false
	}
	product := *h.LastPaymentAmount

	if h.RepaymentCount <= 0 {
		return decimal.Zero, false
	}
	product = product.Mul(decimal.NewFromInt(h.RepaymentCount))

	lnTotal, ok := positiveLn(h.ActiveAllocationTotal)
	if !ok {
		return decimal.Zero, false
	}
	product = product.Mul(lnTotal)

	if h.ActiveAllocationCount <= 0 {
		return decimal.Zero, false
	}
	product = product.Mul(decimal.NewFromInt(h.ActiveAllocationCount))

	lnRequest, ok := positiveLn(member.LoanRequestAmount)
	if !ok {
		return decimal.Zero, false
	}
	product = product.Mul(lnRequest)

	if !product.IsPositive() {
		return decimal.Zero, false
	}
	return product, true
}

// positiveLn 仅当 d > 0 且 ln(d) 按 Precision 舍入后 > 0 时返回 true
// 返回值保留 lnPrecision 位，避免各因子的舍入误差在乘积中累积
func positiveLn(d decimal.Decimal) (decimal.Decimal, bool) {
	if !d.IsPositive() {
		return decimal.Zero, false
	}
	ln, err := d.Ln(lnPrecision)
	if err != nil {
		return decimal.Zero, false
	}
	if !ln.Round(Precision).IsPositive() {
		return decimal.Zero, false
	}
	return ln, true
}

func lnOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	ln, ok := positiveLn(*d)
	if !ok {
		return decimal.Zero
	}
	return ln
}
