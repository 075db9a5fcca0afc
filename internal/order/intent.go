package order

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Side 表示下单方向。
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite 返回反向,用于止盈止损腿。
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Type 表示订单类型。
type Type string

const (
	TypeMarket    Type = "MARKET"
	TypeLimit     Type = "LIMIT"
	TypeStop      Type = "STOP"
	TypeStopLimit Type = "STOP_LIMIT"
)

// RequiresPrice 判断该类型是否必须携带限价。
func (t Type) RequiresPrice() bool {
	return t == TypeLimit || t == TypeStopLimit
}

// RequiresStopPrice 判断该类型是否必须携带触发价。
func (t Type) RequiresStopPrice() bool {
	return t == TypeStop || t == TypeStopLimit
}

// QuantityKind 区分数量的两种表达方式。
type QuantityKind int

const (
	// QuantityFixed 为固定数量。
	QuantityFixed QuantityKind = iota
	// QuantityPercent 为可用余额百分比。
	QuantityPercent
)

// QuantitySpec 是带标签的数量描述:固定数量或余额百分比。
type QuantitySpec struct {
	Kind    QuantityKind
	Amount  decimal.Decimal
	Percent int
}

// Fixed 构造固定数量。
func Fixed(amount decimal.Decimal) QuantitySpec {
	return QuantitySpec{Kind: QuantityFixed, Amount: amount}
}

// PercentOfBalance 构造余额百分比数量。
func PercentOfBalance(pct int) QuantitySpec {
	return QuantitySpec{Kind: QuantityPercent, Percent: pct}
}

// ProtectionLeg 描述一条可选的止盈或止损腿。
type ProtectionLeg struct {
	Enabled bool
	Price   decimal.Decimal
}

// Intent 是一次下单的完整模板,一经构造校验后对全部目标账户复用。
type Intent struct {
	Symbol     string
	Side       Side
	Type       Type
	Quantity   QuantitySpec
	Price      decimal.Decimal
	StopPrice  decimal.Decimal
	TakeProfit ProtectionLeg
	StopLoss   ProtectionLeg
}

// ErrValidation 标记所有构造期校验失败,整个批次在启动前被拒绝。
var ErrValidation = errors.New("order: validation failed")

// Validate 检查与账户无关的全部字段。价格类约束按订单类型收紧,
// 缺失在任何网络调用之前暴露。
func (i Intent) Validate() error {
	if i.Symbol == "" {
		return fmt.Errorf("%w: symbol 不能为空", ErrValidation)
	}

	switch i.Side {
	case SideBuy, SideSell:
	default:
		return fmt.Errorf("%w: 非法方向 %q", ErrValidation, i.Side)
	}

	switch i.Type {
	case TypeMarket, TypeLimit, TypeStop, TypeStopLimit:
	default:
		return fmt.Errorf("%w: 非法订单类型 %q", ErrValidation, i.Type)
	}

	switch i.Quantity.Kind {
	case QuantityFixed:
		if !i.Quantity.Amount.IsPositive() {
			return fmt.Errorf("%w: 固定数量必须为正", ErrValidation)
		}
	case QuantityPercent:
		if i.Quantity.Percent < 1 || i.Quantity.Percent > 100 {
			return fmt.Errorf("%w: 百分比必须位于[1,100]", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: 未知数量类型", ErrValidation)
	}

	if i.Type.RequiresPrice() && !i.Price.IsPositive() {
		return fmt.Errorf("%w: %s 订单必须提供价格", ErrValidation, i.Type)
	}
	if i.Type.RequiresStopPrice() && !i.StopPrice.IsPositive() {
		return fmt.Errorf("%w: %s 订单必须提供触发价", ErrValidation, i.Type)
	}

	if i.TakeProfit.Enabled && !i.TakeProfit.Price.IsPositive() {
		return fmt.Errorf("%w: 止盈价必须为正", ErrValidation)
	}
	if i.StopLoss.Enabled && !i.StopLoss.Price.IsPositive() {
		return fmt.Errorf("%w: 止损价必须为正", ErrValidation)
	}

	return nil
}
