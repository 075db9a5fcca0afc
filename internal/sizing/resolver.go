package sizing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"multitrader/internal/config"
	"multitrader/internal/order"
)

// ErrInsufficientBalance 表示相关可用余额不足以换算数量。
var ErrInsufficientBalance = errors.New("sizing: insufficient balance")

// MarketData 是换算所需的交易所能力子集,按账户取当前价与可用余额。
type MarketData interface {
	FreeBalance(ctx context.Context, asset string) (decimal.Decimal, error)
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Resolver 把固定或百分比数量换算成该账户上的具体下单数量。
type Resolver struct {
	quoteSuffix string
	logger      *zap.Logger
}

// NewResolver 创建换算器。
func NewResolver(cfg config.SizingConfig, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	suffix := cfg.QuoteSuffix
	if suffix == "" {
		suffix = "USDT"
	}
	return &Resolver{
		quoteSuffix: suffix,
		logger:      logger,
	}
}

// Resolve 换算下单数量。固定数量原样返回;百分比数量按方向取
// 计价资产或基础资产的可用余额,BUY 还需要当前价折算。
func (r *Resolver) Resolve(ctx context.Context, market MarketData, intent order.Intent) (decimal.Decimal, error) {
	if intent.Quantity.Kind == order.QuantityFixed {
		return intent.Quantity.Amount, nil
	}

	pct := decimal.NewFromInt(int64(intent.Quantity.Percent)).Div(decimal.NewFromInt(100))

	if intent.Side == order.SideBuy {
		quote, err := market.FreeBalance(ctx, r.QuoteAsset())
		if err != nil {
			return decimal.Zero, fmt.Errorf("sizing: 获取计价资产余额失败: %w", err)
		}
		if !quote.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: %s 可用余额为 %s", ErrInsufficientBalance, r.QuoteAsset(), quote)
		}

		price, err := market.CurrentPrice(ctx, intent.Symbol)
		if err != nil {
			return decimal.Zero, fmt.Errorf("sizing: 获取当前价失败: %w", err)
		}
		if !price.IsPositive() {
			return decimal.Zero, fmt.Errorf("sizing: 当前价非法: %s", price)
		}

		qty := quote.Mul(pct).Div(price)
		return qty.Round(Precision(intent.Symbol)), nil
	}

	base := r.BaseAsset(intent.Symbol)
	free, err := market.FreeBalance(ctx, base)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sizing: 获取基础资产余额失败: %w", err)
	}
	if !free.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s 可用余额为 %s", ErrInsufficientBalance, base, free)
	}

	return free.Mul(pct).Round(Precision(intent.Symbol)), nil
}

// QuoteAsset 返回配置的计价资产。
func (r *Resolver) QuoteAsset() string {
	return r.quoteSuffix
}

// BaseAsset 通过剥离计价后缀推断基础资产。
func (r *Resolver) BaseAsset(symbol string) string {
	return strings.TrimSuffix(symbol, r.quoteSuffix)
}

// Precision 是按符号的小数位启发式:BTC 计 6 位、ETH 计 5 位、其余 2 位。
// 这只是最低可用的取整约定,需要交易所精确步长的调用方应自行覆盖。
func Precision(symbol string) int32 {
	switch {
	case strings.Contains(symbol, "BTC"):
		return 6
	case strings.Contains(symbol, "ETH"):
		return 5
	default:
		return 2
	}
}
