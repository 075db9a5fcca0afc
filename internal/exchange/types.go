package exchange

import (
	"github.com/shopspring/decimal"

	"multitrader/internal/order"
)

// Credentials 是连接单个账户所需的全部凭证。
type Credentials struct {
	APIKey    string
	APISecret string
	Testnet   bool
}

// OrderRequest 描述一笔已解析完数量的具体委托。
type OrderRequest struct {
	Symbol      string
	Side        order.Side
	Type        order.Type
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	StopPrice   decimal.Decimal
	TimeInForce string
}

// OrderResult 是提交订单后的回执。
type OrderResult struct {
	OrderID string
	Status  string
}

// Filled 判断订单是否已即时成交(ccxt 统一状态 closed)。
func (r OrderResult) Filled() bool {
	return r.Status == "closed"
}
