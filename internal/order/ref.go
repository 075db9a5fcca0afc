package order

import "github.com/shopspring/decimal"

// Ref 标识某个账户上的一笔挂单,来自开放订单快照,不做持久化。
type Ref struct {
	OrderID     string
	Symbol      string
	Side        Side
	Type        Type
	OrigQty     decimal.Decimal
	Price       decimal.Decimal
	StopPrice   decimal.Decimal
	AccountName string
}

// ModifyOverrides 是改单时允许覆盖的字段,nil 表示沿用原值。
type ModifyOverrides struct {
	Price     *decimal.Decimal
	Quantity  *decimal.Decimal
	StopPrice *decimal.Decimal
}
