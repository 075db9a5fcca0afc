package dispatch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"multitrader/internal/exchange"
	"multitrader/internal/order"
)

// runAction 顺次处理每个目标订单。客户端按账户复用,
// 条目之间互不影响。
func (e *Engine) runAction(ctx context.Context, req ActionRequest, accounts AccountSource, progress Progress) Summary {
	results := make(map[string]Result, len(req.Refs))
	clients := make(map[string]Exchange)
	emit := func(item, message string) {
		if progress != nil {
			progress(item, message)
		}
	}

	for i, ref := range req.Refs {
		emit(ref.OrderID, fmt.Sprintf("处理中 (%d/%d)", i+1, len(req.Refs)))

		client, ok := clients[ref.AccountName]
		if !ok {
			acct, found := accounts.Get(ref.AccountName)
			if !found {
				result := Result{
					Status:  StatusError,
					Message: fmt.Sprintf("账户不存在: %s", ref.AccountName),
					Account: ref.AccountName,
				}
				results[ref.OrderID] = result
				emit(ref.OrderID, result.Message)
				continue
			}
			client = e.dialer.Dial(acct)
			clients[ref.AccountName] = client
		}

		var result Result
		if req.Action == ActionCancel {
			result = e.cancelOne(ctx, client, ref)
		} else {
			result = e.modifyOne(ctx, client, ref, req.Overrides)
		}
		result.Account = ref.AccountName
		results[ref.OrderID] = result

		emit(ref.OrderID, result.Message)
	}

	return summarize(kindForAction(req.Action), results)
}

// cancelOne 撤销一笔挂单。订单已不存在按幂等无操作处理,
// 记为 Warning 并计入成功。
func (e *Engine) cancelOne(ctx context.Context, client Exchange, ref order.Ref) Result {
	err := client.CancelOrder(ctx, ref.Symbol, ref.OrderID)
	switch {
	case err == nil:
		return Result{Status: StatusSuccess, Message: "订单已撤销", OrderID: ref.OrderID}
	case errors.Is(err, exchange.ErrUnknownOrder):
		return Result{Status: StatusWarning, Message: "订单已不存在", OrderID: ref.OrderID}
	default:
		return Result{Status: StatusError, Message: fmt.Sprintf("撤销失败: %v", err), OrderID: ref.OrderID}
	}
}

// modifyOne 先尽力撤销原单,再以合并覆盖项后的参数提交新单。
// 两步之间没有原子性:撤销成功而创建失败时原单已不可恢复,
// 该窗口如实反映在条目结果里。
func (e *Engine) modifyOne(ctx context.Context, client Exchange, ref order.Ref, overrides order.ModifyOverrides) Result {
	cancelErr := client.CancelOrder(ctx, ref.Symbol, ref.OrderID)
	cancelled := cancelErr == nil || errors.Is(cancelErr, exchange.ErrUnknownOrder)

	replacement, err := buildReplacement(ref, overrides, e.tif)
	if err != nil {
		msg := fmt.Sprintf("改单参数非法: %v", err)
		if cancelled {
			msg += ";原单已撤销且未创建替代单"
			e.logger.Error("改单在撤销后失败,原单已丢失",
				zap.String("order_id", ref.OrderID),
				zap.String("symbol", ref.Symbol),
			)
		}
		return Result{Status: StatusError, Message: msg, OrderID: ref.OrderID}
	}

	placed, err := client.SubmitOrder(ctx, replacement)
	if err != nil {
		msg := fmt.Sprintf("改单失败: %v", err)
		if cancelled {
			msg += ";原单已撤销且未创建替代单"
			e.logger.Error("改单在撤销后失败,原单已丢失",
				zap.String("order_id", ref.OrderID),
				zap.String("symbol", ref.Symbol),
				zap.Error(err),
			)
		}
		return Result{Status: StatusError, Message: msg, OrderID: ref.OrderID}
	}

	return Result{
		Status:  StatusSuccess,
		Message: fmt.Sprintf("订单已替换: %s", placed.OrderID),
		OrderID: placed.OrderID,
	}
}

// buildReplacement 把原始引用与覆盖项合并成替代单,
// 并重新施加与订单类型相关的字段要求。
func buildReplacement(ref order.Ref, overrides order.ModifyOverrides, tif string) (exchange.OrderRequest, error) {
	req := exchange.OrderRequest{
		Symbol:    ref.Symbol,
		Side:      ref.Side,
		Type:      ref.Type,
		Quantity:  ref.OrigQty,
		Price:     ref.Price,
		StopPrice: ref.StopPrice,
	}

	if overrides.Quantity != nil {
		req.Quantity = *overrides.Quantity
	}
	if overrides.Price != nil {
		req.Price = *overrides.Price
	}
	if overrides.StopPrice != nil {
		req.StopPrice = *overrides.StopPrice
	}

	if !req.Quantity.IsPositive() {
		return exchange.OrderRequest{}, fmt.Errorf("%w: 数量必须为正", order.ErrValidation)
	}
	if req.Type.RequiresPrice() {
		if !req.Price.IsPositive() {
			return exchange.OrderRequest{}, fmt.Errorf("%w: %s 订单必须提供价格", order.ErrValidation, req.Type)
		}
		req.TimeInForce = tif
	}
	if req.Type.RequiresStopPrice() && !req.StopPrice.IsPositive() {
		// 原始引用缺触发价时退回限价,与原单快照字段保持一致。
		if req.Price.IsPositive() {
			req.StopPrice = req.Price
		} else {
			return exchange.OrderRequest{}, fmt.Errorf("%w: %s 订单必须提供触发价", order.ErrValidation, req.Type)
		}
	}

	return req, nil
}

func kindForAction(action Action) JobKind {
	if action == ActionModify {
		return KindModify
	}
	return KindCancel
}
