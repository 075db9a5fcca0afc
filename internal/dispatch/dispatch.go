package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"multitrader/internal/account"
	"multitrader/internal/exchange"
	"multitrader/internal/order"
	"multitrader/internal/sizing"
)

// runDispatch 顺次处理每个目标账户。单账户的任何失败只记入
// 该账户的结果,绝不中断批次。
func (e *Engine) runDispatch(ctx context.Context, intent order.Intent, targets []account.Account, progress Progress) Summary {
	results := make(map[string]Result, len(targets))
	emit := func(item, message string) {
		if progress != nil {
			progress(item, message)
		}
	}

	for i, acct := range targets {
		emit(acct.Name, fmt.Sprintf("处理中 (%d/%d)", i+1, len(targets)))

		result := e.dispatchOne(ctx, acct, intent)
		result.Account = acct.Name
		results[acct.Name] = result

		emit(acct.Name, result.Message)
	}

	return summarize(KindDispatch, results)
}

func (e *Engine) dispatchOne(ctx context.Context, acct account.Account, intent order.Intent) Result {
	client := e.dialer.Dial(acct)

	if err := client.TestConnection(ctx); err != nil {
		return Result{Status: StatusError, Message: fmt.Sprintf("连接失败: %v", err)}
	}

	qty, err := e.resolver.Resolve(ctx, client, intent)
	if err != nil {
		if errors.Is(err, sizing.ErrInsufficientBalance) {
			return Result{Status: StatusError, Message: fmt.Sprintf("余额不足: %v", err)}
		}
		return Result{Status: StatusError, Message: fmt.Sprintf("数量换算失败: %v", err)}
	}

	req := e.buildRequest(intent, qty)

	// 先走测试端点做非提交校验,被拒绝的账户直接跳过,不提交真实订单。
	if err := client.ValidateOrder(ctx, req); err != nil {
		return Result{Status: StatusError, Message: fmt.Sprintf("预校验被拒绝: %v", err)}
	}

	placed, err := client.SubmitOrder(ctx, req)
	if err != nil {
		return Result{Status: StatusError, Message: fmt.Sprintf("下单失败: %v", err)}
	}

	result := Result{OrderID: placed.OrderID}
	if placed.Filled() {
		result.Status = StatusSuccess
		result.Message = fmt.Sprintf("订单已成交: %s", placed.OrderID)
	} else {
		result.Status = StatusPending
		result.Message = fmt.Sprintf("订单已创建(挂单中): %s", placed.OrderID)
	}

	// 止盈止损腿独立提交。这里的失败只追加到说明,
	// 主订单的结局才是权威,不因附属腿降级。
	if notes := e.attachProtection(ctx, client, intent, qty); len(notes) > 0 {
		result.Message += " | " + strings.Join(notes, ", ")
	}

	return result
}

func (e *Engine) attachProtection(ctx context.Context, client Exchange, intent order.Intent, qty decimal.Decimal) []string {
	var notes []string

	if intent.TakeProfit.Enabled {
		tpReq := exchange.OrderRequest{
			Symbol:      intent.Symbol,
			Side:        intent.Side.Opposite(),
			Type:        order.TypeLimit,
			Quantity:    qty,
			Price:       intent.TakeProfit.Price,
			TimeInForce: e.tif,
		}
		if placed, err := client.SubmitOrder(ctx, tpReq); err != nil {
			notes = append(notes, fmt.Sprintf("止盈失败: %v", err))
			e.logger.Warn("止盈腿提交失败", zap.String("symbol", intent.Symbol), zap.Error(err))
		} else {
			notes = append(notes, fmt.Sprintf("止盈: %s", placed.OrderID))
		}
	}

	if intent.StopLoss.Enabled {
		slReq := exchange.OrderRequest{
			Symbol:      intent.Symbol,
			Side:        intent.Side.Opposite(),
			Type:        order.TypeStopLimit,
			Quantity:    qty,
			Price:       intent.StopLoss.Price,
			StopPrice:   intent.StopLoss.Price,
			TimeInForce: e.tif,
		}
		if placed, err := client.SubmitOrder(ctx, slReq); err != nil {
			notes = append(notes, fmt.Sprintf("止损失败: %v", err))
			e.logger.Warn("止损腿提交失败", zap.String("symbol", intent.Symbol), zap.Error(err))
		} else {
			notes = append(notes, fmt.Sprintf("止损: %s", placed.OrderID))
		}
	}

	return notes
}

func (e *Engine) buildRequest(intent order.Intent, qty decimal.Decimal) exchange.OrderRequest {
	req := exchange.OrderRequest{
		Symbol:   intent.Symbol,
		Side:     intent.Side,
		Type:     intent.Type,
		Quantity: qty,
	}
	if intent.Type.RequiresPrice() {
		req.Price = intent.Price
		req.TimeInForce = e.tif
	}
	if intent.Type.RequiresStopPrice() {
		req.StopPrice = intent.StopPrice
	}
	return req
}

// summarize 聚合条目结果。Pending 与 Warning 不计入任何计数,
// 只有撤销/改单批次的幂等 Warning 计入成功。
func summarize(kind JobKind, results map[string]Result) Summary {
	summary := Summary{
		Total:   len(results),
		Results: results,
	}
	for _, r := range results {
		switch r.Status {
		case StatusSuccess:
			summary.Success++
		case StatusWarning:
			if kind == KindCancel || kind == KindModify {
				summary.Success++
			}
		case StatusError:
			summary.Error++
		}
	}
	return summary
}
