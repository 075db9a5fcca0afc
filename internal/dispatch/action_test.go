package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"multitrader/internal/account"
	"multitrader/internal/exchange"
	"multitrader/internal/order"
)

type mapSource map[string]account.Account

func (m mapSource) Get(name string) (account.Account, bool) {
	acct, ok := m[name]
	return acct, ok
}

func limitRef(id, acctName string) order.Ref {
	return order.Ref{
		OrderID:     id,
		Symbol:      "BTCUSDT",
		Side:        order.SideBuy,
		Type:        order.TypeLimit,
		OrigQty:     decimal.RequireFromString("0.01"),
		Price:       decimal.NewFromInt(48000),
		AccountName: acctName,
	}
}

func TestAction_CancelIsIdempotent(t *testing.T) {
	client := &mockExchange{cancelFn: func(symbol, orderID string) error {
		if orderID == "gone" {
			return fmt.Errorf("cancel: %w", exchange.ErrUnknownOrder)
		}
		return nil
	}}
	dialer := &mockDialer{clients: map[string]*mockExchange{"alpha": client}}
	engine := newTestEngine(dialer)

	req := ActionRequest{
		Action: ActionCancel,
		Refs:   []order.Ref{limitRef("live", "alpha"), limitRef("gone", "alpha")},
	}
	job, err := engine.StartAction(context.Background(), req, mapSource{"alpha": testAccounts("alpha")[0]}, nil)
	if err != nil {
		t.Fatalf("StartAction failed: %v", err)
	}
	summary, err := job.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	if summary.Results["live"].Status != StatusSuccess {
		t.Errorf("live: expected Success, got %+v", summary.Results["live"])
	}
	if summary.Results["gone"].Status != StatusWarning {
		t.Errorf("gone: expected Warning, got %+v", summary.Results["gone"])
	}

	// The idempotent no-op counts toward success in cancel batches.
	if summary.Success != 2 || summary.Error != 0 {
		t.Fatalf("expected success=2 error=0, got success=%d error=%d", summary.Success, summary.Error)
	}
	if job.Kind() != KindCancel {
		t.Fatalf("expected cancel job, got %v", job.Kind())
	}
}

func TestAction_CancelReusesClientPerAccount(t *testing.T) {
	client := &mockExchange{}
	dialer := &mockDialer{clients: map[string]*mockExchange{"alpha": client}}
	engine := newTestEngine(dialer)

	req := ActionRequest{
		Action: ActionCancel,
		Refs:   []order.Ref{limitRef("a1", "alpha"), limitRef("a2", "alpha"), limitRef("a3", "alpha")},
	}
	job, _ := engine.StartAction(context.Background(), req, mapSource{"alpha": testAccounts("alpha")[0]}, nil)
	job.Wait(context.Background())

	if len(dialer.dialed) != 1 {
		t.Fatalf("expected one dial for three orders on the same account, got %d", len(dialer.dialed))
	}
}

func TestAction_UnknownAccountRecordedAsError(t *testing.T) {
	dialer := &mockDialer{clients: map[string]*mockExchange{"alpha": {}}}
	engine := newTestEngine(dialer)

	req := ActionRequest{
		Action: ActionCancel,
		Refs:   []order.Ref{limitRef("o1", "alpha"), limitRef("o2", "ghost")},
	}
	job, _ := engine.StartAction(context.Background(), req, mapSource{"alpha": testAccounts("alpha")[0]}, nil)
	summary, _ := job.Wait(context.Background())

	if summary.Results["o1"].Status != StatusSuccess {
		t.Errorf("o1: expected Success, got %+v", summary.Results["o1"])
	}
	if summary.Results["o2"].Status != StatusError {
		t.Errorf("o2: expected Error for missing account, got %+v", summary.Results["o2"])
	}
	if summary.Success != 1 || summary.Error != 1 {
		t.Fatalf("unexpected counters: success=%d error=%d", summary.Success, summary.Error)
	}
}

func TestAction_ModifyMergesOverrides(t *testing.T) {
	client := &mockExchange{submitFn: func(exchange.OrderRequest) (exchange.OrderResult, error) {
		return exchange.OrderResult{OrderID: "new-1", Status: "open"}, nil
	}}
	dialer := &mockDialer{clients: map[string]*mockExchange{"alpha": client}}
	engine := newTestEngine(dialer)

	newPrice := decimal.NewFromInt(47500)
	req := ActionRequest{
		Action:    ActionModify,
		Refs:      []order.Ref{limitRef("old-1", "alpha")},
		Overrides: order.ModifyOverrides{Price: &newPrice},
	}
	job, err := engine.StartAction(context.Background(), req, mapSource{"alpha": testAccounts("alpha")[0]}, nil)
	if err != nil {
		t.Fatalf("StartAction failed: %v", err)
	}
	summary, _ := job.Wait(context.Background())

	result := summary.Results["old-1"]
	if result.Status != StatusSuccess {
		t.Fatalf("expected Success, got %+v", result)
	}
	if result.OrderID != "new-1" {
		t.Errorf("result must carry the replacement order id, got %q", result.OrderID)
	}

	if len(client.submitted) != 1 {
		t.Fatalf("expected one replacement submission, got %d", len(client.submitted))
	}
	repl := client.submitted[0]
	if !repl.Price.Equal(newPrice) {
		t.Errorf("override price not applied: %s", repl.Price)
	}
	// Untouched fields come from the original reference.
	if !repl.Quantity.Equal(decimal.RequireFromString("0.01")) || repl.Side != order.SideBuy || repl.Symbol != "BTCUSDT" {
		t.Errorf("unexpected replacement request: %+v", repl)
	}
	if repl.TimeInForce != "GTC" {
		t.Errorf("limit replacement must carry time in force, got %q", repl.TimeInForce)
	}
	if job.Kind() != KindModify {
		t.Fatalf("expected modify job, got %v", job.Kind())
	}
}

func TestAction_ModifyReportsLostOrderWindow(t *testing.T) {
	client := &mockExchange{submitFn: func(exchange.OrderRequest) (exchange.OrderResult, error) {
		return exchange.OrderResult{}, errors.New("MIN_NOTIONAL")
	}}
	dialer := &mockDialer{clients: map[string]*mockExchange{"alpha": client}}
	engine := newTestEngine(dialer)

	newQty := decimal.RequireFromString("0.0001")
	req := ActionRequest{
		Action:    ActionModify,
		Refs:      []order.Ref{limitRef("old-1", "alpha")},
		Overrides: order.ModifyOverrides{Quantity: &newQty},
	}
	job, _ := engine.StartAction(context.Background(), req, mapSource{"alpha": testAccounts("alpha")[0]}, nil)
	summary, _ := job.Wait(context.Background())

	result := summary.Results["old-1"]
	if result.Status != StatusError {
		t.Fatalf("expected Error, got %+v", result)
	}
	// The cancel went through, so the lost-order window must be surfaced.
	if !strings.Contains(result.Message, "原单已撤销且未创建替代单") {
		t.Fatalf("expected lost-order note in message, got %q", result.Message)
	}
}

func TestAction_ModifyStopLimitFallsBackToPrice(t *testing.T) {
	client := &mockExchange{}
	dialer := &mockDialer{clients: map[string]*mockExchange{"alpha": client}}
	engine := newTestEngine(dialer)

	ref := limitRef("old-1", "alpha")
	ref.Type = order.TypeStopLimit
	ref.StopPrice = decimal.Decimal{} // snapshot without trigger price

	req := ActionRequest{Action: ActionModify, Refs: []order.Ref{ref}}
	job, _ := engine.StartAction(context.Background(), req, mapSource{"alpha": testAccounts("alpha")[0]}, nil)
	job.Wait(context.Background())

	if len(client.submitted) != 1 {
		t.Fatalf("expected one submission, got %d", len(client.submitted))
	}
	if !client.submitted[0].StopPrice.Equal(ref.Price) {
		t.Fatalf("stop price must fall back to the limit price, got %s", client.submitted[0].StopPrice)
	}
}

func TestAction_RejectsEmptyRefSet(t *testing.T) {
	dialer := &mockDialer{clients: map[string]*mockExchange{}}
	engine := newTestEngine(dialer)

	if _, err := engine.StartAction(context.Background(), ActionRequest{Action: ActionCancel}, mapSource{}, nil); err == nil {
		t.Fatalf("expected error for empty ref set")
	}
	if len(dialer.dialed) != 0 {
		t.Fatalf("no account may be dialed for a rejected action")
	}
}
