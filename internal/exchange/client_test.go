package exchange

import (
	"errors"
	"testing"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"github.com/shopspring/decimal"

	"multitrader/internal/config"
	"multitrader/internal/order"
)

func strPtr(s string) *string   { return &s }
func f64Ptr(f float64) *float64 { return &f }

func newOfflineClient(t *testing.T) *Client {
	t.Helper()
	return NewClient(config.ExchangeConfig{Name: "binance"}, "alpha", Credentials{
		APIKey:    "key",
		APISecret: "secret",
		Testnet:   true,
	}, nil)
}

func TestRefFromOrderMapsUnifiedFields(t *testing.T) {
	client := newOfflineClient(t)

	ref := client.refFromOrder(ccxt.Order{
		Id:     strPtr("12345"),
		Symbol: strPtr("BTC/USDT"),
		Side:   strPtr("buy"),
		Type:   strPtr("limit"),
		Amount: f64Ptr(0.01),
		Price:  f64Ptr(48000),
	})

	if ref.OrderID != "12345" {
		t.Errorf("order id = %q", ref.OrderID)
	}
	if ref.Symbol != "BTCUSDT" {
		t.Errorf("unified symbol must lose the slash, got %q", ref.Symbol)
	}
	if ref.Side != order.SideBuy || ref.Type != order.TypeLimit {
		t.Errorf("unexpected side/type: %s/%s", ref.Side, ref.Type)
	}
	if !ref.OrigQty.Equal(decimal.RequireFromString("0.01")) || !ref.Price.Equal(decimal.NewFromInt(48000)) {
		t.Errorf("unexpected quantities: qty=%s price=%s", ref.OrigQty, ref.Price)
	}
	if ref.AccountName != "alpha" {
		t.Errorf("account name = %q", ref.AccountName)
	}
}

func TestRefFromOrderInfersStopTypes(t *testing.T) {
	client := newOfflineClient(t)

	cases := []struct {
		name    string
		ccxtTyp *string
		trigger *float64
		want    order.Type
	}{
		{"plain market", strPtr("market"), nil, order.TypeMarket},
		{"plain limit", strPtr("limit"), nil, order.TypeLimit},
		{"market with trigger", strPtr("market"), f64Ptr(45000), order.TypeStop},
		{"limit with trigger", strPtr("limit"), f64Ptr(45000), order.TypeStopLimit},
		{"missing type with trigger", nil, f64Ptr(45000), order.TypeStopLimit},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ref := client.refFromOrder(ccxt.Order{
				Id:           strPtr("1"),
				Symbol:       strPtr("ETH/USDT"),
				Side:         strPtr("sell"),
				Type:         tc.ccxtTyp,
				TriggerPrice: tc.trigger,
			})
			if ref.Type != tc.want {
				t.Fatalf("inferred type = %s, want %s", ref.Type, tc.want)
			}
		})
	}
}

func TestClassifyPassesThroughPlainErrors(t *testing.T) {
	if classify(nil) != nil {
		t.Fatalf("nil must stay nil")
	}

	plain := errors.New("socket closed")
	got := classify(plain)
	if !errors.Is(got, plain) {
		t.Fatalf("plain error must pass through, got %v", got)
	}
	if errors.Is(got, ErrUnknownOrder) || errors.Is(got, ErrRejected) || errors.Is(got, ErrTransport) {
		t.Fatalf("plain error must not match any sentinel, got %v", got)
	}
}

func TestIsRetryableRejectsPlainErrors(t *testing.T) {
	if IsRetryable(nil) {
		t.Fatalf("nil is not retryable")
	}
	if IsRetryable(errors.New("bad request")) {
		t.Fatalf("non-ccxt errors are not retryable")
	}
}
