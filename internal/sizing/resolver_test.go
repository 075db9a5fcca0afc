package sizing

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"multitrader/internal/config"
	"multitrader/internal/order"
)

type fakeMarket struct {
	balances map[string]decimal.Decimal
	price    decimal.Decimal
	priceErr error
}

func (f *fakeMarket) FreeBalance(_ context.Context, asset string) (decimal.Decimal, error) {
	return f.balances[asset], nil
}

func (f *fakeMarket) CurrentPrice(_ context.Context, _ string) (decimal.Decimal, error) {
	return f.price, f.priceErr
}

func newTestResolver() *Resolver {
	return NewResolver(config.SizingConfig{QuoteSuffix: "USDT", TimeInForce: "GTC"}, nil)
}

func TestResolve_FixedPassesThrough(t *testing.T) {
	r := newTestResolver()
	amount := decimal.RequireFromString("0.00123456789")

	got, err := r.Resolve(context.Background(), &fakeMarket{}, order.Intent{
		Symbol:   "BTCUSDT",
		Side:     order.SideBuy,
		Type:     order.TypeMarket,
		Quantity: order.Fixed(amount),
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !got.Equal(amount) {
		t.Fatalf("fixed amount changed: got %s want %s", got, amount)
	}
}

func TestResolve_PercentBuy(t *testing.T) {
	r := newTestResolver()
	market := &fakeMarket{
		balances: map[string]decimal.Decimal{"USDT": decimal.NewFromInt(1000)},
		price:    decimal.NewFromInt(50000),
	}

	got, err := r.Resolve(context.Background(), market, order.Intent{
		Symbol:   "BTCUSDT",
		Side:     order.SideBuy,
		Type:     order.TypeMarket,
		Quantity: order.PercentOfBalance(20),
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// 1000 * 20% / 50000 = 0.004
	want := decimal.RequireFromString("0.004")
	if !got.Equal(want) {
		t.Fatalf("unexpected quantity: got %s want %s", got, want)
	}

	// q*price within one rounding unit of balance*pct.
	notional := got.Mul(market.price)
	target := decimal.NewFromInt(200)
	unit := decimal.New(1, -Precision("BTCUSDT")).Mul(market.price)
	if notional.Sub(target).Abs().GreaterThan(unit) {
		t.Fatalf("notional %s too far from %s", notional, target)
	}
}

func TestResolve_PercentSell(t *testing.T) {
	r := newTestResolver()
	market := &fakeMarket{
		balances: map[string]decimal.Decimal{"ETH": decimal.RequireFromString("2.5")},
	}

	got, err := r.Resolve(context.Background(), market, order.Intent{
		Symbol:   "ETHUSDT",
		Side:     order.SideSell,
		Type:     order.TypeMarket,
		Quantity: order.PercentOfBalance(40),
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	want := decimal.RequireFromString("1")
	if !got.Equal(want) {
		t.Fatalf("unexpected quantity: got %s want %s", got, want)
	}
}

func TestResolve_InsufficientBalance(t *testing.T) {
	r := newTestResolver()

	_, err := r.Resolve(context.Background(), &fakeMarket{price: decimal.NewFromInt(50000)}, order.Intent{
		Symbol:   "BTCUSDT",
		Side:     order.SideBuy,
		Type:     order.TypeMarket,
		Quantity: order.PercentOfBalance(20),
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	_, err = r.Resolve(context.Background(), &fakeMarket{}, order.Intent{
		Symbol:   "ETHUSDT",
		Side:     order.SideSell,
		Type:     order.TypeMarket,
		Quantity: order.PercentOfBalance(20),
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance for sell, got %v", err)
	}
}

func TestPrecisionHeuristic(t *testing.T) {
	cases := map[string]int32{
		"BTCUSDT":  6,
		"ETHUSDT":  5,
		"DOGEUSDT": 2,
	}
	for symbol, want := range cases {
		if got := Precision(symbol); got != want {
			t.Errorf("Precision(%s) = %d, want %d", symbol, got, want)
		}
	}
}

func TestBaseAsset(t *testing.T) {
	r := newTestResolver()
	if got := r.BaseAsset("SOLUSDT"); got != "SOL" {
		t.Fatalf("BaseAsset = %s, want SOL", got)
	}
}
