package order

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func validMarketIntent() Intent {
	return Intent{
		Symbol:   "BTCUSDT",
		Side:     SideBuy,
		Type:     TypeMarket,
		Quantity: Fixed(decimal.RequireFromString("0.001")),
	}
}

func TestIntentValidate_AllowsMarketWithoutPrices(t *testing.T) {
	if err := validMarketIntent().Validate(); err != nil {
		t.Fatalf("valid market intent rejected: %v", err)
	}
}

func TestIntentValidate_TypeDependentFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Intent)
	}{
		{"limit without price", func(i *Intent) { i.Type = TypeLimit }},
		{"stop without stop price", func(i *Intent) { i.Type = TypeStop }},
		{"stop limit without price", func(i *Intent) {
			i.Type = TypeStopLimit
			i.StopPrice = decimal.NewFromInt(49000)
		}},
		{"stop limit without stop price", func(i *Intent) {
			i.Type = TypeStopLimit
			i.Price = decimal.NewFromInt(50000)
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			intent := validMarketIntent()
			tc.mutate(&intent)
			if err := intent.Validate(); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestIntentValidate_QuantitySpec(t *testing.T) {
	intent := validMarketIntent()
	intent.Quantity = Fixed(decimal.Zero)
	if err := intent.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("zero fixed amount accepted: %v", err)
	}

	intent.Quantity = PercentOfBalance(0)
	if err := intent.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("0%% accepted: %v", err)
	}

	intent.Quantity = PercentOfBalance(101)
	if err := intent.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("101%% accepted: %v", err)
	}

	intent.Quantity = PercentOfBalance(100)
	if err := intent.Validate(); err != nil {
		t.Fatalf("100%% rejected: %v", err)
	}
}

func TestIntentValidate_ProtectionLegs(t *testing.T) {
	intent := validMarketIntent()
	intent.TakeProfit = ProtectionLeg{Enabled: true}
	if err := intent.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("enabled take profit without price accepted: %v", err)
	}

	intent.TakeProfit = ProtectionLeg{Enabled: true, Price: decimal.NewFromInt(52000)}
	intent.StopLoss = ProtectionLeg{Enabled: true, Price: decimal.NewFromInt(45000)}
	if err := intent.Validate(); err != nil {
		t.Fatalf("valid protection legs rejected: %v", err)
	}
}

func TestSideOpposite(t *testing.T) {
	if SideBuy.Opposite() != SideSell || SideSell.Opposite() != SideBuy {
		t.Fatalf("Opposite is not an involution")
	}
}
