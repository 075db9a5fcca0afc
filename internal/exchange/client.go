package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"multitrader/internal/config"
	"multitrader/internal/order"
)

// Client 用某个账户的凭证与 Binance 现货交互,实现重试机制。
// 所有调用都可能缓慢或失败,调用方需自行决定失败语义。
type Client struct {
	accountName string
	cfg         config.ExchangeConfig
	logger      *zap.Logger
	exchange    *ccxt.Binance
}

// NewClient 构造 Binance 现货客户端。
func NewClient(cfg config.ExchangeConfig, accountName string, creds Credentials, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "spot",
		},
	}
	if creds.APIKey != "" {
		userConfig["apiKey"] = creds.APIKey
	}
	if creds.APISecret != "" {
		userConfig["secret"] = creds.APISecret
	}

	ex := ccxt.NewBinance(userConfig)
	if creds.Testnet {
		ex.SetSandboxMode(true)
	}

	return &Client{
		accountName: accountName,
		cfg:         cfg,
		logger:      logger.With(zap.String("account", accountName)),
		exchange:    ex,
	}
}

// AccountName 返回该客户端绑定的账户名。
func (c *Client) AccountName() string {
	return c.accountName
}

// TestConnection 通过拉取账户余额验证凭证与连通性。
func (c *Client) TestConnection(ctx context.Context) error {
	err := c.callWithRetry(ctx, "fetch_balance", func() error {
		_, err := c.exchange.FetchBalance()
		return err
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

// FreeBalance 返回某资产的可用余额。
func (c *Client) FreeBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	var balances ccxt.Balances
	err := c.callWithRetry(ctx, "fetch_balance", func() error {
		result, err := c.exchange.FetchBalance()
		if err != nil {
			return err
		}
		balances = result
		return nil
	})
	if err != nil {
		return decimal.Zero, classify(err)
	}

	if balances.Free != nil {
		if free, ok := balances.Free[asset]; ok && free != nil {
			return decimal.NewFromFloat(*free), nil
		}
	}
	return decimal.Zero, nil
}

// CurrentPrice 返回交易对的最新成交价。
func (c *Client) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var ticker ccxt.Ticker
	err := c.callWithRetry(ctx, "fetch_ticker", func() error {
		result, err := c.exchange.FetchTicker(symbol)
		if err != nil {
			return err
		}
		ticker = result
		return nil
	})
	if err != nil {
		return decimal.Zero, classify(err)
	}

	if ticker.Last == nil {
		return decimal.Zero, fmt.Errorf("exchange: %s 无最新价", symbol)
	}
	return decimal.NewFromFloat(*ticker.Last), nil
}

// ValidateOrder 走 Binance 测试下单端点做非提交校验,不产生真实订单。
func (c *Client) ValidateOrder(ctx context.Context, req OrderRequest) error {
	ccxtType, side, amount, opts := c.buildOrderArgs(req, true)
	err := c.callWithRetry(ctx, "create_test_order", func() error {
		_, err := c.exchange.CreateOrder(req.Symbol, ccxtType, side, amount, opts...)
		return err
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

// SubmitOrder 提交真实订单。
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	ccxtType, side, amount, opts := c.buildOrderArgs(req, false)

	var placed ccxt.Order
	err := c.callWithRetry(ctx, "create_order", func() error {
		result, err := c.exchange.CreateOrder(req.Symbol, ccxtType, side, amount, opts...)
		if err != nil {
			return err
		}
		placed = result
		return nil
	})
	if err != nil {
		return OrderResult{}, classify(err)
	}

	result := OrderResult{}
	if placed.Id != nil {
		result.OrderID = *placed.Id
	}
	if placed.Status != nil {
		result.Status = *placed.Status
	}
	return result, nil
}

// CancelOrder 撤销挂单。订单已不存在时返回 ErrUnknownOrder。
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	err := c.callWithRetry(ctx, "cancel_order", func() error {
		_, err := c.exchange.CancelOrder(orderID, ccxt.WithCancelOrderSymbol(symbol))
		return err
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

// ListOpenOrders 返回该账户全部挂单的引用快照。
func (c *Client) ListOpenOrders(ctx context.Context) ([]order.Ref, error) {
	var raw []ccxt.Order
	err := c.callWithRetry(ctx, "fetch_open_orders", func() error {
		result, err := c.exchange.FetchOpenOrders()
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}

	refs := make([]order.Ref, 0, len(raw))
	for _, o := range raw {
		refs = append(refs, c.refFromOrder(o))
	}
	return refs, nil
}

func (c *Client) refFromOrder(o ccxt.Order) order.Ref {
	ref := order.Ref{AccountName: c.accountName}
	if o.Id != nil {
		ref.OrderID = *o.Id
	}
	if o.Symbol != nil {
		// ccxt 统一符号形如 BTC/USDT,引用保留交易所原生形态。
		ref.Symbol = strings.ReplaceAll(*o.Symbol, "/", "")
	}
	if o.Side != nil {
		ref.Side = order.Side(strings.ToUpper(*o.Side))
	}
	if o.Amount != nil {
		ref.OrigQty = decimal.NewFromFloat(*o.Amount)
	}
	if o.Price != nil {
		ref.Price = decimal.NewFromFloat(*o.Price)
	}
	if o.TriggerPrice != nil {
		ref.StopPrice = decimal.NewFromFloat(*o.TriggerPrice)
	}

	switch {
	case o.Type != nil && strings.EqualFold(*o.Type, "market") && ref.StopPrice.IsPositive():
		ref.Type = order.TypeStop
	case o.Type != nil && strings.EqualFold(*o.Type, "market"):
		ref.Type = order.TypeMarket
	case ref.StopPrice.IsPositive():
		ref.Type = order.TypeStopLimit
	default:
		ref.Type = order.TypeLimit
	}
	return ref
}

// buildOrderArgs 把类型化请求翻译为 ccxt 参数:STOP 族通过 stopPrice
// 参数表达,限价族携带 timeInForce;test=true 时命中测试端点。
func (c *Client) buildOrderArgs(req OrderRequest, test bool) (string, string, float64, []ccxt.CreateOrderOptions) {
	params := map[string]interface{}{}

	ccxtType := "market"
	switch req.Type {
	case order.TypeLimit, order.TypeStopLimit:
		ccxtType = "limit"
	}

	if req.Type.RequiresStopPrice() {
		params["stopPrice"] = req.StopPrice.InexactFloat64()
	}
	if req.Type.RequiresPrice() && req.TimeInForce != "" {
		params["timeInForce"] = strings.ToUpper(req.TimeInForce)
	}
	if test {
		params["test"] = true
	}

	opts := []ccxt.CreateOrderOptions{}
	if req.Type.RequiresPrice() {
		opts = append(opts, ccxt.WithCreateOrderPrice(req.Price.InexactFloat64()))
	}
	if len(params) > 0 {
		opts = append(opts, ccxt.WithCreateOrderParams(params))
	}

	return ccxtType, strings.ToLower(string(req.Side)), req.Quantity.InexactFloat64(), opts
}

func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := c.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	maxAttempts := c.cfg.Retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !IsRetryable(err) || attempt >= maxAttempts {
			c.logger.Warn("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(err),
			)
			return err
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		c.logger.Warn("交易所调用失败,等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
