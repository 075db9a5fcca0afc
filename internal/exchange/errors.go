package exchange

import (
	"errors"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

var (
	// ErrUnknownOrder 表示订单在交易所侧已不存在(已成交或已撤销)。
	ErrUnknownOrder = errors.New("exchange: unknown order")
	// ErrRejected 表示交易所明确拒绝了请求。
	ErrRejected = errors.New("exchange: order rejected")
	// ErrTransport 表示连接层故障,请求可能从未到达交易所。
	ErrTransport = errors.New("exchange: transport failure")
)

// IsRetryable 判断错误是否可重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return true
		default:
			return false
		}
	}

	return false
}

// classify 把 ccxt 错误归并到本包的哨兵错误族。
func classify(err error) error {
	if err == nil {
		return nil
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.OrderNotFoundErrType:
			return errors.Join(ErrUnknownOrder, err)
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.NullResponseErrType:
			return errors.Join(ErrTransport, err)
		case ccxt.InvalidOrderErrType,
			ccxt.InsufficientFundsErrType,
			ccxt.BadRequestErrType,
			ccxt.BadSymbolErrType,
			ccxt.AuthenticationErrorErrType:
			return errors.Join(ErrRejected, err)
		}
	}

	return err
}
