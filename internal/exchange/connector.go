package exchange

import (
	"go.uber.org/zap"

	"multitrader/internal/account"
	"multitrader/internal/config"
)

// Connector 为每个账户创建独立的交易所客户端。
type Connector struct {
	cfg    config.ExchangeConfig
	logger *zap.Logger
}

// NewConnector 创建客户端工厂。
func NewConnector(cfg config.ExchangeConfig, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{cfg: cfg, logger: logger}
}

// Dial 用账户凭证构造客户端。构造本身不发起网络调用,
// 凭证有效性在首个请求时才暴露。
func (f *Connector) Dial(acct account.Account) *Client {
	return NewClient(f.cfg, acct.Name, Credentials{
		APIKey:    acct.APIKey,
		APISecret: acct.APISecret,
		Testnet:   acct.Testnet,
	}, f.logger)
}
