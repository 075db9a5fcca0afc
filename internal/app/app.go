package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"multitrader/internal/account"
	"multitrader/internal/config"
	"multitrader/internal/dispatch"
	"multitrader/internal/exchange"
	"multitrader/internal/journal"
	"multitrader/internal/order"
	"multitrader/internal/sizing"
	"multitrader/internal/store"
	"multitrader/internal/vault"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	vault     *vault.Store
	registry  *account.Registry
	journal   *journal.Service
	engine    *dispatch.Engine
	connector *exchange.Connector
}

// dialerAdapter 把客户端工厂窄化成引擎消费的接口。
type dialerAdapter struct {
	connector *exchange.Connector
}

func (d dialerAdapter) Dial(acct account.Account) dispatch.Exchange {
	return d.connector.Dial(acct)
}

// New 解锁保险库并完成全部装配。password 为空直接拒绝,
// 不会落到交互式询问。
func New(cfg *config.Config, logger *zap.Logger, sqliteStore *store.Store, password string) (*App, error) {
	vaultStore := vault.Open(cfg.Vault, logger)
	if err := vaultStore.Unlock(password); err != nil {
		return nil, fmt.Errorf("解锁保险库失败: %w", err)
	}

	registry, err := account.NewRegistry(vaultStore, logger)
	if err != nil {
		return nil, fmt.Errorf("加载账户注册表失败: %w", err)
	}

	journalSvc, err := journal.NewService(sqliteStore, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化流水服务失败: %w", err)
	}

	connector := exchange.NewConnector(cfg.Exchange, logger)
	resolver := sizing.NewResolver(cfg.Sizing, logger)
	engine := dispatch.NewEngine(dialerAdapter{connector: connector}, resolver, journalSvc, cfg.Sizing, logger)

	return &App{
		cfg:       cfg,
		logger:    logger,
		vault:     vaultStore,
		registry:  registry,
		journal:   journalSvc,
		engine:    engine,
		connector: connector,
	}, nil
}

// Registry 返回账户注册表。
func (a *App) Registry() *account.Registry {
	return a.registry
}

// Engine 返回批次引擎。
func (a *App) Engine() *dispatch.Engine {
	return a.engine
}

// Journal 返回批次流水服务。
func (a *App) Journal() *journal.Service {
	return a.journal
}

// Vault 返回凭证保险库。
func (a *App) Vault() *vault.Store {
	return a.vault
}

// Run 启动时对全部账户做一次连通性扫描,然后阻塞等待退出信号。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("exchange", a.cfg.Exchange.Name),
		zap.Int("accounts", len(a.registry.List())),
	)

	a.scanAccounts(ctx)

	<-ctx.Done()
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("系统异常退出: %w", err)
	}
	a.logger.Info("系统收到退出信号,正在停止")
	return nil
}

// scanAccounts 顺次检查每个账户的连通性与计价资产余额。
// 单个账户失败只记日志,不影响其余账户,也不阻止系统启动。
func (a *App) scanAccounts(ctx context.Context) {
	accounts := a.registry.List()
	quote := a.cfg.Sizing.QuoteSuffix

	for i, acct := range accounts {
		a.logger.Info("账户扫描",
			zap.String("account", acct.Name),
			zap.Int("index", i+1),
			zap.Int("total", len(accounts)),
		)

		client := a.connector.Dial(acct)
		if err := client.TestConnection(ctx); err != nil {
			a.logger.Warn("账户连接失败",
				zap.String("account", acct.Name),
				zap.Error(err),
			)
			continue
		}

		balance, err := client.FreeBalance(ctx, quote)
		if err != nil {
			a.logger.Warn("账户余额查询失败",
				zap.String("account", acct.Name),
				zap.Error(err),
			)
			continue
		}

		a.logger.Info("账户就绪",
			zap.String("account", acct.Name),
			zap.String("asset", quote),
			zap.String("free", balance.String()),
		)
	}
}

// OpenOrderSet 是单个账户的挂单快照。
type OpenOrderSet struct {
	Account string
	Orders  []order.Ref
}

// OpenOrders 汇总若干账户的全部挂单快照,供批量撤单/改单选择目标。
// names 为空时覆盖全部账户。单个账户失败跳过并记日志,返回能拿到的部分。
func (a *App) OpenOrders(ctx context.Context, names []string) ([]OpenOrderSet, error) {
	var accounts []account.Account
	if len(names) == 0 {
		accounts = a.registry.List()
	} else {
		resolved, err := a.registry.Resolve(names)
		if err != nil {
			return nil, err
		}
		accounts = resolved
	}

	sets := make([]OpenOrderSet, 0, len(accounts))
	for _, acct := range accounts {
		client := a.connector.Dial(acct)
		refs, err := client.ListOpenOrders(ctx)
		if err != nil {
			a.logger.Warn("查询挂单失败",
				zap.String("account", acct.Name),
				zap.Error(err),
			)
			continue
		}
		sets = append(sets, OpenOrderSet{Account: acct.Name, Orders: refs})
	}
	return sets, nil
}
