package dispatch

import (
	"context"

	"github.com/shopspring/decimal"

	"multitrader/internal/account"
	"multitrader/internal/exchange"
	"multitrader/internal/order"
)

// JobKind 区分批次种类。
type JobKind string

const (
	KindDispatch JobKind = "dispatch"
	KindCancel   JobKind = "cancel"
	KindModify   JobKind = "modify"
)

// State 是批次生命周期状态。没有"已取消":一旦运行,
// 即使前面的条目失败也会处理完所有目标。
type State int32

const (
	StatePending State = iota
	StateRunning
	StateCompleted
)

// ResultStatus 是单个条目的结局。
type ResultStatus string

const (
	// StatusSuccess 表示主订单即时成交(或动作成功)。
	StatusSuccess ResultStatus = "Success"
	// StatusPending 表示订单已创建但仍在挂单。
	StatusPending ResultStatus = "Pending"
	// StatusWarning 表示幂等场景下的无操作成功,如撤销已不存在的订单。
	StatusWarning ResultStatus = "Warning"
	// StatusError 表示该条目失败,批次继续处理后续条目。
	StatusError ResultStatus = "Error"
)

// Result 记录单个条目的结局与可读说明。
type Result struct {
	Status  ResultStatus `json:"status"`
	Message string       `json:"message"`
	OrderID string       `json:"order_id,omitempty"`
	Account string       `json:"account,omitempty"`
}

// Summary 是批次完成后的聚合结果。Pending 与 Warning 不计入
// 成功或失败计数(撤销批次例外,幂等撤销计入成功)。
type Summary struct {
	Total   int               `json:"total"`
	Success int               `json:"success"`
	Error   int               `json:"error"`
	Results map[string]Result `json:"results"`
}

// Progress 在每个条目处理前后被调用,条目按提交顺序串行处理。
type Progress func(item, message string)

// Action 是对既有挂单的操作种类。
type Action string

const (
	ActionCancel Action = "cancel"
	ActionModify Action = "modify"
)

// Exchange 是引擎消费的单账户交易所能力。
type Exchange interface {
	TestConnection(ctx context.Context) error
	FreeBalance(ctx context.Context, asset string) (decimal.Decimal, error)
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	ValidateOrder(ctx context.Context, req exchange.OrderRequest) error
	SubmitOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

// Dialer 为目标账户提供交易所客户端。
type Dialer interface {
	Dial(acct account.Account) Exchange
}

// AccountSource 按名字解析账户凭证,批次运行期间只读。
type AccountSource interface {
	Get(name string) (account.Account, bool)
}

// Recorder 在批次完成后持久化流水,失败由实现方自行消化。
type Recorder interface {
	RecordJob(ctx context.Context, kind JobKind, symbol string, summary Summary)
}

// ActionRequest 描述一个完整的订单操作批次。
type ActionRequest struct {
	Action    Action
	Refs      []order.Ref
	Overrides order.ModifyOverrides
}
