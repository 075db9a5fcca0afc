package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"multitrader/internal/account"
	"multitrader/internal/config"
	"multitrader/internal/order"
	"multitrader/internal/sizing"
)

// ErrBatchInFlight 表示上一个批次尚未报告完成,新批次在边界处被拒绝。
var ErrBatchInFlight = errors.New("dispatch: batch already in flight")

// Engine 串行执行批量下单与批量订单操作。同一时刻最多一个批次在飞,
// 批次内条目严格按提交顺序处理,单条失败不打断后续条目。
type Engine struct {
	dialer   Dialer
	resolver *sizing.Resolver
	recorder Recorder
	tif      string
	logger   *zap.Logger

	slot *semaphore.Weighted
}

// NewEngine 创建批次引擎。recorder 可以为 nil。
func NewEngine(dialer Dialer, resolver *sizing.Resolver, recorder Recorder, cfg config.SizingConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	tif := cfg.TimeInForce
	if tif == "" {
		tif = "GTC"
	}
	return &Engine{
		dialer:   dialer,
		resolver: resolver,
		recorder: recorder,
		tif:      tif,
		logger:   logger,
		slot:     semaphore.NewWeighted(1),
	}
}

// Job 是一次批次的句柄。启动后不可取消,要么跑完要么随进程终止。
type Job struct {
	kind    JobKind
	state   atomic.Int32
	done    chan struct{}
	summary Summary
}

func newJob(kind JobKind) *Job {
	return &Job{kind: kind, done: make(chan struct{})}
}

// Kind 返回批次种类。
func (j *Job) Kind() JobKind {
	return j.kind
}

// State 返回当前生命周期状态。
func (j *Job) State() State {
	return State(j.state.Load())
}

// Done 在批次完成时关闭。
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Summary 返回聚合结果,批次未完成时第二个返回值为 false。
func (j *Job) Summary() (Summary, bool) {
	select {
	case <-j.done:
		return j.summary, true
	default:
		return Summary{}, false
	}
}

// Wait 阻塞到批次完成或 ctx 结束。批次本身不会因 ctx 提前终止。
func (j *Job) Wait(ctx context.Context) (Summary, error) {
	select {
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	case <-j.done:
		return j.summary, nil
	}
}

func (j *Job) complete(summary Summary) {
	j.summary = summary
	j.state.Store(int32(StateCompleted))
	close(j.done)
}

// StartDispatch 校验模板后在独立 worker 上启动批量下单。
// 与账户无关的字段缺失在这里拒绝,任何网络调用之前。
func (e *Engine) StartDispatch(ctx context.Context, intent order.Intent, targets []account.Account, progress Progress) (*Job, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: 目标账户为空", order.ErrValidation)
	}

	if !e.slot.TryAcquire(1) {
		return nil, ErrBatchInFlight
	}

	job := newJob(KindDispatch)
	job.state.Store(int32(StateRunning))

	e.logger.Info("批量下单批次启动",
		zap.String("symbol", intent.Symbol),
		zap.String("side", string(intent.Side)),
		zap.String("type", string(intent.Type)),
		zap.Int("targets", len(targets)),
	)

	go func() {
		defer e.slot.Release(1)
		summary := e.runDispatch(ctx, intent, targets, progress)
		if e.recorder != nil {
			e.recorder.RecordJob(ctx, KindDispatch, intent.Symbol, summary)
		}
		e.logger.Info("批量下单批次完成",
			zap.Int("total", summary.Total),
			zap.Int("success", summary.Success),
			zap.Int("error", summary.Error),
		)
		job.complete(summary)
	}()

	return job, nil
}

// StartAction 在独立 worker 上启动批量撤单或改单。
func (e *Engine) StartAction(ctx context.Context, req ActionRequest, accounts AccountSource, progress Progress) (*Job, error) {
	switch req.Action {
	case ActionCancel, ActionModify:
	default:
		return nil, fmt.Errorf("%w: 非法操作 %q", order.ErrValidation, req.Action)
	}
	if len(req.Refs) == 0 {
		return nil, fmt.Errorf("%w: 目标订单为空", order.ErrValidation)
	}

	if !e.slot.TryAcquire(1) {
		return nil, ErrBatchInFlight
	}

	kind := KindCancel
	if req.Action == ActionModify {
		kind = KindModify
	}

	job := newJob(kind)
	job.state.Store(int32(StateRunning))

	e.logger.Info("订单操作批次启动",
		zap.String("action", string(req.Action)),
		zap.Int("targets", len(req.Refs)),
	)

	go func() {
		defer e.slot.Release(1)
		summary := e.runAction(ctx, req, accounts, progress)
		if e.recorder != nil {
			e.recorder.RecordJob(ctx, kind, "", summary)
		}
		e.logger.Info("订单操作批次完成",
			zap.Int("total", summary.Total),
			zap.Int("success", summary.Success),
			zap.Int("error", summary.Error),
		)
		job.complete(summary)
	}()

	return job, nil
}
