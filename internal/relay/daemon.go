package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	xerrors "LLM-Oracle-Chain/internal/errors"
	"LLM-Oracle-Chain/internal/ledger"
	"LLM-Oracle-Chain/internal/observability/alerting"
	"LLM-Oracle-Chain/internal/registry"
	"LLM-Oracle-Chain/internal/storage"
	"LLM-Oracle-Chain/internal/web3"
	"LLM-Oracle-Chain/pkg/logger"
)

const alertTimeout = 5 * time.Second

// Dialer 为每个运行周期建立新的账本连接。
type Dialer interface {
	Dial(ctx context.Context) (web3.Client, error)
}

// DialFunc 让普通函数满足 Dialer 接口。
type DialFunc func(ctx context.Context) (web3.Client, error)

// Dial 调用函数本身。
func (f DialFunc) Dial(ctx context.Context) (web3.Client, error) { return f(ctx) }

// Daemon 是预言机的外层监督循环：订阅、处理、出错后整体重建。
type Daemon struct {
	dialer       Dialer
	settings     Settings
	newQueue     QueueFactory
	recorder     Recorder
	journal      storage.Journal
	alerts       alerting.Dispatcher
	logger       *slog.Logger
	restartDelay time.Duration
}

// Option 定义守护进程的可选配置。
type Option func(*Daemon)

// WithQueueFactory 指定每个周期使用的通知队列。
func WithQueueFactory(factory QueueFactory) Option {
	return func(d *Daemon) {
		if factory != nil {
			d.newQueue = factory
		}
	}
}

// WithRecorder 配置指标记录器。
func WithRecorder(recorder Recorder) Option {
	return func(d *Daemon) {
		if recorder != nil {
			d.recorder = recorder
		}
	}
}

// WithJournal 配置回写记录。
func WithJournal(journal storage.Journal) Option {
	return func(d *Daemon) {
		d.journal = journal
	}
}

// WithAlerts 配置周期失败时的告警分发。
func WithAlerts(alerts alerting.Dispatcher) Option {
	return func(d *Daemon) {
		d.alerts = alerts
	}
}

// WithLogger 指定日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(d *Daemon) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithRestartDelay 设置重启前的等待时间，默认立即重启。
func WithRestartDelay(delay time.Duration) Option {
	return func(d *Daemon) {
		if delay > 0 {
			d.restartDelay = delay
		}
	}
}

// MemoryQueueFactory 返回创建固定容量内存队列的工厂。
func MemoryQueueFactory(capacity int) QueueFactory {
	return func(context.Context) (Queue, error) {
		return NewMemoryQueue(capacity), nil
	}
}

// New 构造守护进程。
func New(dialer Dialer, settings Settings, opts ...Option) (*Daemon, error) {
	if dialer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置账本连接")
	}
	settings.applyDefaults()
	if err := settings.validate(); err != nil {
		return nil, err
	}
	d := &Daemon{
		dialer:   dialer,
		settings: settings,
		newQueue: MemoryQueueFactory(DefaultQueueCapacity),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if d.logger == nil {
		d.logger = logger.Named("relay")
	}
	return d, nil
}

// SubscriptionConfig 返回只匹配 Inference 账户的订阅过滤条件。
func SubscriptionConfig() *ledger.ProgramConfig {
	return &ledger.ProgramConfig{Filters: []ledger.Filter{{
		Memcmp: &ledger.Memcmp{Offset: 0, Bytes: registry.InferenceDiscriminator[:]},
	}}}
}

// Run 持续运行直到 ctx 取消。任何周期错误都只会触发重启，不会让进程退出。
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("预言机启动",
		slog.String("oracle", d.settings.Payer.PublicKey().String()),
		slog.String("program", d.settings.ProgramID.String()),
	)
	for restarts := 1; ; restarts++ {
		runID := uuid.NewString()
		err := d.runOnce(ctx, runID)
		if ctx.Err() != nil {
			d.logger.Info("预言机停止")
			return ctx.Err()
		}
		d.recorder.Restarted()
		if err == nil {
			err = errors.New("订阅流已结束")
		}
		d.logger.Error("运行周期出错，正在重启",
			slog.Any("error", err),
			slog.String("error_code", string(xerrors.CodeOf(err))),
			slog.String("run_id", runID),
		)
		d.alert(ctx, alerting.EventFromError(err, runID, restarts))
		if d.restartDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.restartDelay):
			}
		}
	}
}

// alert 发送告警，失败只记录日志。
func (d *Daemon) alert(ctx context.Context, event alerting.Event) {
	if d.alerts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, alertTimeout)
	defer cancel()
	if err := d.alerts.Notify(ctx, event); err != nil {
		d.logger.Warn("发送告警失败", slog.Any("error", err))
	}
}

// runOnce 完成一个周期：连接、订阅、生产与消费，直到出现错误。
func (d *Daemon) runOnce(ctx context.Context, runID string) error {
	log := d.logger.With(slog.String("run_id", runID))

	client, err := d.dialer.Dial(ctx)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeSubscriptionFailure, err, "连接账本节点失败")
	}
	defer client.Close()

	queue, err := d.newQueue(ctx)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "创建通知队列失败")
	}
	defer queue.Close()

	processor, err := NewProcessor(client, d.settings, d.recorder, d.journal, log)
	if err != nil {
		return err
	}

	sub, err := client.ProgramSubscribe(ctx, d.settings.ProgramID, SubscriptionConfig())
	if err != nil {
		return xerrors.Wrap(xerrors.CodeSubscriptionFailure, err, "订阅程序账户失败")
	}
	defer sub.Close()
	log.Info("已订阅推理请求")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case err, ok := <-sub.Err():
				if !ok || err == nil {
					return xerrors.New(xerrors.CodeSubscriptionFailure, "订阅已关闭")
				}
				return xerrors.Wrap(xerrors.CodeSubscriptionFailure, err, "订阅中断")
			case n := <-sub.Updates():
				if err := queue.Publish(gctx, n); err != nil {
					if gctx.Err() != nil {
						return nil
					}
					return xerrors.Wrap(xerrors.CodeQueueFailure, err, "投递通知失败")
				}
			}
		}
	})
	g.Go(func() error {
		return queue.Consume(gctx, processor.Handle)
	})
	return g.Wait()
}
