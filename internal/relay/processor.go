package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	xerrors "LLM-Oracle-Chain/internal/errors"
	"LLM-Oracle-Chain/internal/ledger"
	"LLM-Oracle-Chain/internal/llm"
	"LLM-Oracle-Chain/internal/registry"
	"LLM-Oracle-Chain/internal/storage"
	"LLM-Oracle-Chain/internal/web3"
	"LLM-Oracle-Chain/pkg/logger"
)

// 默认参数。
const (
	DefaultMaxModelAttempts  = 2
	DefaultMaxSubmitAttempts = 3
	DefaultComputeUnitLimit  = 300_000
	DefaultComputeUnitPrice  = 200_000
)

// Settings 描述处理通知所需的固定参数，在守护进程生命周期内不变。
type Settings struct {
	ProgramID         ledger.Pubkey
	Payer             *ledger.Keypair
	Model             llm.Client
	MaxModelAttempts  int
	MaxSubmitAttempts int
	ComputeUnitLimit  uint32
	ComputeUnitPrice  uint64
}

func (s *Settings) applyDefaults() {
	if s.ProgramID.IsZero() {
		s.ProgramID = registry.DefaultProgramID
	}
	if s.MaxModelAttempts <= 0 {
		s.MaxModelAttempts = DefaultMaxModelAttempts
	}
	if s.MaxSubmitAttempts <= 0 {
		s.MaxSubmitAttempts = DefaultMaxSubmitAttempts
	}
	if s.ComputeUnitLimit == 0 {
		s.ComputeUnitLimit = DefaultComputeUnitLimit
	}
	if s.ComputeUnitPrice == 0 {
		s.ComputeUnitPrice = DefaultComputeUnitPrice
	}
}

func (s Settings) validate() error {
	if s.Payer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置预言机签名密钥")
	}
	if s.Model == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置模型客户端")
	}
	return nil
}

// Processor 处理单条 Inference 账户通知，直到回写交易确认。
type Processor struct {
	client   web3.Client
	settings Settings
	recorder Recorder
	journal  storage.Journal
	logger   *slog.Logger
}

// NewProcessor 基于当前周期的账本客户端构造处理器。
func NewProcessor(client web3.Client, settings Settings, recorder Recorder, journal storage.Journal, log *slog.Logger) (*Processor, error) {
	if client == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置账本客户端")
	}
	settings.applyDefaults()
	if err := settings.validate(); err != nil {
		return nil, err
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if log == nil {
		log = logger.Named("relay")
	}
	return &Processor{client: client, settings: settings, recorder: recorder, journal: journal, logger: log}, nil
}

// Handle 满足 Handler 签名。可跳过的情况返回 nil；模型或提交重试耗尽时返回错误。
func (p *Processor) Handle(ctx context.Context, n ledger.ProgramNotification) error {
	start := time.Now()
	p.recorder.NotificationReceived()
	log := p.logger.With(slog.String("request", n.Pubkey.String()), slog.Uint64("slot", n.Slot))

	if n.Account == nil {
		p.skip(log, SkipUndecodable, nil)
		return nil
	}
	inference, err := registry.DecodeInference(n.Account.Data)
	if err != nil {
		p.skip(log, SkipUndecodable, err)
		return nil
	}
	if inference.IsProcessed {
		p.skip(log, SkipProcessed, nil)
		return nil
	}

	chat, err := p.loadChatContext(ctx, inference.ChatContext)
	if err != nil {
		p.skip(log, SkipChatContext, err)
		return nil
	}

	prompt := ComposePrompt(chat.Text, inference.Text)
	log.Info("收到新的推理请求", slog.String("user", inference.User.String()), slog.String("prompt", prompt))

	response, modelAttempts, err := retry(ctx, log, "模型调用", p.settings.MaxModelAttempts, func(ctx context.Context) (string, error) {
		out, err := p.settings.Model.Complete(ctx, prompt)
		p.recorder.ModelAttempt(err)
		return out, err
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeModelFailure, err, fmt.Sprintf("模型调用 %d 次后仍失败", modelAttempts),
			xerrors.WithMetadata("request", n.Pubkey.String()))
	}

	callback, err := registry.NewCallbackFromLLMInstruction(p.settings.ProgramID, p.settings.Payer.PublicKey(), n.Pubkey, inference, response)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "构造回写指令失败")
	}
	instructions := []ledger.Instruction{
		ledger.SetComputeUnitLimit(p.settings.ComputeUnitLimit),
		ledger.SetComputeUnitPrice(p.settings.ComputeUnitPrice),
		callback,
	}

	signature, submitAttempts, err := retry(ctx, log, "提交回写交易", p.settings.MaxSubmitAttempts, func(ctx context.Context) (ledger.Signature, error) {
		sig, err := p.submit(ctx, instructions)
		p.recorder.SubmitAttempt(err)
		return sig, err
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeSubmitFailure, err, fmt.Sprintf("回写交易提交 %d 次后仍失败", submitAttempts),
			xerrors.WithMetadata("request", n.Pubkey.String()))
	}

	elapsed := time.Since(start)
	p.recorder.Finalized(elapsed)
	logger.Audit().Info("推理请求已回写",
		slog.String("request", n.Pubkey.String()),
		slog.String("user", inference.User.String()),
		slog.String("callback_program", inference.CallbackProgramID.String()),
		slog.String("signature", signature.String()),
		slog.Int("model_attempts", modelAttempts),
		slog.Int("submit_attempts", submitAttempts),
		slog.Duration("elapsed", elapsed),
	)

	p.record(ctx, log, storage.Finalization{
		ID:              uuid.NewString(),
		Request:         n.Pubkey.String(),
		User:            inference.User.String(),
		ChatContext:     inference.ChatContext.String(),
		CallbackProgram: inference.CallbackProgramID.String(),
		Prompt:          prompt,
		Response:        response,
		Signature:       signature.String(),
		ModelAttempts:   modelAttempts,
		SubmitAttempts:  submitAttempts,
		CreatedAt:       time.Now().Unix(),
	})
	return nil
}

func (p *Processor) loadChatContext(ctx context.Context, key ledger.Pubkey) (*registry.ChatContext, error) {
	account, err := p.client.GetAccountInfo(ctx, key)
	if err != nil {
		return nil, err
	}
	return registry.DecodeChatContext(account.Data)
}

// submit 每次都获取新的 blockhash 重新签名。
func (p *Processor) submit(ctx context.Context, instructions []ledger.Instruction) (ledger.Signature, error) {
	blockhash, err := p.client.GetLatestBlockhash(ctx)
	if err != nil {
		return ledger.Signature{}, err
	}
	tx, err := ledger.NewSignedTransaction(instructions, p.settings.Payer, nil, blockhash)
	if err != nil {
		return ledger.Signature{}, err
	}
	return p.client.SendAndConfirmTransaction(ctx, tx)
}

func (p *Processor) skip(log *slog.Logger, reason string, err error) {
	p.recorder.NotificationSkipped(reason)
	attrs := []any{slog.String("reason", reason)}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}
	log.Debug("跳过通知", attrs...)
}

// record 写入回写记录。记录失败只告警，不影响已经确认的交易。
func (p *Processor) record(ctx context.Context, log *slog.Logger, entry storage.Finalization) {
	if p.journal == nil {
		return
	}
	if err := p.journal.Record(ctx, entry); err != nil && !errors.Is(err, storage.ErrDuplicate) {
		log.Warn("写入回写记录失败", slog.Any("error", err))
	}
}
