package registry

import (
	"log/slog"

	"LLM-Oracle-Chain/internal/ledger"
	"LLM-Oracle-Chain/pkg/logger"
)

// 默认部署参数。
var (
	DefaultProgramID         = ledger.MustParsePubkey("DVc1wcKi3tnj8oHG5nHZ1xYC3JmtBmrZ3WmBm3K3qrLm")
	DefaultAdmin             = ledger.MustParsePubkey("grvFMybwWoinrAp39feYxkq3JJQ7NY5oC3X9rNH26x7")
	DefaultDelegationProgram = ledger.MustParsePubkey("DELeGGvXpWV2fqJUhqcF5ZSYMS4JTLjteaAMARRSaeSh")
)

// Program 是请求登记与回调路由程序。
type Program struct {
	id         ledger.Pubkey
	admin      ledger.Pubkey
	oracle     ledger.Pubkey
	delegation ledger.Pubkey
	logger     *slog.Logger
}

// Option 配置 Program。
type Option func(*Program)

// WithProgramID 指定程序地址。
func WithProgramID(id ledger.Pubkey) Option {
	return func(p *Program) { p.id = id }
}

// WithAdmin 指定允许初始化的管理员。
func WithAdmin(admin ledger.Pubkey) Option {
	return func(p *Program) { p.admin = admin }
}

// WithOracle 指定预言机身份，缺省与管理员相同。
func WithOracle(oracle ledger.Pubkey) Option {
	return func(p *Program) { p.oracle = oracle }
}

// WithDelegationProgram 指定委托目标程序。
func WithDelegationProgram(id ledger.Pubkey) Option {
	return func(p *Program) { p.delegation = id }
}

// WithLogger 指定日志实例。
func WithLogger(l *slog.Logger) Option {
	return func(p *Program) {
		if l != nil {
			p.logger = l
		}
	}
}

// New 创建程序实例。
func New(opts ...Option) *Program {
	p := &Program{
		id:         DefaultProgramID,
		admin:      DefaultAdmin,
		delegation: DefaultDelegationProgram,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.oracle.IsZero() {
		p.oracle = p.admin
	}
	if p.logger == nil {
		p.logger = logger.Named("registry")
	}
	return p
}

func (p *Program) ID() ledger.Pubkey { return p.id }

// Admin 返回管理员身份。
func (p *Program) Admin() ledger.Pubkey { return p.admin }

// Oracle 返回预言机身份。
func (p *Program) Oracle() ledger.Pubkey { return p.oracle }

// Process 按指令前缀分发。
func (p *Program) Process(ic *ledger.InvokeContext, accounts []*ledger.AccountInfo, data []byte) error {
	if len(data) < DiscriminatorLength {
		return ledger.ErrInvalidInstructionData.WithMessage("instruction data too short")
	}
	disc := Discriminator(data[:DiscriminatorLength])
	payload := data[DiscriminatorLength:]
	switch disc {
	case InitializeDiscriminator:
		return p.initialize(ic, accounts)
	case CreateChatDiscriminator:
		var args createChatArgs
		if err := ledger.DecodeBorsh(payload, &args); err != nil {
			return ledger.ErrInvalidInstructionData.WithMessage("%v", err)
		}
		return p.createChat(ic, accounts, args.Text, args.Seed)
	case CreateInferenceDiscriminator:
		args, err := decodeCreateInferenceArgs(payload)
		if err != nil {
			return err
		}
		return p.createInference(ic, accounts, args)
	case CallbackFromLLMDiscriminator, CallbackTestDiscriminator:
		var args responseArgs
		if err := ledger.DecodeBorsh(payload, &args); err != nil {
			return ledger.ErrInvalidInstructionData.WithMessage("%v", err)
		}
		if disc == CallbackTestDiscriminator {
			return p.callbackTest(ic, accounts, args.Response)
		}
		return p.callbackFromLLM(ic, accounts, args.Response)
	case DelegateDiscriminator:
		return p.delegate(ic, accounts)
	default:
		return ledger.ErrInvalidInstructionData.WithMessage("unknown instruction")
	}
}

type createChatArgs struct {
	Text string
	Seed uint8
}

type responseArgs struct {
	Response string
}

// createInferenceArgs 对应 (text, callback, discriminator, Option<Vec<AccountMeta>>)。
// 选项标记单独成字段，只接受 0 或 1。
type createInferenceArgs struct {
	Text     string
	Callback ledger.Pubkey
	Disc     Discriminator
	HasMetas uint8
	Metas    []AccountMeta `borsh_skip:"true"`
}

type metaList struct {
	Metas []AccountMeta
}

func (a createInferenceArgs) encode() []byte {
	head := ledger.EncodeBorsh(CreateInferenceDiscriminator[:], a)
	if a.HasMetas == 0 {
		return head
	}
	return ledger.EncodeBorsh(head, metaList{Metas: a.Metas})
}

func decodeCreateInferenceArgs(payload []byte) (createInferenceArgs, error) {
	var args createInferenceArgs
	if err := ledger.DecodeBorsh(payload, &args); err != nil {
		return args, ledger.ErrInvalidInstructionData.WithMessage("%v", err)
	}
	switch args.HasMetas {
	case 0:
		return args, nil
	case 1:
	default:
		return args, ledger.ErrInvalidInstructionData.WithMessage("invalid option tag")
	}
	rest := payload[len(ledger.EncodeBorsh(nil, args)):]
	var list metaList
	if err := ledger.DecodeBorsh(rest, &list); err != nil {
		return args, ledger.ErrInvalidInstructionData.WithMessage("%v", err)
	}
	args.Metas = list.Metas
	return args, nil
}

// accountsAt 校验账户数量并按位置返回。
func accountsAt(accounts []*ledger.AccountInfo, n int) ([]*ledger.AccountInfo, error) {
	if len(accounts) < n {
		return nil, ledger.ErrNotEnoughAccountKeys
	}
	return accounts[:n], nil
}

func requireSigner(acct *ledger.AccountInfo) error {
	if !acct.IsSigner {
		return ledger.ErrMissingRequiredSignature.WithMessage("%s", acct.Key)
	}
	return nil
}

func requireWritable(acct *ledger.AccountInfo) error {
	if !acct.IsWritable {
		return ledger.ErrInvalidArgument.WithMessage("%s must be writable", acct.Key)
	}
	return nil
}

func requireSystemProgram(acct *ledger.AccountInfo) error {
	if acct.Key != ledger.SystemProgramID {
		return ledger.ErrIncorrectProgramID.WithMessage("expected system program, got %s", acct.Key)
	}
	return nil
}

// createPDA 通过系统程序创建派生地址账户。
func (p *Program) createPDA(ic *ledger.InvokeContext, payer, target *ledger.AccountInfo, space int, seeds [][]byte) error {
	lamports := ic.Rent().MinimumBalance(space)
	ix := ledger.CreateAccount(payer.Key, target.Key, lamports, uint64(space), p.id)
	return ic.InvokeSigned(ix, [][][]byte{seeds})
}
