package registry

import (
	"fmt"

	"LLM-Oracle-Chain/internal/ledger"
)

// 指令入口前缀。
var (
	InitializeDiscriminator      = discriminator("global", "initialize")
	CreateChatDiscriminator      = discriminator("global", "create_chat")
	CreateInferenceDiscriminator = discriminator("global", "create_llm_inference")
	CallbackFromLLMDiscriminator = discriminator("global", "callback_from_llm")
	CallbackTestDiscriminator    = discriminator("global", "callback_test")
	DelegateDiscriminator        = discriminator("global", "delegate")
)

// NewInitializeInstruction 构造初始化指令。
func NewInitializeInstruction(programID, admin ledger.Pubkey) (ledger.Instruction, error) {
	config, _, err := ConfigAddress(programID)
	if err != nil {
		return ledger.Instruction{}, err
	}
	return ledger.Instruction{
		ProgramID: programID,
		Accounts: []ledger.AccountMeta{
			ledger.NewAccountMeta(admin, true),
			ledger.NewAccountMeta(config, false),
			ledger.NewReadonlyAccountMeta(ledger.SystemProgramID, false),
		},
		Data: InitializeDiscriminator[:],
	}, nil
}

// NewCreateChatInstruction 构造创建对话上下文指令。
func NewCreateChatInstruction(programID, user ledger.Pubkey, text string, seed uint8) (ledger.Instruction, error) {
	chat, _, err := ChatContextAddress(programID, user, seed)
	if err != nil {
		return ledger.Instruction{}, err
	}
	return ledger.Instruction{
		ProgramID: programID,
		Accounts: []ledger.AccountMeta{
			ledger.NewAccountMeta(user, true),
			ledger.NewAccountMeta(chat, false),
			ledger.NewReadonlyAccountMeta(ledger.SystemProgramID, false),
		},
		Data: ledger.EncodeBorsh(CreateChatDiscriminator[:], createChatArgs{Text: text, Seed: seed}),
	}, nil
}

// InferenceRequest 描述一次推理请求的参数。
type InferenceRequest struct {
	User              ledger.Pubkey
	ChatContext       ledger.Pubkey
	Text              string
	CallbackProgramID ledger.Pubkey
	CallbackDiscrim   Discriminator
	// CallbackAccounts 为 nil 表示不携带额外账户。
	CallbackAccounts []AccountMeta
}

// NewCreateInferenceInstruction 构造创建或覆盖推理请求的指令。
func NewCreateInferenceInstruction(programID ledger.Pubkey, req InferenceRequest) (ledger.Instruction, error) {
	inference, _, err := InferenceAddress(programID, req.User, req.ChatContext)
	if err != nil {
		return ledger.Instruction{}, err
	}
	args := createInferenceArgs{
		Text:     req.Text,
		Callback: req.CallbackProgramID,
		Disc:     req.CallbackDiscrim,
	}
	if req.CallbackAccounts != nil {
		args.HasMetas = 1
		args.Metas = req.CallbackAccounts
	}
	return ledger.Instruction{
		ProgramID: programID,
		Accounts: []ledger.AccountMeta{
			ledger.NewAccountMeta(req.User, true),
			ledger.NewReadonlyAccountMeta(req.ChatContext, false),
			ledger.NewAccountMeta(inference, false),
			ledger.NewReadonlyAccountMeta(ledger.SystemProgramID, false),
		},
		Data: args.encode(),
	}, nil
}

// NewCallbackFromLLMInstruction 构造预言机回写指令，账户列表末尾附带请求保存的回调账户。
func NewCallbackFromLLMInstruction(programID, payer, inferenceKey ledger.Pubkey, inf *Inference, response string) (ledger.Instruction, error) {
	if inf == nil {
		return ledger.Instruction{}, fmt.Errorf("nil inference")
	}
	config, _, err := ConfigAddress(programID)
	if err != nil {
		return ledger.Instruction{}, err
	}
	accounts := []ledger.AccountMeta{
		ledger.NewAccountMeta(payer, true),
		ledger.NewReadonlyAccountMeta(config, false),
		ledger.NewAccountMeta(inferenceKey, false),
		ledger.NewReadonlyAccountMeta(inf.CallbackProgramID, false),
	}
	for _, meta := range inf.CallbackAccounts {
		accounts = append(accounts, ledger.AccountMeta{Pubkey: meta.Pubkey, IsSigner: false, IsWritable: meta.IsWritable})
	}
	return ledger.Instruction{
		ProgramID: programID,
		Accounts:  accounts,
		Data:      encodeResponse(CallbackFromLLMDiscriminator, response),
	}, nil
}

// NewCallbackTestInstruction 构造测试回调入口的直接调用。
func NewCallbackTestInstruction(programID ledger.Pubkey, response string) (ledger.Instruction, error) {
	config, _, err := ConfigAddress(programID)
	if err != nil {
		return ledger.Instruction{}, err
	}
	return ledger.Instruction{
		ProgramID: programID,
		Accounts:  []ledger.AccountMeta{ledger.NewReadonlyAccountMeta(config, true)},
		Data:      encodeResponse(CallbackTestDiscriminator, response),
	}, nil
}

// NewDelegateInstruction 构造将请求账户移交给委托程序的指令。
func NewDelegateInstruction(programID, user, chatContext, delegationProgram ledger.Pubkey) (ledger.Instruction, error) {
	inference, _, err := InferenceAddress(programID, user, chatContext)
	if err != nil {
		return ledger.Instruction{}, err
	}
	return ledger.Instruction{
		ProgramID: programID,
		Accounts: []ledger.AccountMeta{
			ledger.NewAccountMeta(user, true),
			ledger.NewReadonlyAccountMeta(chatContext, false),
			ledger.NewAccountMeta(inference, false),
			ledger.NewReadonlyAccountMeta(delegationProgram, false),
		},
		Data: DelegateDiscriminator[:],
	}, nil
}

// EncodeCallbackPayload 返回下游程序收到的指令数据：前缀加长度前缀的响应文本。
func EncodeCallbackPayload(d Discriminator, response string) []byte {
	return encodeResponse(d, response)
}

// DecodeCallbackPayload 拆分回调指令数据。
func DecodeCallbackPayload(data []byte) (Discriminator, string, error) {
	var d Discriminator
	if len(data) < DiscriminatorLength {
		return d, "", fmt.Errorf("callback payload too short")
	}
	copy(d[:], data)
	var args responseArgs
	err := ledger.DecodeBorsh(data[DiscriminatorLength:], &args)
	return d, args.Response, err
}

func encodeResponse(d Discriminator, response string) []byte {
	return ledger.EncodeBorsh(d[:], responseArgs{Response: response})
}
