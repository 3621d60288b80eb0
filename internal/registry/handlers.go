package registry

import (
	"LLM-Oracle-Chain/internal/ledger"
)

// initialize 创建程序配置账户，仅允许管理员调用。
// 账户：[admin(签名,可写), config(可写), system_program]
func (p *Program) initialize(ic *ledger.InvokeContext, accounts []*ledger.AccountInfo) error {
	accts, err := accountsAt(accounts, 3)
	if err != nil {
		return err
	}
	admin, config, system := accts[0], accts[1], accts[2]
	if err := requireSigner(admin); err != nil {
		return err
	}
	if admin.Key != p.admin {
		return ErrInvalidAdmin
	}
	if err := requireSystemProgram(system); err != nil {
		return err
	}
	addr, bump, err := ConfigAddress(p.id)
	if err != nil {
		return err
	}
	if config.Key != addr {
		return ErrConstraintSeeds.WithMessage("config")
	}
	if err := p.createPDA(ic, admin, config, ConfigSpace, [][]byte{ConfigSeed, {bump}}); err != nil {
		return err
	}
	cfg := Config{Bump: bump}
	ic.Log("Initialized config with bump %d", bump)
	return writeAccount(config, cfg.Encode())
}

// createChat 为用户创建系统提示词账户。
// 账户：[user(签名,可写), chat_context(可写), system_program]
func (p *Program) createChat(ic *ledger.InvokeContext, accounts []*ledger.AccountInfo, text string, seed uint8) error {
	accts, err := accountsAt(accounts, 3)
	if err != nil {
		return err
	}
	user, chat, system := accts[0], accts[1], accts[2]
	if err := requireSigner(user); err != nil {
		return err
	}
	if err := requireSystemProgram(system); err != nil {
		return err
	}
	addr, bump, err := ChatContextAddress(p.id, user.Key, seed)
	if err != nil {
		return err
	}
	if chat.Key != addr {
		return ErrConstraintSeeds.WithMessage("chat_context")
	}
	ctx := ChatContext{Text: text, Seed: seed, Bump: bump}
	if err := p.createPDA(ic, user, chat, ChatContextSpace(text), [][]byte{ChatContextSeed, user.Key[:], {seed}, {bump}}); err != nil {
		return err
	}
	return writeAccount(chat, ctx.Encode())
}

// createInference 创建或覆盖 (user, chat_context) 对应的推理请求。
// 账户：[user(签名,可写), chat_context, inference(可写), system_program]
func (p *Program) createInference(ic *ledger.InvokeContext, accounts []*ledger.AccountInfo, args createInferenceArgs) error {
	accts, err := accountsAt(accounts, 4)
	if err != nil {
		return err
	}
	user, chat, inference, system := accts[0], accts[1], accts[2], accts[3]
	if err := requireSigner(user); err != nil {
		return err
	}
	if err := requireWritable(inference); err != nil {
		return err
	}
	if err := requireSystemProgram(system); err != nil {
		return err
	}
	if chat.Owner() != p.id {
		return ErrAccountNotInitialized.WithMessage("chat_context")
	}
	ctx, err := DecodeChatContext(chat.Data())
	if err != nil {
		return ErrAccountDiscriminator.WithMessage("%v", err)
	}
	expectedChat, err := ledger.CreateProgramAddress([][]byte{ChatContextSeed, user.Key[:], {ctx.Seed}, {ctx.Bump}}, p.id)
	if err != nil || expectedChat != chat.Key {
		return ErrUnauthorized.WithMessage("chat_context is not owned by the requester")
	}
	addr, bump, err := InferenceAddress(p.id, user.Key, chat.Key)
	if err != nil {
		return err
	}
	if inference.Key != addr {
		return ErrConstraintSeeds.WithMessage("inference")
	}

	space := InferenceSpace(args.Text, len(args.Metas))
	switch inference.Owner() {
	case ledger.SystemProgramID:
		seeds := [][]byte{InferenceSeed, user.Key[:], chat.Key[:], {bump}}
		if err := p.createPDA(ic, user, inference, space, seeds); err != nil {
			return err
		}
	case p.id:
		rent := ic.Rent()
		current := inference.DataLen()
		if err := inference.Resize(space); err != nil {
			return err
		}
		need, have := rent.MinimumBalance(space), rent.MinimumBalance(current)
		if need > have {
			if err := ic.Invoke(ledger.Transfer(user.Key, inference.Key, need-have)); err != nil {
				return err
			}
		}
	default:
		return ledger.ErrIllegalOwner.WithMessage("inference is owned by %s", inference.Owner())
	}

	// 覆盖前尝试读取旧状态，失败时使用零值。
	req, err := DecodeInference(inference.Data())
	if err != nil {
		req = &Inference{}
	}
	req.ChatContext = chat.Key
	req.User = user.Key
	req.Text = args.Text
	req.CallbackProgramID = args.Callback
	req.CallbackDiscrim = args.Disc
	req.CallbackAccounts = args.Metas
	req.IsProcessed = false
	ic.Log("Inference request created: %d bytes of text, %d callback accounts", len(args.Text), len(args.Metas))
	return writeAccount(inference, req.Encode())
}

// callbackFromLLM 由预言机身份调用，标记请求已处理并把响应转发给回调程序。
// 账户：[payer(签名,可写), config, inference(可写), program, ...回调账户]
func (p *Program) callbackFromLLM(ic *ledger.InvokeContext, accounts []*ledger.AccountInfo, response string) error {
	accts, err := accountsAt(accounts, 4)
	if err != nil {
		return err
	}
	payer, config, inference, program := accts[0], accts[1], accts[2], accts[3]
	remaining := accounts[4:]
	if err := requireSigner(payer); err != nil {
		return err
	}
	if payer.Key != p.oracle {
		return ErrUnauthorized.WithMessage("payer is not the oracle identity")
	}
	cfg, err := p.loadConfig(config)
	if err != nil {
		return err
	}
	for _, acct := range remaining {
		if acct.Key == config.Key {
			return ledger.ErrInvalidAccountData.WithMessage("config account cannot be passed as a callback account")
		}
	}
	if err := requireWritable(inference); err != nil {
		return err
	}
	if inference.Owner() != p.id {
		return ErrAccountNotInitialized.WithMessage("inference")
	}
	req, err := DecodeInference(inference.Data())
	if err != nil {
		return ErrAccountDiscriminator.WithMessage("%v", err)
	}
	if req.IsProcessed {
		return ErrAlreadyProcessed
	}
	if program.Key != req.CallbackProgramID {
		return ErrCallbackProgramMismatch
	}

	metas := make([]ledger.AccountMeta, 0, len(req.CallbackAccounts)+1)
	metas = append(metas, ledger.NewReadonlyAccountMeta(config.Key, true))
	for _, meta := range req.CallbackAccounts {
		if meta.Pubkey == config.Key {
			return ledger.ErrInvalidAccountData.WithMessage("config account cannot be a callback account")
		}
		metas = append(metas, ledger.AccountMeta{Pubkey: meta.Pubkey, IsSigner: false, IsWritable: meta.IsWritable})
	}

	req.IsProcessed = true
	if err := writeAccount(inference, req.Encode()); err != nil {
		return err
	}
	ix := ledger.Instruction{
		ProgramID: program.Key,
		Accounts:  metas,
		Data:      encodeResponse(req.CallbackDiscrim, response),
	}
	return ic.InvokeSigned(ix, [][][]byte{{ConfigSeed, {cfg.Bump}}})
}

// callbackTest 是内置的回调入口，要求配置账户作为签名者。
// 账户：[config(签名)]
func (p *Program) callbackTest(ic *ledger.InvokeContext, accounts []*ledger.AccountInfo, response string) error {
	accts, err := accountsAt(accounts, 1)
	if err != nil {
		return err
	}
	config := accts[0]
	if err := requireSigner(config); err != nil {
		return err
	}
	if _, err := p.loadConfig(config); err != nil {
		return err
	}
	ic.Log("Callback response: %s", response)
	return nil
}

// delegate 把推理请求账户的所有权移交给委托程序。
// 账户：[user(签名,可写), chat_context, inference(可写), delegation_program]
func (p *Program) delegate(ic *ledger.InvokeContext, accounts []*ledger.AccountInfo) error {
	accts, err := accountsAt(accounts, 4)
	if err != nil {
		return err
	}
	user, chat, inference, target := accts[0], accts[1], accts[2], accts[3]
	if err := requireSigner(user); err != nil {
		return err
	}
	if err := requireWritable(inference); err != nil {
		return err
	}
	if target.Key != p.delegation {
		return ledger.ErrIncorrectProgramID.WithMessage("expected delegation program %s", p.delegation)
	}
	addr, _, err := InferenceAddress(p.id, user.Key, chat.Key)
	if err != nil {
		return err
	}
	if inference.Key != addr {
		return ErrConstraintSeeds.WithMessage("inference")
	}
	if inference.Owner() != p.id {
		return ErrAccountNotInitialized.WithMessage("inference")
	}
	inference.Assign(p.delegation)
	ic.Log("Delegated %s to %s", inference.Key, p.delegation)
	p.logger.Debug("推理请求已委托", "inference", inference.Key.String(), "program", p.delegation.String())
	return nil
}

// loadConfig 校验并解析配置账户。
func (p *Program) loadConfig(config *ledger.AccountInfo) (*Config, error) {
	addr, _, err := ConfigAddress(p.id)
	if err != nil {
		return nil, err
	}
	if config.Key != addr {
		return nil, ErrUnauthorized.WithMessage("config address mismatch")
	}
	if config.Owner() != p.id {
		return nil, ErrAccountNotInitialized.WithMessage("config")
	}
	cfg, err := DecodeConfig(config.Data())
	if err != nil {
		return nil, ErrAccountDiscriminator.WithMessage("%v", err)
	}
	return cfg, nil
}
