// Package oracle is the requester-side SDK: it builds and submits registry
// instructions and reads request state back from a ledger node.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"LLM-Oracle-Chain/internal/ledger"
	"LLM-Oracle-Chain/internal/registry"
	"LLM-Oracle-Chain/internal/web3"
	"LLM-Oracle-Chain/internal/web3/ledgerrpc"
)

// DefaultPollInterval is how often WaitProcessed re-reads the request.
const DefaultPollInterval = 500 * time.Millisecond

// ErrNotFound is returned when a chat context or request does not exist.
var ErrNotFound = web3.ErrAccountNotFound

// Ledger is the node surface the SDK needs. *ledgerrpc.Client satisfies it.
type Ledger interface {
	GetAccountInfo(ctx context.Context, key ledger.Pubkey) (*ledger.Account, error)
	GetBalance(ctx context.Context, key ledger.Pubkey) (uint64, error)
	GetLatestBlockhash(ctx context.Context) (ledger.Hash, error)
	RequestAirdrop(ctx context.Context, key ledger.Pubkey, lamports uint64) (ledger.Signature, error)
	SendAndConfirmTransaction(ctx context.Context, tx *ledger.Transaction) (ledger.Signature, error)
}

// Client signs requests with a single keypair against one registry program.
type Client struct {
	ledger       Ledger
	programID    ledger.Pubkey
	signer       *ledger.Keypair
	pollInterval time.Duration
	closer       func()
}

// NewClient wraps an existing ledger connection. A zero programID selects
// registry.DefaultProgramID.
func NewClient(l Ledger, programID ledger.Pubkey, signer *ledger.Keypair) *Client {
	if programID.IsZero() {
		programID = registry.DefaultProgramID
	}
	return &Client{ledger: l, programID: programID, signer: signer, pollInterval: DefaultPollInterval}
}

// Dial connects to the node at rpcURL.
func Dial(ctx context.Context, rpcURL string, programID ledger.Pubkey, signer *ledger.Keypair) (*Client, error) {
	conn, err := ledgerrpc.Dial(ctx, ledgerrpc.Config{Name: "oracle-sdk", RPCURL: rpcURL})
	if err != nil {
		return nil, err
	}
	c := NewClient(conn, programID, signer)
	c.closer = conn.Close
	return c, nil
}

// Close releases the connection opened by Dial.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// SetPollInterval overrides DefaultPollInterval.
func (c *Client) SetPollInterval(d time.Duration) {
	if d > 0 {
		c.pollInterval = d
	}
}

// ProgramID returns the registry program the client targets.
func (c *Client) ProgramID() ledger.Pubkey { return c.programID }

// Signer returns the public key that signs and pays for requests.
func (c *Client) Signer() ledger.Pubkey {
	if c.signer == nil {
		return ledger.Pubkey{}
	}
	return c.signer.PublicKey()
}

// Airdrop requests lamports for target and returns its new balance.
func (c *Client) Airdrop(ctx context.Context, target ledger.Pubkey, lamports uint64) (ledger.Signature, uint64, error) {
	sig, err := c.ledger.RequestAirdrop(ctx, target, lamports)
	if err != nil {
		return ledger.Signature{}, 0, err
	}
	balance, err := c.ledger.GetBalance(ctx, target)
	if err != nil {
		return sig, 0, err
	}
	return sig, balance, nil
}

// Initialize creates the registry config account. The signer must be the
// registry admin.
func (c *Client) Initialize(ctx context.Context) (ledger.Pubkey, ledger.Signature, error) {
	if err := c.requireSigner(); err != nil {
		return ledger.Pubkey{}, ledger.Signature{}, err
	}
	ix, err := registry.NewInitializeInstruction(c.programID, c.signer.PublicKey())
	if err != nil {
		return ledger.Pubkey{}, ledger.Signature{}, err
	}
	config, _, err := registry.ConfigAddress(c.programID)
	if err != nil {
		return ledger.Pubkey{}, ledger.Signature{}, err
	}
	sig, err := c.send(ctx, ix)
	return config, sig, err
}

// CreateChat stores a system prompt under (signer, seed).
func (c *Client) CreateChat(ctx context.Context, text string, seed uint8) (ledger.Pubkey, ledger.Signature, error) {
	if err := c.requireSigner(); err != nil {
		return ledger.Pubkey{}, ledger.Signature{}, err
	}
	ix, err := registry.NewCreateChatInstruction(c.programID, c.signer.PublicKey(), text, seed)
	if err != nil {
		return ledger.Pubkey{}, ledger.Signature{}, err
	}
	chat, _, err := registry.ChatContextAddress(c.programID, c.signer.PublicKey(), seed)
	if err != nil {
		return ledger.Pubkey{}, ledger.Signature{}, err
	}
	sig, err := c.send(ctx, ix)
	return chat, sig, err
}

// Request describes an inference request.
type Request struct {
	// Seed selects the signer's chat context.
	Seed uint8
	Text string
	// CallbackProgram receives the response. Zero routes it to the
	// registry's own test callback.
	CallbackProgram ledger.Pubkey
	Discriminator   registry.Discriminator
	// Accounts is nil when the callback takes no extra accounts.
	Accounts []registry.AccountMeta
}

// CreateInference creates or overwrites the request attached to the chat
// context selected by req.Seed.
func (c *Client) CreateInference(ctx context.Context, req Request) (ledger.Pubkey, ledger.Signature, error) {
	if err := c.requireSigner(); err != nil {
		return ledger.Pubkey{}, ledger.Signature{}, err
	}
	user := c.signer.PublicKey()
	chat, _, err := registry.ChatContextAddress(c.programID, user, req.Seed)
	if err != nil {
		return ledger.Pubkey{}, ledger.Signature{}, err
	}
	program, discrim := req.CallbackProgram, req.Discriminator
	if program.IsZero() {
		program, discrim = c.programID, registry.CallbackTestDiscriminator
	}
	ix, err := registry.NewCreateInferenceInstruction(c.programID, registry.InferenceRequest{
		User:              user,
		ChatContext:       chat,
		Text:              req.Text,
		CallbackProgramID: program,
		CallbackDiscrim:   discrim,
		CallbackAccounts:  req.Accounts,
	})
	if err != nil {
		return ledger.Pubkey{}, ledger.Signature{}, err
	}
	inference, _, err := registry.InferenceAddress(c.programID, user, chat)
	if err != nil {
		return ledger.Pubkey{}, ledger.Signature{}, err
	}
	sig, err := c.send(ctx, ix)
	return inference, sig, err
}

// ChatContext reads the chat context of user at seed.
func (c *Client) ChatContext(ctx context.Context, user ledger.Pubkey, seed uint8) (ledger.Pubkey, *registry.ChatContext, error) {
	key, _, err := registry.ChatContextAddress(c.programID, user, seed)
	if err != nil {
		return ledger.Pubkey{}, nil, err
	}
	acct, err := c.ledger.GetAccountInfo(ctx, key)
	if err != nil {
		return key, nil, err
	}
	chat, err := registry.DecodeChatContext(acct.Data)
	return key, chat, err
}

// Inference reads the request attached to user's chat context at seed.
func (c *Client) Inference(ctx context.Context, user ledger.Pubkey, seed uint8) (ledger.Pubkey, *registry.Inference, error) {
	chat, _, err := registry.ChatContextAddress(c.programID, user, seed)
	if err != nil {
		return ledger.Pubkey{}, nil, err
	}
	key, _, err := registry.InferenceAddress(c.programID, user, chat)
	if err != nil {
		return ledger.Pubkey{}, nil, err
	}
	inf, err := c.inferenceAt(ctx, key)
	return key, inf, err
}

// WaitProcessed polls the request at key until the oracle has answered it or
// ctx ends.
func (c *Client) WaitProcessed(ctx context.Context, key ledger.Pubkey) (*registry.Inference, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		inf, err := c.inferenceAt(ctx, key)
		if err != nil && !errors.Is(err, ErrNotFound) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if inf != nil && inf.IsProcessed {
			return inf, nil
		}
		select {
		case <-ctx.Done():
			return inf, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) inferenceAt(ctx context.Context, key ledger.Pubkey) (*registry.Inference, error) {
	acct, err := c.ledger.GetAccountInfo(ctx, key)
	if err != nil {
		return nil, err
	}
	return registry.DecodeInference(acct.Data)
}

func (c *Client) requireSigner() error {
	if c.signer == nil {
		return errors.New("oracle: no signing keypair configured")
	}
	return nil
}

func (c *Client) send(ctx context.Context, ixs ...ledger.Instruction) (ledger.Signature, error) {
	hash, err := c.ledger.GetLatestBlockhash(ctx)
	if err != nil {
		return ledger.Signature{}, fmt.Errorf("fetch blockhash: %w", err)
	}
	tx, err := ledger.NewSignedTransaction(ixs, c.signer, nil, hash)
	if err != nil {
		return ledger.Signature{}, err
	}
	return c.ledger.SendAndConfirmTransaction(ctx, tx)
}
