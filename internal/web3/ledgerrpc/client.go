// Package ledgerrpc implements web3.Client over go-ethereum's JSON-RPC
// client, talking to a ledger.Service over HTTP, websocket or an in-process pipe.
package ledgerrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	xerrors "LLM-Oracle-Chain/internal/errors"
	"LLM-Oracle-Chain/internal/ledger"
	"LLM-Oracle-Chain/internal/web3"
)

// subscriptionBuffer sizes the channel handed to the RPC client; the client
// keeps its own backlog beyond it.
const subscriptionBuffer = 128

// Config describes how to reach a ledger node.
type Config struct {
	Name   string
	RPCURL string
	WSURL  string
}

// Client implements web3.Client for a ledger node.
type Client struct {
	name string
	mu   sync.Mutex
	rpc  *gethrpc.Client
	ws   *gethrpc.Client
}

var _ web3.Client = (*Client)(nil)

// Dial connects to the configured endpoints. The websocket endpoint is used
// for subscriptions; without one the RPC endpoint must support them.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置账本 RPC 地址")
	}
	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "连接账本节点失败")
	}
	wsClient := rpcClient
	if wsURL := strings.TrimSpace(cfg.WSURL); wsURL != "" && wsURL != rpcURL {
		wsClient, err = gethrpc.DialContext(ctx, wsURL)
		if err != nil {
			rpcClient.Close()
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "连接账本订阅端点失败")
		}
	}
	return &Client{name: cfg.Name, rpc: rpcClient, ws: wsClient}, nil
}

// NewClient wraps already-connected RPC clients. ws may be nil when
// rpcClient supports subscriptions.
func NewClient(name string, rpcClient, ws *gethrpc.Client) *Client {
	if ws == nil {
		ws = rpcClient
	}
	return &Client{name: name, rpc: rpcClient, ws: ws}
}

// Name returns the cluster name the client was created for.
func (c *Client) Name() string { return c.name }

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws != nil && c.ws != c.rpc {
		c.ws.Close()
	}
	if c.rpc != nil {
		c.rpc.Close()
	}
	c.rpc, c.ws = nil, nil
}

func (c *Client) clients() (*gethrpc.Client, *gethrpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpc == nil {
		return nil, nil, xerrors.New(xerrors.CodeInitializationFailure, "账本客户端已关闭")
	}
	return c.rpc, c.ws, nil
}

func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	rpcClient, _, err := c.clients()
	if err != nil {
		return err
	}
	return rpcClient.CallContext(ctx, result, ledger.Namespace+"_"+method, args...)
}

// GetAccountInfo returns web3.ErrAccountNotFound when the address is empty.
func (c *Client) GetAccountInfo(ctx context.Context, key ledger.Pubkey) (*ledger.Account, error) {
	var acct *ledger.Account
	if err := c.call(ctx, &acct, "getAccountInfo", key); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUnknown, err, "查询账户失败", xerrors.WithRetryable(true))
	}
	if acct == nil {
		return nil, xerrors.Wrap(xerrors.CodeNotFound, web3.ErrAccountNotFound, key.String())
	}
	return acct, nil
}

// GetBalance returns the lamports held at key.
func (c *Client) GetBalance(ctx context.Context, key ledger.Pubkey) (uint64, error) {
	var balance uint64
	if err := c.call(ctx, &balance, "getBalance", key); err != nil {
		return 0, err
	}
	return balance, nil
}

// GetLatestBlockhash returns a fresh recency token.
func (c *Client) GetLatestBlockhash(ctx context.Context) (ledger.Hash, error) {
	var res ledger.BlockhashResult
	if err := c.call(ctx, &res, "getLatestBlockhash"); err != nil {
		return ledger.Hash{}, xerrors.Wrap(xerrors.CodeUnknown, err, "获取最新区块哈希失败", xerrors.WithRetryable(true))
	}
	return res.Blockhash, nil
}

// GetMinimumBalanceForRentExemption mirrors the node's rent parameters.
func (c *Client) GetMinimumBalanceForRentExemption(ctx context.Context, size int) (uint64, error) {
	var lamports uint64
	err := c.call(ctx, &lamports, "getMinimumBalanceForRentExemption", size)
	return lamports, err
}

// GetProgramAccounts lists accounts owned by programID.
func (c *Client) GetProgramAccounts(ctx context.Context, programID ledger.Pubkey, cfg *ledger.ProgramConfig) ([]ledger.KeyedAccount, error) {
	var out []ledger.KeyedAccount
	if err := c.call(ctx, &out, "getProgramAccounts", programID, cfg); err != nil {
		return nil, err
	}
	return out, nil
}

// Snapshot reports the node's current slot and blockhash.
func (c *Client) Snapshot(ctx context.Context) (web3.ClusterSnapshot, error) {
	var slot uint64
	if err := c.call(ctx, &slot, "getSlot"); err != nil {
		return web3.ClusterSnapshot{}, err
	}
	hash, err := c.GetLatestBlockhash(ctx)
	if err != nil {
		return web3.ClusterSnapshot{}, err
	}
	return web3.ClusterSnapshot{Name: c.name, Slot: slot, Blockhash: hash}, nil
}

// RequestAirdrop credits key on nodes that allow it.
func (c *Client) RequestAirdrop(ctx context.Context, key ledger.Pubkey, lamports uint64) (ledger.Signature, error) {
	var sig ledger.Signature
	if err := c.call(ctx, &sig, "requestAirdrop", key, lamports); err != nil {
		return ledger.Signature{}, err
	}
	return sig, nil
}

// SendAndConfirmTransaction submits tx; the node executes it before replying.
// Rejections come back with the node's program error reconstructed so that
// errors.Is matches ledger and program error values.
func (c *Client) SendAndConfirmTransaction(ctx context.Context, tx *ledger.Transaction) (ledger.Signature, error) {
	var sig ledger.Signature
	if err := c.call(ctx, &sig, "sendTransaction", tx); err != nil {
		return ledger.Signature{}, decodeSendError(err)
	}
	return sig, nil
}

func decodeSendError(err error) error {
	var rpcErr gethrpc.Error
	if !errors.As(err, &rpcErr) {
		return xerrors.Wrap(xerrors.CodeSubmitFailure, err, "提交交易失败")
	}
	var detail ledger.SendErrorDetail
	var dataErr gethrpc.DataError
	if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		if raw, mErr := json.Marshal(dataErr.ErrorData()); mErr == nil {
			_ = json.Unmarshal(raw, &detail)
		}
	}
	switch rpcErr.ErrorCode() {
	case ledger.CodeTransactionFailed:
		var cause error = errors.New(rpcErr.Error())
		if detail.Program != nil {
			cause = detail.Program
		}
		index := 0
		if detail.Instruction != nil {
			index = *detail.Instruction
		}
		return xerrors.Wrap(xerrors.CodeSubmitFailure, &ledger.TransactionError{Index: index, Err: cause}, "交易执行失败")
	case ledger.CodeBlockhashNotFound:
		return xerrors.Wrap(xerrors.CodeBlockhashNotFound, ledger.ErrBlockhashNotFound, "区块哈希已过期")
	case ledger.CodeAlreadyProcessed:
		return xerrors.Wrap(xerrors.CodeSubmitFailure, ledger.ErrAlreadyProcessed, "重复交易")
	case ledger.CodeSignatureFailure:
		return xerrors.Wrap(xerrors.CodeSubmitFailure, ledger.ErrSignatureFailure, rpcErr.Error(), xerrors.WithRetryable(false))
	case ledger.CodeInsufficientFeeFund:
		return xerrors.Wrap(xerrors.CodeInsufficientFunds, ledger.ErrInsufficientFundsForFee, rpcErr.Error())
	default:
		return xerrors.Wrap(xerrors.CodeSubmitFailure, err, fmt.Sprintf("节点拒绝交易 (code %d)", rpcErr.ErrorCode()))
	}
}

// ProgramSubscribe streams changes to accounts owned by programID.
func (c *Client) ProgramSubscribe(ctx context.Context, programID ledger.Pubkey, cfg *ledger.ProgramConfig) (*web3.ProgramSubscription, error) {
	_, ws, err := c.clients()
	if err != nil {
		return nil, err
	}
	updates := make(chan ledger.ProgramNotification, subscriptionBuffer)
	args := []any{"programSubscribe", programID}
	if cfg != nil {
		args = append(args, cfg)
	}
	sub, err := ws.Subscribe(ctx, ledger.Namespace, updates, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSubscriptionFailure, err, "订阅程序账户失败")
	}
	return web3.NewProgramSubscription(updates, sub), nil
}
