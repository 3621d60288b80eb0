package registry

import (
	"crypto/sha256"
	"fmt"

	"LLM-Oracle-Chain/internal/ledger"
)

// DiscriminatorLength 为账户与指令前缀长度。
const DiscriminatorLength = 8

// Discriminator 标识账户类型或指令入口。
type Discriminator [DiscriminatorLength]byte

func discriminator(namespace, name string) Discriminator {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d Discriminator
	copy(d[:], sum[:DiscriminatorLength])
	return d
}

// 账户类型前缀。
var (
	ConfigDiscriminator      = discriminator("account", "Config")
	ChatContextDiscriminator = discriminator("account", "ChatContext")
	InferenceDiscriminator   = discriminator("account", "Inference")
)

const (
	// StoredMetaSize 是每个回调账户元数据预留的空间。
	StoredMetaSize = 8 + 34
	// ConfigSpace 是配置账户的固定大小。
	ConfigSpace = DiscriminatorLength + 1

	inferenceFixedSpace = 121
)

// ChatContextSpace 返回对话上下文账户所需的空间。
func ChatContextSpace(text string) int {
	return DiscriminatorLength + 4 + len(text) + 1 + 1
}

// InferenceSpace 返回推理请求账户所需的空间。
func InferenceSpace(text string, metas int) int {
	return inferenceFixedSpace + len(text) + metas*StoredMetaSize
}

// AccountMeta 是请求中保存的回调账户描述。
type AccountMeta struct {
	Pubkey     ledger.Pubkey `json:"pubkey"`
	IsSigner   bool          `json:"is_signer"`
	IsWritable bool          `json:"is_writable"`
}

// Config 记录配置账户的派生 bump。
type Config struct {
	Bump uint8 `json:"bump"`
}

// ChatContext 是用户创建的系统提示词。
type ChatContext struct {
	Text string `json:"text"`
	Seed uint8  `json:"seed"`
	Bump uint8  `json:"bump"`
}

// Inference 是一条待回调的推理请求。字段顺序即账户数据的 Borsh 布局。
type Inference struct {
	ChatContext       ledger.Pubkey `json:"chat_context"`
	User              ledger.Pubkey `json:"user"`
	Text              string        `json:"text"`
	CallbackProgramID ledger.Pubkey `json:"callback_program_id"`
	CallbackDiscrim   Discriminator `json:"callback_discriminator"`
	CallbackAccounts  []AccountMeta `json:"callback_account_metas"`
	IsProcessed       bool          `json:"is_processed"`
}

// Encode 返回账户数据的序列化形式，不含尾部预留空间。
func (c *Config) Encode() []byte {
	return ledger.EncodeBorsh(ConfigDiscriminator[:], *c)
}

// Encode 返回账户数据的序列化形式。
func (c *ChatContext) Encode() []byte {
	return ledger.EncodeBorsh(ChatContextDiscriminator[:], *c)
}

// Encode 返回账户数据的序列化形式，长度为 InferenceSpace 减去 8 字节预留尾部。
func (i *Inference) Encode() []byte {
	return ledger.EncodeBorsh(InferenceDiscriminator[:], *i)
}

// decodeAccount 校验账户前缀后按 Borsh 布局解析剩余数据。
func decodeAccount(data []byte, want Discriminator, kind string, v any) error {
	if len(data) < DiscriminatorLength {
		return fmt.Errorf("decode %s: account data too short (%d bytes)", kind, len(data))
	}
	if Discriminator(data[:DiscriminatorLength]) != want {
		return fmt.Errorf("decode %s: discriminator mismatch", kind)
	}
	if err := ledger.DecodeBorsh(data[DiscriminatorLength:], v); err != nil {
		return fmt.Errorf("decode %s: %w", kind, err)
	}
	return nil
}

// DecodeConfig 解析配置账户数据。
func DecodeConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := decodeAccount(data, ConfigDiscriminator, "config", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DecodeChatContext 解析对话上下文账户数据。
func DecodeChatContext(data []byte) (*ChatContext, error) {
	var chat ChatContext
	if err := decodeAccount(data, ChatContextDiscriminator, "chat context", &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// DecodeInference 解析推理请求账户数据，忽略尾部的预留空间。
func DecodeInference(data []byte) (*Inference, error) {
	var inf Inference
	if err := decodeAccount(data, InferenceDiscriminator, "inference", &inf); err != nil {
		return nil, err
	}
	return &inf, nil
}

// writeAccount 将序列化结果写入账户并清零尾部。
func writeAccount(acct *ledger.AccountInfo, payload []byte) error {
	data := acct.Data()
	if len(payload) > len(data) {
		return ledger.ErrAccountDataTooSmall.WithMessage("%s needs %d bytes, has %d", acct.Key, len(payload), len(data))
	}
	copy(data, payload)
	clear(data[len(payload):])
	return nil
}
