package registry

import "LLM-Oracle-Chain/internal/ledger"

// 派生地址使用的种子前缀。
var (
	ConfigSeed      = []byte("config")
	ChatContextSeed = []byte("chat_context")
	InferenceSeed   = []byte("inference")
)

// ConfigAddress 返回程序配置账户地址。
func ConfigAddress(programID ledger.Pubkey) (ledger.Pubkey, uint8, error) {
	return ledger.FindProgramAddress([][]byte{ConfigSeed}, programID)
}

// ChatContextAddress 返回 (user, seed) 对应的上下文地址。
func ChatContextAddress(programID, user ledger.Pubkey, seed uint8) (ledger.Pubkey, uint8, error) {
	return ledger.FindProgramAddress([][]byte{ChatContextSeed, user[:], {seed}}, programID)
}

// InferenceAddress 返回 (user, chatContext) 对应的请求地址。
func InferenceAddress(programID, user, chatContext ledger.Pubkey) (ledger.Pubkey, uint8, error) {
	return ledger.FindProgramAddress([][]byte{InferenceSeed, user[:], chatContext[:]}, programID)
}
