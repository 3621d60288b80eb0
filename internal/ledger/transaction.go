package ledger

import "fmt"

// Message is the signed body of a transaction.
type Message struct {
	FeePayer        Pubkey        `json:"feePayer"`
	RecentBlockhash Hash          `json:"recentBlockhash"`
	Instructions    []Instruction `json:"instructions"`
}

// Signers lists the required signers: the fee payer first, then every
// signer meta in instruction order without duplicates.
func (m *Message) Signers() []Pubkey {
	seen := map[Pubkey]struct{}{m.FeePayer: {}}
	out := []Pubkey{m.FeePayer}
	for _, ix := range m.Instructions {
		for _, meta := range ix.Accounts {
			if !meta.IsSigner {
				continue
			}
			if _, ok := seen[meta.Pubkey]; ok {
				continue
			}
			seen[meta.Pubkey] = struct{}{}
			out = append(out, meta.Pubkey)
		}
	}
	return out
}

type wireMeta struct {
	Pubkey Pubkey
	Flags  uint8
}

type wireInstruction struct {
	ProgramID Pubkey
	Accounts  []wireMeta
	Data      []byte
}

type wireMessage struct {
	FeePayer        Pubkey
	RecentBlockhash Hash
	Instructions    []wireInstruction
}

// Serialize returns the canonical bytes covered by signatures.
func (m *Message) Serialize() []byte {
	wire := wireMessage{
		FeePayer:        m.FeePayer,
		RecentBlockhash: m.RecentBlockhash,
		Instructions:    make([]wireInstruction, 0, len(m.Instructions)),
	}
	for _, ix := range m.Instructions {
		metas := make([]wireMeta, 0, len(ix.Accounts))
		for _, meta := range ix.Accounts {
			var flags uint8
			if meta.IsSigner {
				flags |= 1
			}
			if meta.IsWritable {
				flags |= 2
			}
			metas = append(metas, wireMeta{Pubkey: meta.Pubkey, Flags: flags})
		}
		wire.Instructions = append(wire.Instructions, wireInstruction{ProgramID: ix.ProgramID, Accounts: metas, Data: ix.Data})
	}
	return EncodeBorsh(nil, wire)
}

// Transaction is a message plus one signature per required signer.
type Transaction struct {
	Message    Message     `json:"message"`
	Signatures []Signature `json:"signatures"`
}

// NewTransaction builds an unsigned transaction.
func NewTransaction(instructions []Instruction, feePayer Pubkey, blockhash Hash) *Transaction {
	return &Transaction{Message: Message{
		FeePayer:        feePayer,
		RecentBlockhash: blockhash,
		Instructions:    instructions,
	}}
}

// NewSignedTransaction builds and signs a transaction in one step.
func NewSignedTransaction(instructions []Instruction, payer *Keypair, signers []*Keypair, blockhash Hash) (*Transaction, error) {
	tx := NewTransaction(instructions, payer.PublicKey(), blockhash)
	all := append([]*Keypair{payer}, signers...)
	if err := tx.Sign(all...); err != nil {
		return nil, err
	}
	return tx, nil
}

// Sign fills every required signature. Extra keypairs are ignored; a
// missing one is an error.
func (tx *Transaction) Sign(keypairs ...*Keypair) error {
	byKey := make(map[Pubkey]*Keypair, len(keypairs))
	for _, kp := range keypairs {
		byKey[kp.PublicKey()] = kp
	}
	msg := tx.Message.Serialize()
	required := tx.Message.Signers()
	sigs := make([]Signature, len(required))
	for i, key := range required {
		kp, ok := byKey[key]
		if !ok {
			return fmt.Errorf("missing keypair for signer %s", key)
		}
		sigs[i] = kp.Sign(msg)
	}
	tx.Signatures = sigs
	return nil
}

// Signature returns the transaction id.
func (tx *Transaction) Signature() Signature {
	if len(tx.Signatures) == 0 {
		return Signature{}
	}
	return tx.Signatures[0]
}

// Verify checks that every required signer signed the message.
func (tx *Transaction) Verify() error {
	required := tx.Message.Signers()
	if len(tx.Signatures) != len(required) {
		return fmt.Errorf("%w: expected %d signatures, got %d", ErrSignatureFailure, len(required), len(tx.Signatures))
	}
	msg := tx.Message.Serialize()
	for i, key := range required {
		if !Verify(key, msg, tx.Signatures[i]) {
			return fmt.Errorf("%w: bad signature for %s", ErrSignatureFailure, key)
		}
	}
	return nil
}
