package solana

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
)

const (
	// MaxTransactionSize taken from: https://github.com/solana-labs/solana/blob/39b3ac6a8d29e14faa1de73d8b46d390ad41797b/sdk/src/packet.rs#L9-L13
	MaxTransactionSize = 1232
)

type Signature [ed25519.SignatureSize]byte
type Blockhash [sha256.Size]byte

func (s Signature) String() string {
	return base58.Encode(s[:])
}

func (b Blockhash) String() string {
	return base58.Encode(b[:])
}

type Header struct {
	NumSignatures     byte
	NumReadonlySigned byte
	NumReadOnly       byte
}

type Message struct {
	Header          Header
	Accounts        []Identity
	RecentBlockhash Blockhash
	Instructions    []CompiledInstruction
}

type Transaction struct {
	Signatures []Signature
	Message    Message
}

// NewTransaction compiles instructions into a legacy transaction paid for by
// payer. Signatures are left empty until Sign is called.
func NewTransaction(payer Identity, instructions ...Instruction) Transaction {
	accounts := []AccountMeta{
		{
			PublicKey:  payer,
			IsSigner:   true,
			IsWritable: true,
			isPayer:    true,
		},
	}

	for _, i := range instructions {
		accounts = append(accounts, AccountMeta{
			PublicKey: i.Program,
			isProgram: true,
		})
		accounts = append(accounts, i.Accounts...)
	}

	// Sort the account meta's based on:
	//   1. Payer is always the first account / signer.
	//   2. All signers are before non-signers.
	//   3. Writable accounts before read-only accounts.
	//   4. Programs last
	accounts = filterUnique(accounts)
	sort.Sort(SortableAccountMeta(accounts))

	var m Message
	for _, account := range accounts {
		m.Accounts = append(m.Accounts, account.PublicKey)

		if account.IsSigner {
			m.Header.NumSignatures++

			if !account.IsWritable {
				m.Header.NumReadonlySigned++
			}
		} else if !account.IsWritable {
			m.Header.NumReadOnly++
		}
	}

	for _, i := range instructions {
		c := CompiledInstruction{
			ProgramIndex: byte(indexOf(m.Accounts, i.Program)),
			Data:         i.Data,
		}

		for _, a := range i.Accounts {
			c.Accounts = append(c.Accounts, byte(indexOf(m.Accounts, a.PublicKey)))
		}

		m.Instructions = append(m.Instructions, c)
	}

	return Transaction{
		Signatures: make([]Signature, m.Header.NumSignatures),
		Message:    m,
	}
}

// Signature returns the payer's signature, which identifies the transaction.
func (t *Transaction) Signature() Signature {
	if len(t.Signatures) == 0 {
		return Signature{}
	}
	return t.Signatures[0]
}

func (t *Transaction) String() string {
	var sb strings.Builder
	sb.WriteString("Signatures:\n")
	for i, s := range t.Signatures {
		sb.WriteString(fmt.Sprintf("  %d: %s\n", i, s))
	}
	sb.WriteString("Message:\n")
	sb.WriteString("  Header:\n")
	sb.WriteString(fmt.Sprintf("    NumSignatures: %d\n", t.Message.Header.NumSignatures))
	sb.WriteString(fmt.Sprintf("    NumReadOnly: %d\n", t.Message.Header.NumReadOnly))
	sb.WriteString(fmt.Sprintf("    NumReadOnlySigned: %d\n", t.Message.Header.NumReadonlySigned))
	sb.WriteString(fmt.Sprintf("  RecentBlockhash: %s\n", t.Message.RecentBlockhash))
	sb.WriteString("  Accounts:\n")
	for i, a := range t.Message.Accounts {
		sb.WriteString(fmt.Sprintf("    %d: %s\n", i, a))
	}
	sb.WriteString("  Instructions:\n")
	for i := range t.Message.Instructions {
		sb.WriteString(fmt.Sprintf("    %d:\n", i))
		sb.WriteString(fmt.Sprintf("      ProgramIndex: %d\n", t.Message.Instructions[i].ProgramIndex))
		sb.WriteString(fmt.Sprintf("      Accounts: %v\n", t.Message.Instructions[i].Accounts))
		sb.WriteString(fmt.Sprintf("      Data: %v\n", t.Message.Instructions[i].Data))
	}
	return sb.String()
}

func (t *Transaction) SetBlockhash(bh Blockhash) {
	t.Message.RecentBlockhash = bh
}

func (t *Transaction) Sign(signers ...ed25519.PrivateKey) error {
	messageBytes := t.Message.Marshal()

	for _, s := range signers {
		id, err := IdentityFromPublicKey(s.Public().(ed25519.PublicKey))
		if err != nil {
			return err
		}

		index := indexOf(t.Message.Accounts, id)
		if index < 0 {
			return errors.Errorf("signing account %s is not in the account list", id)
		}
		if index >= len(t.Signatures) {
			return errors.Errorf("signing account %s is not in the list of signers", id)
		}

		copy(t.Signatures[index][:], ed25519.Sign(s, messageBytes))
	}

	return nil
}

// Sanitize checks that the message is internally consistent: the header
// agrees with the signature and account lists, every index is in range, and
// no account key appears twice.
func (t *Transaction) Sanitize() error {
	h := t.Message.Header

	if h.NumSignatures == 0 {
		return errors.New("transaction has no signers")
	}
	if int(h.NumSignatures) != len(t.Signatures) {
		return errors.Errorf("header declares %d signatures, found %d", h.NumSignatures, len(t.Signatures))
	}
	if h.NumReadonlySigned >= h.NumSignatures {
		return errors.New("fee payer must be writable")
	}
	if int(h.NumSignatures)+int(h.NumReadOnly) > len(t.Message.Accounts) {
		return errors.New("header references more accounts than are present")
	}

	seen := make(map[Identity]struct{}, len(t.Message.Accounts))
	for _, a := range t.Message.Accounts {
		if _, ok := seen[a]; ok {
			return errors.Errorf("account %s loaded twice", a)
		}
		seen[a] = struct{}{}
	}

	for i, c := range t.Message.Instructions {
		if int(c.ProgramIndex) >= len(t.Message.Accounts) {
			return errors.Errorf("program index out of range: %d:%d", i, c.ProgramIndex)
		}
		if c.ProgramIndex == 0 {
			return errors.Errorf("instruction %d invokes the fee payer", i)
		}
		for _, index := range c.Accounts {
			if int(index) >= len(t.Message.Accounts) {
				return errors.Errorf("account index out of range: %d:%d", i, index)
			}
		}
	}

	return nil
}

// VerifySignatures checks every required signature against the serialized
// message.
func (t *Transaction) VerifySignatures() error {
	if len(t.Signatures) > len(t.Message.Accounts) {
		return errors.New("more signatures than accounts")
	}

	message := t.Message.Marshal()
	for i, sig := range t.Signatures {
		if !ed25519.Verify(t.Message.Accounts[i].PublicKey(), message, sig[:]) {
			return errors.Errorf("invalid signature for account %s at index %d", t.Message.Accounts[i], i)
		}
	}

	return nil
}

// Signers returns the identities whose signatures the transaction carries.
func (t *Transaction) Signers() []Identity {
	n := int(t.Message.Header.NumSignatures)
	if n > len(t.Message.Accounts) {
		n = len(t.Message.Accounts)
	}

	signers := make([]Identity, n)
	copy(signers, t.Message.Accounts[:n])
	return signers
}

func (t *Transaction) IsSigner(index int) bool {
	return index < int(t.Message.Header.NumSignatures)
}

func (t *Transaction) IsWritable(index int) bool {
	h := t.Message.Header
	numAccounts := len(t.Message.Accounts)

	if index < int(h.NumSignatures) {
		return index < int(h.NumSignatures-h.NumReadonlySigned)
	}

	return index < numAccounts-int(h.NumReadOnly)
}

// Instruction decompiles the instruction at index back into account metas
// with the transaction level signer and writable flags.
func (t *Transaction) Instruction(index int) (Instruction, error) {
	if index < 0 || index >= len(t.Message.Instructions) {
		return Instruction{}, errors.Errorf("instruction %d does not exist", index)
	}

	c := t.Message.Instructions[index]
	if int(c.ProgramIndex) >= len(t.Message.Accounts) {
		return Instruction{}, errors.Errorf("program index out of range: %d", c.ProgramIndex)
	}

	ix := Instruction{
		Program:  t.Message.Accounts[c.ProgramIndex],
		Data:     c.Data,
		Accounts: make([]AccountMeta, len(c.Accounts)),
	}

	for i, accountIndex := range c.Accounts {
		if int(accountIndex) >= len(t.Message.Accounts) {
			return Instruction{}, errors.Errorf("account index out of range: %d", accountIndex)
		}

		ix.Accounts[i] = AccountMeta{
			PublicKey:  t.Message.Accounts[accountIndex],
			IsSigner:   t.IsSigner(int(accountIndex)),
			IsWritable: t.IsWritable(int(accountIndex)),
		}
	}

	return ix, nil
}

func filterUnique(accounts []AccountMeta) []AccountMeta {
	filtered := make([]AccountMeta, 0, len(accounts))

	for i := range accounts {
		for j := range filtered {
			// If we've already seen the account before, then we should check to
			// see if we should promote any of the permissions.
			if accounts[i].PublicKey == filtered[j].PublicKey {
				if accounts[i].IsSigner {
					filtered[j].IsSigner = true
				}
				if accounts[i].IsWritable {
					filtered[j].IsWritable = true
				}
				if accounts[i].isPayer {
					filtered[j].isPayer = true
				}

				goto next
			}
		}

		filtered = append(filtered, accounts[i])
	next:
	}

	return filtered
}

func indexOf(slice []Identity, item Identity) int {
	for i, val := range slice {
		if val == item {
			return i
		}
	}

	return -1
}
