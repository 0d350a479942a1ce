package system

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/code-payments/code-runtime/pkg/solana"
	solana_binary "github.com/code-payments/code-runtime/pkg/solana/binary"
)

// ProgramKey is the address of the system program, which owns every account
// that has not been assigned to another program.
//
// Current key: 11111111111111111111111111111111
var ProgramKey = solana.ZeroIdentity

// MaxPermittedDataLength is the largest allocation the system program makes.
//
// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/program/src/system_instruction.rs#L85
const MaxPermittedDataLength = 10 * 1024 * 1024

const (
	commandCreateAccount uint32 = iota
	commandAssign
	// nolint:varcheck,deadcode,unused
	commandTransfer
	// nolint:varcheck,deadcode,unused
	commandCreateAccountWithSeed
	// nolint:varcheck,deadcode,unused
	commandAdvanceNonceAccount
	// nolint:varcheck,deadcode,unused
	commandWithdrawNonceAccount
	// nolint:varcheck,deadcode,unused
	commandInitializeNonceAccount
	// nolint:varcheck,deadcode,unused
	commandAuthorizeNonceAccount
	commandAllocate
)

const (
	createAccountDataSize = 4 + 8 + solana.IdentitySize
	assignDataSize        = 4 + solana.IdentitySize
	allocateDataSize      = 4 + 8
)

// CreateAccount allocates size zeroed bytes for address and assigns it to
// owner. There are no lamports, so no funding account is involved.
func CreateAccount(address, owner solana.Identity, size uint64) solana.Instruction {
	// # Account references
	//   0. [WRITE, SIGNER] New account
	//
	// CreateAccount {
	//   // Number of bytes of memory to allocate
	//   space: u64,
	//
	//   // Address of program that will own the new account
	//   owner: Pubkey,
	// }
	//
	data := make([]byte, createAccountDataSize)

	var offset int
	solana_binary.PutUint32(data[offset:], commandCreateAccount, &offset)
	solana_binary.PutUint64(data[offset:], size, &offset)
	solana_binary.PutKey32(data[offset:], owner, &offset)

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(address, true),
	)
}

type DecompiledCreateAccount struct {
	Address solana.Identity
	Size    uint64
	Owner   solana.Identity
}

func DecompileCreateAccount(m solana.Message, index int) (*DecompiledCreateAccount, error) {
	i, err := getInstruction(m, index, commandCreateAccount)
	if err != nil {
		return nil, err
	}

	if len(i.Accounts) != 1 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(i.Accounts))
	}
	if len(i.Data) != createAccountDataSize {
		return nil, errors.Errorf("invalid instruction data size: %d", len(i.Data))
	}

	v := &DecompiledCreateAccount{
		Address: m.Accounts[i.Accounts[0]],
	}

	offset := 4
	solana_binary.GetUint64(i.Data[offset:], &v.Size, &offset)
	solana_binary.GetKey32(i.Data[offset:], &v.Owner, &offset)

	return v, nil
}

// Assign hands address over to owner. Only the system program may do this,
// and only for accounts it still owns.
//
// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/system_instruction.rs#L74-L78
func Assign(address, owner solana.Identity) solana.Instruction {
	// # Account references
	//   0. [WRITE, SIGNER] Assigned account public key
	//
	// Assign {
	//   // Owner program account
	//   owner: Pubkey,
	// }
	//
	data := make([]byte, assignDataSize)

	var offset int
	solana_binary.PutUint32(data[offset:], commandAssign, &offset)
	solana_binary.PutKey32(data[offset:], owner, &offset)

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(address, true),
	)
}

type DecompiledAssign struct {
	Address solana.Identity
	Owner   solana.Identity
}

func DecompileAssign(m solana.Message, index int) (*DecompiledAssign, error) {
	i, err := getInstruction(m, index, commandAssign)
	if err != nil {
		return nil, err
	}

	if len(i.Accounts) != 1 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(i.Accounts))
	}
	if len(i.Data) != assignDataSize {
		return nil, errors.Errorf("invalid instruction data size: %d", len(i.Data))
	}

	v := &DecompiledAssign{
		Address: m.Accounts[i.Accounts[0]],
	}

	offset := 4
	solana_binary.GetKey32(i.Data[offset:], &v.Owner, &offset)

	return v, nil
}

// Allocate sizes a system owned account's data without assigning it.
//
// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/system_instruction.rs#L200-L205
func Allocate(address solana.Identity, size uint64) solana.Instruction {
	// # Account references
	//   0. [WRITE, SIGNER] New account
	//
	// Allocate {
	//   // Number of bytes of memory to allocate
	//   space: u64,
	// }
	//
	data := make([]byte, allocateDataSize)

	var offset int
	solana_binary.PutUint32(data[offset:], commandAllocate, &offset)
	solana_binary.PutUint64(data[offset:], size, &offset)

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(address, true),
	)
}

func getInstruction(m solana.Message, index int, command uint32) (*solana.CompiledInstruction, error) {
	if index >= len(m.Instructions) {
		return nil, errors.Errorf("instruction doesn't exist at %d", index)
	}

	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], command)
	i := m.Instructions[index]

	if m.Accounts[i.ProgramIndex] != ProgramKey {
		return nil, solana.ErrIncorrectProgram
	}
	if !bytes.HasPrefix(i.Data, prefix[:]) {
		return nil, solana.ErrIncorrectInstruction
	}

	return &i, nil
}
