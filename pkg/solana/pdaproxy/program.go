// Package pdaproxy implements a program that owns counters on behalf of users.
// Each user's counter lives at an address derived from the program, and the
// program signs for it when creating or doubling the counter.
package pdaproxy

import (
	"github.com/pkg/errors"

	"github.com/code-payments/code-runtime/pkg/solana"
	"github.com/code-payments/code-runtime/pkg/solana/system"
)

const (
	commandInitialize uint8 = iota
	commandDouble
)

var dataAccountPrefix = []byte("data_account")

// DataAccountSeeds returns the seeds of user's data account.
func DataAccountSeeds(user solana.Identity) [][]byte {
	return [][]byte{
		dataAccountPrefix,
		user[:],
	}
}

// GetDataAccountAddress returns the address of user's data account under
// program, along with its bump.
func GetDataAccountAddress(program, user solana.Identity) (solana.Identity, uint8, error) {
	return solana.FindProgramAddressAndBump(program, DataAccountSeeds(user)...)
}

// NewInitializeInstruction returns an instruction that creates user's counter.
func NewInitializeInstruction(program, user, counterProgram solana.Identity) (solana.Instruction, error) {
	dataAccount, _, err := GetDataAccountAddress(program, user)
	if err != nil {
		return solana.Instruction{}, errors.Wrap(err, "error deriving data account address")
	}

	// # Account references
	//   0. [WRITE] Data account
	//   1. [SIGNER] User
	//   2. [] Counter program
	//   3. [] System program
	return solana.NewInstruction(
		program,
		[]byte{commandInitialize},
		solana.NewAccountMeta(dataAccount, false),
		solana.NewReadonlyAccountMeta(user, true),
		solana.NewReadonlyAccountMeta(counterProgram, false),
		solana.NewReadonlyAccountMeta(system.ProgramKey, false),
	), nil
}

// NewDoubleInstruction returns an instruction that doubles user's counter.
// The user does not need to sign.
func NewDoubleInstruction(program, user, counterProgram solana.Identity) (solana.Instruction, error) {
	dataAccount, _, err := GetDataAccountAddress(program, user)
	if err != nil {
		return solana.Instruction{}, errors.Wrap(err, "error deriving data account address")
	}

	// # Account references
	//   0. [WRITE] Data account
	//   1. [] User
	//   2. [] Counter program
	return solana.NewInstruction(
		program,
		[]byte{commandDouble},
		solana.NewAccountMeta(dataAccount, false),
		solana.NewReadonlyAccountMeta(user, false),
		solana.NewReadonlyAccountMeta(counterProgram, false),
	), nil
}
