package counter

import (
	"github.com/pkg/errors"

	"github.com/code-payments/code-runtime/pkg/solana"
	"github.com/code-payments/code-runtime/pkg/solana/runtime"
)

// NewDoubleInstruction returns an instruction that doubles the counter held
// by dataAccount. The counter program has no fixed address, so the caller
// names the one it registered.
func NewDoubleInstruction(program, dataAccount solana.Identity) solana.Instruction {
	// # Account references
	//   0. [WRITE, SIGNER] Counter data account
	return solana.NewInstruction(
		program,
		nil,
		solana.NewAccountMeta(dataAccount, true),
	)
}

// Process is the counter program's entrypoint. The data account must sign
// and be owned by the program.
func Process(ictx *runtime.InvocationContext, accounts []*runtime.AccountView, _ []byte) error {
	if len(accounts) < 1 {
		return solana.ErrNotEnoughAccountKeys
	}

	dataAccount := accounts[0]
	if !dataAccount.IsSigner {
		return errors.Wrapf(solana.ErrMissingRequiredSignature, "data account %s must sign", dataAccount.Identity)
	}
	if !dataAccount.IsOwnedBy(ictx.ProgramID()) {
		return errors.Wrapf(solana.ErrIncorrectProgramID, "data account %s is owned by %s", dataAccount.Identity, dataAccount.Owner)
	}

	var state State
	if err := state.Unmarshal(dataAccount.Data); err != nil {
		return errors.Wrap(solana.ErrInvalidAccountData, err.Error())
	}

	next := Apply(state)
	copy(dataAccount.Data, next.Marshal())

	ictx.Log("count: %d -> %d", state.Count, next.Count)
	ictx.SetReturnData(next.Marshal())

	return nil
}
