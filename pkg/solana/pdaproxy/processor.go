package pdaproxy

import (
	"github.com/pkg/errors"

	"github.com/code-payments/code-runtime/pkg/solana"
	"github.com/code-payments/code-runtime/pkg/solana/counter"
	"github.com/code-payments/code-runtime/pkg/solana/runtime"
	"github.com/code-payments/code-runtime/pkg/solana/system"
)

// Process is the program's entrypoint.
func Process(ictx *runtime.InvocationContext, accounts []*runtime.AccountView, data []byte) error {
	if len(data) != 1 {
		return errors.Wrapf(solana.ErrInvalidInstructionData, "invalid data size: %d", len(data))
	}
	if len(accounts) < 3 {
		return solana.ErrNotEnoughAccountKeys
	}

	dataAccount, user, counterProgram := accounts[0], accounts[1], accounts[2]

	proof, err := deriveProof(ictx.ProgramID(), dataAccount.Identity, user.Identity)
	if err != nil {
		return err
	}

	switch data[0] {
	case commandInitialize:
		if !user.IsSigner {
			return errors.Wrapf(solana.ErrMissingRequiredSignature, "user %s must sign", user.Identity)
		}

		_, err := ictx.Invoke(
			system.CreateAccount(dataAccount.Identity, counterProgram.Identity, counter.StateSize),
			proof,
		)
		return err
	case commandDouble:
		result, err := ictx.Invoke(
			counter.NewDoubleInstruction(counterProgram.Identity, dataAccount.Identity),
			proof,
		)
		if err != nil {
			return err
		}

		ictx.SetReturnData(result.ReturnData)
		return nil
	default:
		return errors.Wrapf(solana.ErrInvalidInstructionData, "unknown command: %d", data[0])
	}
}

func deriveProof(program, dataAccount, user solana.Identity) (runtime.AuthorityProof, error) {
	address, bump, err := GetDataAccountAddress(program, user)
	if err != nil {
		return runtime.AuthorityProof{}, errors.Wrap(solana.ErrInvalidArgument, err.Error())
	}
	if address != dataAccount {
		return runtime.AuthorityProof{}, errors.Wrapf(solana.ErrInvalidArgument, "%s is not the data account of %s", dataAccount, user)
	}

	return runtime.AuthorityProof{
		Seeds: DataAccountSeeds(user),
		Bump:  bump,
	}, nil
}
