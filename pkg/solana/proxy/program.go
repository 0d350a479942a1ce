// Package proxy implements a program that forwards an instruction to another
// program, passing along the signature of the account it was given.
package proxy

import (
	"github.com/pkg/errors"

	"github.com/code-payments/code-runtime/pkg/solana"
	"github.com/code-payments/code-runtime/pkg/solana/runtime"
)

// NewForwardInstruction returns an instruction that has program forward data
// to target, with dataAccount as the target's only account.
func NewForwardInstruction(program, dataAccount, target solana.Identity, data []byte) solana.Instruction {
	// # Account references
	//   0. [WRITE, SIGNER] Data account handed to the target
	//   1. [] Target program
	return solana.NewInstruction(
		program,
		data,
		solana.NewAccountMeta(dataAccount, true),
		solana.NewReadonlyAccountMeta(target, false),
	)
}

// Process forwards its instruction data to the target program. The data
// account's signature is only passed along if the proxy was given it.
func Process(ictx *runtime.InvocationContext, accounts []*runtime.AccountView, data []byte) error {
	if len(accounts) < 2 {
		return solana.ErrNotEnoughAccountKeys
	}

	dataAccount, target := accounts[0], accounts[1]

	result, err := ictx.Invoke(solana.NewInstruction(
		target.Identity,
		data,
		solana.NewAccountMeta(dataAccount.Identity, true),
	))
	if err != nil {
		return errors.Wrapf(err, "failed to invoke %s", target.Identity)
	}

	ictx.SetReturnData(result.ReturnData)
	return nil
}
