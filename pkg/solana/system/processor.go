package system

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/code-payments/code-runtime/pkg/solana"
	solana_binary "github.com/code-payments/code-runtime/pkg/solana/binary"
	"github.com/code-payments/code-runtime/pkg/solana/runtime"
)

// Process is the system program's entrypoint.
func Process(ictx *runtime.InvocationContext, accounts []*runtime.AccountView, data []byte) error {
	if len(data) < 4 {
		return solana.ErrInvalidInstructionData
	}
	if len(accounts) < 1 {
		return solana.ErrNotEnoughAccountKeys
	}

	target := accounts[0]

	switch binary.LittleEndian.Uint32(data) {
	case commandCreateAccount:
		if len(data) != createAccountDataSize {
			return solana.ErrInvalidInstructionData
		}

		var size uint64
		var owner solana.Identity
		offset := 4
		solana_binary.GetUint64(data[offset:], &size, &offset)
		solana_binary.GetKey32(data[offset:], &owner, &offset)

		ictx.Log("Create: %s size %d owner %s", target.Identity, size, owner)

		if err := allocate(target, size); err != nil {
			return err
		}
		return assign(target, owner)

	case commandAssign:
		if len(data) != assignDataSize {
			return solana.ErrInvalidInstructionData
		}

		var owner solana.Identity
		offset := 4
		solana_binary.GetKey32(data[offset:], &owner, &offset)

		return assign(target, owner)

	case commandAllocate:
		if len(data) != allocateDataSize {
			return solana.ErrInvalidInstructionData
		}

		var size uint64
		offset := 4
		solana_binary.GetUint64(data[offset:], &size, &offset)

		return allocate(target, size)

	default:
		return solana.ErrInvalidInstructionData
	}
}

func allocate(acct *runtime.AccountView, size uint64) error {
	if !acct.IsSigner {
		return errors.Wrapf(solana.ErrMissingRequiredSignature, "allocate: account %s must sign", acct.Identity)
	}

	if len(acct.Data) != 0 || !acct.IsOwnedBy(ProgramKey) {
		return errors.Wrapf(solana.ErrAccountAlreadyInitialized, "allocate: account %s already in use", acct.Identity)
	}

	if size > MaxPermittedDataLength {
		return errors.Wrapf(solana.ErrInvalidArgument, "allocate: requested %d, max allowed %d", size, MaxPermittedDataLength)
	}

	acct.Data = make([]byte, size)
	return nil
}

func assign(acct *runtime.AccountView, owner solana.Identity) error {
	if acct.IsOwnedBy(owner) {
		return nil
	}

	if !acct.IsSigner {
		return errors.Wrapf(solana.ErrMissingRequiredSignature, "assign: account %s must sign", acct.Identity)
	}

	acct.Owner = owner
	return nil
}
