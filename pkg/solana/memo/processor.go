package memo

import (
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/code-payments/code-runtime/pkg/solana"
	"github.com/code-payments/code-runtime/pkg/solana/runtime"
)

// Process logs the memo. Every account passed to it must be a signer, and the
// memo must be valid UTF-8.
func Process(ictx *runtime.InvocationContext, accounts []*runtime.AccountView, data []byte) error {
	for _, account := range accounts {
		if !account.IsSigner {
			return errors.Wrapf(solana.ErrMissingRequiredSignature, "account %s", account.Identity)
		}
		ictx.Log("Signed by %s", account.Identity)
	}

	if !utf8.Valid(data) {
		return errors.Wrap(solana.ErrInvalidInstructionData, "memo is not valid utf-8")
	}

	ictx.Log("Memo (len %d): %q", len(data), string(data))
	return nil
}
