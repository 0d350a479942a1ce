package runtime

import (
	"bytes"
	"context"

	"github.com/pkg/errors"

	"github.com/code-payments/code-runtime/pkg/data/ledger"
	"github.com/code-payments/code-runtime/pkg/solana"
)

// AccountView is a program's window onto an account for the duration of a
// single invocation. Programs mutate Data and Owner in place; the runtime
// decides whether those mutations are kept when control leaves the program.
type AccountView struct {
	Identity solana.Identity
	Owner    solana.Identity
	Data     []byte

	// IsSigner is only ever set from a verified transaction signature or a
	// derived authority validated by the invoking program's context.
	IsSigner   bool
	IsWritable bool
}

// IsOwnedBy reports whether program owns the account.
func (v *AccountView) IsOwnedBy(program solana.Identity) bool {
	return v.Owner == program
}

// account is the transaction scoped state of a ledger account. Every frame's
// views are synced into it when control changes hands.
type account struct {
	id       solana.Identity
	owner    solana.Identity
	data     []byte
	writable bool
	dirty    bool

	// record is the persisted version the account was loaded from, nil when
	// the account does not exist yet.
	record *ledger.Record
}

func newAccount(id solana.Identity, writable bool, record *ledger.Record) (*account, error) {
	acct := &account{
		id:       id,
		owner:    solana.ZeroIdentity, // unknown accounts belong to the system program
		writable: writable,
		record:   record,
	}

	if record != nil {
		owner, err := solana.IdentityFromBase58(record.Owner)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid owner for account %s", id)
		}
		acct.owner = owner
		acct.data = cloneBytes(record.Data)
	}

	return acct, nil
}

func (a *account) newView(isSigner, isWritable bool) *AccountView {
	return &AccountView{
		Identity:   a.id,
		Owner:      a.owner,
		Data:       cloneBytes(a.data),
		IsSigner:   isSigner,
		IsWritable: isWritable,
	}
}

// refresh overwrites a view with the account's current state.
func (a *account) refresh(view *AccountView) {
	view.Owner = a.owner
	view.Data = cloneBytes(a.data)
}

func (a *account) changedBy(view *AccountView) bool {
	return view.Owner != a.owner || !bytes.Equal(view.Data, a.data)
}

// sync applies a frame's view to the account on behalf of program, rejecting
// any mutation the program was not entitled to make. A rejected view leaves
// the account untouched.
func (a *account) sync(program solana.Identity, fa *frameAccount, maxDataSize uint64) error {
	view := fa.view
	if !a.changedBy(view) {
		return nil
	}

	if !fa.isWritable || !a.writable {
		return errors.Wrapf(solana.ErrReadonlyDataModified, "account %s", a.id)
	}

	if view.Owner != a.owner {
		if a.owner != program || !isZeroed(view.Data) {
			return errors.Wrapf(solana.ErrModifiedProgramID, "account %s", a.id)
		}
	}

	// Data writes are judged against the owner before this frame ran, so a
	// program cannot take ownership and write in the same step.
	if !bytes.Equal(view.Data, a.data) && a.owner != program {
		return errors.Wrapf(solana.ErrExternalAccountDataModified, "account %s", a.id)
	}

	if uint64(len(view.Data)) > maxDataSize {
		return errors.Wrapf(solana.ErrInvalidArgument, "account %s data exceeds %d bytes", a.id, maxDataSize)
	}

	a.owner = view.Owner
	a.data = cloneBytes(view.Data)
	a.dirty = true
	return nil
}

// toRecord returns the record to persist for the account, or nil when
// nothing about it needs to be written.
func (a *account) toRecord() *ledger.Record {
	if !a.dirty || !a.writable {
		return nil
	}

	if a.record == nil {
		// Never materialize an account that is still empty and system owned
		if a.owner == solana.ZeroIdentity && len(a.data) == 0 {
			return nil
		}

		return &ledger.Record{
			Address: a.id.String(),
			Owner:   a.owner.String(),
			Data:    cloneBytes(a.data),
		}
	}

	record := a.record.Clone()
	record.Owner = a.owner.String()
	record.Data = cloneBytes(a.data)
	if a.record.Equals(record) {
		return nil
	}
	return record
}

// loadAccounts fetches every account in access from the store. Accounts the
// store does not know about load as empty, system owned accounts.
func loadAccounts(ctx context.Context, store ledger.Store, access map[solana.Identity]bool) (map[solana.Identity]*account, error) {
	addresses := make([]string, 0, len(access))
	for id := range access {
		addresses = append(addresses, id.String())
	}

	records, err := store.GetByAddresses(ctx, addresses...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load accounts")
	}

	accounts := make(map[solana.Identity]*account, len(access))
	for id, writable := range access {
		acct, err := newAccount(id, writable, records[id.String()])
		if err != nil {
			return nil, err
		}
		accounts[id] = acct
	}
	return accounts, nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	cloned := make([]byte, len(b))
	copy(cloned, b)
	return cloned
}

func isZeroed(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
