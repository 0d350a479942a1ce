package ledger

import (
	"context"

	"github.com/code-payments/code-runtime/pkg/database/query"
)

type Store interface {
	// Save atomically persists a batch of records. A record with a zero
	// Version must not exist yet, otherwise its Version must match the stored
	// one. On success every record's Version is incremented and its Id and
	// LastUpdatedAt are populated. If any record conflicts, nothing is written
	// and ErrStaleAccountState is returned.
	Save(ctx context.Context, records ...*Record) error

	// GetByAddress gets an account by its address
	GetByAddress(ctx context.Context, address string) (*Record, error)

	// GetByAddresses gets a batch of accounts by address. Addresses without a
	// stored account are absent from the result.
	GetByAddresses(ctx context.Context, addresses ...string) (map[string]*Record, error)

	// GetAllByOwner gets all accounts owned by a program
	GetAllByOwner(ctx context.Context, owner string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*Record, error)

	// GetCountByOwner gets the count of accounts owned by a program
	GetCountByOwner(ctx context.Context, owner string) (uint64, error)
}
