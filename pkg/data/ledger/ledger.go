package ledger

import (
	"bytes"
	"time"

	"github.com/pkg/errors"

	"github.com/code-payments/code-runtime/pkg/solana"
)

var (
	ErrAccountNotFound   = errors.New("ledger account not found")
	ErrStaleAccountState = errors.New("ledger account state is stale")
)

// Record is the persisted state of a single ledger account. Address and
// Owner are base58 encoded identities.
type Record struct {
	Id uint64

	Address string
	Owner   string
	Data    []byte

	// Version is bumped on every successful save. A zero version marks a
	// record that has never been persisted.
	Version uint64

	LastUpdatedAt time.Time
}

func (r *Record) Validate() error {
	if r == nil {
		return errors.New("record is nil")
	}

	if len(r.Address) == 0 {
		return errors.New("address is required")
	}
	if _, err := solana.IdentityFromBase58(r.Address); err != nil {
		return errors.Wrap(err, "invalid address")
	}

	if len(r.Owner) == 0 {
		return errors.New("owner is required")
	}
	if _, err := solana.IdentityFromBase58(r.Owner); err != nil {
		return errors.Wrap(err, "invalid owner")
	}

	return nil
}

func (r *Record) Clone() *Record {
	var data []byte
	if r.Data != nil {
		data = make([]byte, len(r.Data))
		copy(data, r.Data)
	}

	return &Record{
		Id:            r.Id,
		Address:       r.Address,
		Owner:         r.Owner,
		Data:          data,
		Version:       r.Version,
		LastUpdatedAt: r.LastUpdatedAt,
	}
}

func (r *Record) CopyTo(dst *Record) {
	dst.Id = r.Id
	dst.Address = r.Address
	dst.Owner = r.Owner
	dst.Data = make([]byte, len(r.Data))
	copy(dst.Data, r.Data)
	dst.Version = r.Version
	dst.LastUpdatedAt = r.LastUpdatedAt
}

// Equals compares the account contents of two records, ignoring bookkeeping
// fields.
func (r *Record) Equals(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}

	return r.Address == other.Address &&
		r.Owner == other.Owner &&
		bytes.Equal(r.Data, other.Data)
}

// ValidateBatch validates every record and rejects batches that touch the
// same address twice.
func ValidateBatch(records ...*Record) error {
	seen := make(map[string]struct{}, len(records))
	for _, record := range records {
		if err := record.Validate(); err != nil {
			return err
		}

		if _, ok := seen[record.Address]; ok {
			return errors.Errorf("duplicate address in batch: %s", record.Address)
		}
		seen[record.Address] = struct{}{}
	}
	return nil
}
