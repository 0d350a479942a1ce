package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/code-payments/code-runtime/pkg/data/ledger"
	"github.com/code-payments/code-runtime/pkg/database/query"
)

type store struct {
	mu      sync.Mutex
	records []*ledger.Record
	last    uint64
}

type ById []*ledger.Record

func (a ById) Len() int           { return len(a) }
func (a ById) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a ById) Less(i, j int) bool { return a[i].Id < a[j].Id }

// New returns a new in memory ledger.Store
func New() ledger.Store {
	return &store{}
}

// Save implements ledger.Store.Save
func (s *store) Save(_ context.Context, records ...*ledger.Record) error {
	if err := ledger.ValidateBatch(records...); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check every record before touching any of them so a conflict leaves the
	// store untouched.
	for _, record := range records {
		item := s.findByAddress(record.Address)
		if record.Version == 0 && item != nil {
			return ledger.ErrStaleAccountState
		}
		if record.Version != 0 && (item == nil || item.Version != record.Version) {
			return ledger.ErrStaleAccountState
		}
	}

	now := time.Now()
	for _, record := range records {
		if item := s.findByAddress(record.Address); item != nil {
			item.Owner = record.Owner
			item.Data = make([]byte, len(record.Data))
			copy(item.Data, record.Data)
			item.Version++
			item.LastUpdatedAt = now

			item.CopyTo(record)
			continue
		}

		s.last++
		record.Id = s.last
		record.Version = 1
		record.LastUpdatedAt = now
		s.records = append(s.records, record.Clone())
	}

	return nil
}

// GetByAddress implements ledger.Store.GetByAddress
func (s *store) GetByAddress(_ context.Context, address string) (*ledger.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.findByAddress(address); item != nil {
		return item.Clone(), nil
	}
	return nil, ledger.ErrAccountNotFound
}

// GetByAddresses implements ledger.Store.GetByAddresses
func (s *store) GetByAddresses(_ context.Context, addresses ...string) (map[string]*ledger.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make(map[string]*ledger.Record)
	for _, address := range addresses {
		if item := s.findByAddress(address); item != nil {
			res[address] = item.Clone()
		}
	}
	return res, nil
}

// GetAllByOwner implements ledger.Store.GetAllByOwner
func (s *store) GetAllByOwner(_ context.Context, owner string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*ledger.Record, error) {
	if err := cursor.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if items := s.findByOwner(owner); len(items) > 0 {
		res := s.filter(items, cursor, limit, direction)

		if len(res) == 0 {
			return nil, ledger.ErrAccountNotFound
		}

		return res, nil
	}

	return nil, ledger.ErrAccountNotFound
}

// GetCountByOwner implements ledger.Store.GetCountByOwner
func (s *store) GetCountByOwner(_ context.Context, owner string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return uint64(len(s.findByOwner(owner))), nil
}

func (s *store) findByAddress(address string) *ledger.Record {
	for _, item := range s.records {
		if address == item.Address {
			return item
		}
	}
	return nil
}

func (s *store) findByOwner(owner string) []*ledger.Record {
	res := make([]*ledger.Record, 0)
	for _, item := range s.records {
		if item.Owner == owner {
			res = append(res, item.Clone())
		}
	}
	return res
}

func (s *store) filter(items []*ledger.Record, cursor query.Cursor, limit uint64, direction query.Ordering) []*ledger.Record {
	var res []*ledger.Record
	for _, item := range items {
		if direction.Admits(item.Id, cursor) {
			res = append(res, item)
		}
	}

	if direction == query.Descending {
		sort.Sort(sort.Reverse(ById(res)))
	} else {
		sort.Sort(ById(res))
	}

	if limit > 0 && len(res) >= int(limit) {
		return res[:limit]
	}

	return res
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.last = 0
}
