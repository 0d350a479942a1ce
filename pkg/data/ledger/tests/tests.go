package tests

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-runtime/pkg/data/ledger"
	"github.com/code-payments/code-runtime/pkg/database/query"
	"github.com/code-payments/code-runtime/pkg/testutil"
)

func RunTests(t *testing.T, s ledger.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s ledger.Store){
		testHappyPath,
		testOptimisticVersioning,
		testAtomicBatch,
		testBatchedReads,
		testGetAllByOwner,
		testGetCountByOwner,
	} {
		tf(t, s)
		teardown()
	}
}

func testHappyPath(t *testing.T, s ledger.Store) {
	t.Run("testHappyPath", func(t *testing.T) {
		start := time.Now()

		ctx := context.Background()

		expected := &ledger.Record{
			Address: testutil.NewRandomIdentity(t).String(),
			Owner:   testutil.NewRandomIdentity(t).String(),
			Data:    []byte{0, 0, 0, 0},
		}
		cloned := expected.Clone()

		_, err := s.GetByAddress(ctx, expected.Address)
		assert.Equal(t, ledger.ErrAccountNotFound, err)

		require.NoError(t, s.Save(ctx, expected))
		assert.True(t, expected.Id > 0)
		assert.EqualValues(t, 1, expected.Version)
		assert.True(t, expected.LastUpdatedAt.After(start))

		actual, err := s.GetByAddress(ctx, expected.Address)
		require.NoError(t, err)
		assertEquivalentRecords(t, cloned, actual)
		assert.Equal(t, expected.Id, actual.Id)
		assert.EqualValues(t, 1, actual.Version)

		actual.Data = []byte{1, 0, 0, 0}
		require.NoError(t, s.Save(ctx, actual))
		assert.EqualValues(t, 2, actual.Version)
		assert.Equal(t, expected.Id, actual.Id)

		updated, err := s.GetByAddress(ctx, expected.Address)
		require.NoError(t, err)
		assertEquivalentRecords(t, actual, updated)
		assert.EqualValues(t, 2, updated.Version)

		// Reassigning the owner is a regular write
		updated.Owner = testutil.NewRandomIdentity(t).String()
		require.NoError(t, s.Save(ctx, updated))

		final, err := s.GetByAddress(ctx, expected.Address)
		require.NoError(t, err)
		assertEquivalentRecords(t, updated, final)
		assert.EqualValues(t, 3, final.Version)
	})
}

func testOptimisticVersioning(t *testing.T, s ledger.Store) {
	t.Run("testOptimisticVersioning", func(t *testing.T) {
		ctx := context.Background()

		record := &ledger.Record{
			Address: testutil.NewRandomIdentity(t).String(),
			Owner:   testutil.NewRandomIdentity(t).String(),
			Data:    []byte{1},
		}
		require.NoError(t, s.Save(ctx, record.Clone()))

		// Creating an account that already exists
		assert.Equal(t, ledger.ErrStaleAccountState, s.Save(ctx, record.Clone()))

		// Two writers read the same version, only the first one wins
		first, err := s.GetByAddress(ctx, record.Address)
		require.NoError(t, err)
		second := first.Clone()

		first.Data = []byte{2}
		require.NoError(t, s.Save(ctx, first))

		second.Data = []byte{3}
		assert.Equal(t, ledger.ErrStaleAccountState, s.Save(ctx, second))

		// Updating an account that was never created
		missing := &ledger.Record{
			Address: testutil.NewRandomIdentity(t).String(),
			Owner:   testutil.NewRandomIdentity(t).String(),
			Version: 1,
		}
		assert.Equal(t, ledger.ErrStaleAccountState, s.Save(ctx, missing))

		actual, err := s.GetByAddress(ctx, record.Address)
		require.NoError(t, err)
		assert.Equal(t, []byte{2}, actual.Data)
		assert.EqualValues(t, 2, actual.Version)

		_, err = s.GetByAddress(ctx, missing.Address)
		assert.Equal(t, ledger.ErrAccountNotFound, err)
	})
}

func testAtomicBatch(t *testing.T, s ledger.Store) {
	t.Run("testAtomicBatch", func(t *testing.T) {
		ctx := context.Background()

		owner := testutil.NewRandomIdentity(t).String()

		existing := &ledger.Record{
			Address: testutil.NewRandomIdentity(t).String(),
			Owner:   owner,
			Data:    []byte{1},
		}
		require.NoError(t, s.Save(ctx, existing))

		// The stale record is last so the earlier ones would have been written
		// by a non-atomic implementation.
		fresh := &ledger.Record{
			Address: testutil.NewRandomIdentity(t).String(),
			Owner:   owner,
			Data:    []byte{7},
		}
		stale := existing.Clone()
		stale.Version = 0
		assert.Equal(t, ledger.ErrStaleAccountState, s.Save(ctx, fresh, stale))

		_, err := s.GetByAddress(ctx, fresh.Address)
		assert.Equal(t, ledger.ErrAccountNotFound, err)

		// Duplicate addresses are rejected outright
		dup := existing.Clone()
		assert.Error(t, s.Save(ctx, existing, dup))

		// Invalid records are rejected
		assert.Error(t, s.Save(ctx, &ledger.Record{Address: "invalid", Owner: owner}))
		assert.Error(t, s.Save(ctx, &ledger.Record{Address: fresh.Address}))

		// A valid batch commits every record
		existing.Data = []byte{2}
		require.NoError(t, s.Save(ctx, fresh, existing))
		assert.EqualValues(t, 1, fresh.Version)
		assert.EqualValues(t, 2, existing.Version)

		count, err := s.GetCountByOwner(ctx, owner)
		require.NoError(t, err)
		assert.EqualValues(t, 2, count)
	})
}

func testBatchedReads(t *testing.T, s ledger.Store) {
	t.Run("testBatchedReads", func(t *testing.T) {
		ctx := context.Background()

		owner := testutil.NewRandomIdentity(t).String()

		var records []*ledger.Record
		var addresses []string
		for i := 0; i < 5; i++ {
			record := &ledger.Record{
				Address: testutil.NewRandomIdentity(t).String(),
				Owner:   owner,
				Data:    []byte{byte(i)},
			}
			records = append(records, record)
			addresses = append(addresses, record.Address)
		}

		res, err := s.GetByAddresses(ctx, addresses...)
		require.NoError(t, err)
		assert.Empty(t, res)

		require.NoError(t, s.Save(ctx, records[:3]...))

		missing := testutil.NewRandomIdentity(t).String()
		res, err = s.GetByAddresses(ctx, append(addresses, missing)...)
		require.NoError(t, err)
		require.Len(t, res, 3)
		for _, record := range records[:3] {
			actual, ok := res[record.Address]
			require.True(t, ok)
			assertEquivalentRecords(t, record, actual)
		}
		for _, record := range records[3:] {
			_, ok := res[record.Address]
			assert.False(t, ok)
		}
		_, ok := res[missing]
		assert.False(t, ok)

		res, err = s.GetByAddresses(ctx)
		require.NoError(t, err)
		assert.Empty(t, res)
	})
}

func testGetAllByOwner(t *testing.T, s ledger.Store) {
	t.Run("testGetAllByOwner", func(t *testing.T) {
		ctx := context.Background()

		owner := testutil.NewRandomIdentity(t).String()
		other := testutil.NewRandomIdentity(t).String()

		_, err := s.GetAllByOwner(ctx, owner, query.EmptyCursor, 10, query.Ascending)
		assert.Equal(t, ledger.ErrAccountNotFound, err)

		var expected []*ledger.Record
		for i := 0; i < 5; i++ {
			record := &ledger.Record{
				Address: testutil.NewRandomIdentity(t).String(),
				Owner:   owner,
				Data:    []byte{byte(i)},
			}
			require.NoError(t, s.Save(ctx, record))
			expected = append(expected, record)

			require.NoError(t, s.Save(ctx, &ledger.Record{
				Address: testutil.NewRandomIdentity(t).String(),
				Owner:   other,
			}))
		}

		actual, err := s.GetAllByOwner(ctx, owner, query.EmptyCursor, 10, query.Ascending)
		require.NoError(t, err)
		require.Len(t, actual, 5)
		for i := range actual {
			assertEquivalentRecords(t, expected[i], actual[i])
		}

		actual, err = s.GetAllByOwner(ctx, owner, query.EmptyCursor, 10, query.Descending)
		require.NoError(t, err)
		require.Len(t, actual, 5)
		for i := range actual {
			assertEquivalentRecords(t, expected[4-i], actual[i])
		}

		actual, err = s.GetAllByOwner(ctx, owner, query.EmptyCursor, 2, query.Ascending)
		require.NoError(t, err)
		require.Len(t, actual, 2)
		assertEquivalentRecords(t, expected[0], actual[0])
		assertEquivalentRecords(t, expected[1], actual[1])

		actual, err = s.GetAllByOwner(ctx, owner, query.ToCursor(actual[1].Id), 2, query.Ascending)
		require.NoError(t, err)
		require.Len(t, actual, 2)
		assertEquivalentRecords(t, expected[2], actual[0])
		assertEquivalentRecords(t, expected[3], actual[1])

		actual, err = s.GetAllByOwner(ctx, owner, query.ToCursor(expected[2].Id), 10, query.Descending)
		require.NoError(t, err)
		require.Len(t, actual, 2)
		assertEquivalentRecords(t, expected[1], actual[0])
		assertEquivalentRecords(t, expected[0], actual[1])

		_, err = s.GetAllByOwner(ctx, owner, query.ToCursor(expected[4].Id), 10, query.Ascending)
		assert.Equal(t, ledger.ErrAccountNotFound, err)

		_, err = s.GetAllByOwner(ctx, owner, query.Cursor([]byte{1}), 10, query.Ascending)
		assert.True(t, errors.Is(err, query.ErrInvalidCursor))
	})
}

func testGetCountByOwner(t *testing.T, s ledger.Store) {
	t.Run("testGetCountByOwner", func(t *testing.T) {
		ctx := context.Background()

		owner := testutil.NewRandomIdentity(t).String()

		count, err := s.GetCountByOwner(ctx, owner)
		require.NoError(t, err)
		assert.EqualValues(t, 0, count)

		for i := 0; i < 3; i++ {
			require.NoError(t, s.Save(ctx, &ledger.Record{
				Address: testutil.NewRandomIdentity(t).String(),
				Owner:   owner,
			}))

			count, err = s.GetCountByOwner(ctx, owner)
			require.NoError(t, err)
			assert.EqualValues(t, i+1, count)
		}
	})
}

func assertEquivalentRecords(t *testing.T, obj1, obj2 *ledger.Record) {
	assert.Equal(t, obj1.Address, obj2.Address)
	assert.Equal(t, obj1.Owner, obj2.Owner)
	assert.True(t, bytes.Equal(obj1.Data, obj2.Data), "data mismatch: %x != %x", obj1.Data, obj2.Data)
}
