package postgres

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/code-payments/code-runtime/pkg/data/ledger"
	pgutil "github.com/code-payments/code-runtime/pkg/database/postgres"
	q "github.com/code-payments/code-runtime/pkg/database/query"
)

const (
	tableName = "runtime__core_ledgeraccount"

	allColumns = `id, address, owner, data, version, last_updated_at`
)

type model struct {
	Id sql.NullInt64 `db:"id"`

	Address string `db:"address"`
	Owner   string `db:"owner"`
	Data    []byte `db:"data"`

	Version uint64 `db:"version"`

	LastUpdatedAt time.Time `db:"last_updated_at"`
}

func toModel(obj *ledger.Record) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	data := obj.Data
	if data == nil {
		data = []byte{}
	}

	return &model{
		Address:       obj.Address,
		Owner:         obj.Owner,
		Data:          data,
		Version:       obj.Version,
		LastUpdatedAt: obj.LastUpdatedAt,
	}, nil
}

func fromModel(obj *model) *ledger.Record {
	return &ledger.Record{
		Id:            uint64(obj.Id.Int64),
		Address:       obj.Address,
		Owner:         obj.Owner,
		Data:          obj.Data,
		Version:       obj.Version,
		LastUpdatedAt: obj.LastUpdatedAt,
	}
}

// dbSaveBatch writes every model within a single serializable transaction.
// Any row that fails its version check aborts and rolls back the whole batch.
// Serialization failures are retried, unless the batch joins a transaction
// scoped to ctx, in which case the owner of that transaction decides.
func dbSaveBatch(ctx context.Context, db *sqlx.DB, models ...*model) error {
	var err error
	if pgutil.IsInTx(ctx) {
		err = dbSaveBatchOnce(ctx, db, models)
	} else {
		err = pgutil.ExecuteRetryable(func() error {
			return dbSaveBatchOnce(ctx, db, models)
		})
	}
	if pgutil.IsSerializationFailure(err) {
		return ledger.ErrStaleAccountState
	}
	return err
}

// dbSaveBatchOnce works on copies so that a rolled back attempt leaves models
// untouched for the next one.
func dbSaveBatchOnce(ctx context.Context, db *sqlx.DB, models []*model) error {
	attempt := make([]*model, len(models))
	for i, m := range models {
		cloned := *m
		attempt[i] = &cloned
	}

	err := pgutil.ExecuteInTx(ctx, db, sql.LevelSerializable, func(tx *sqlx.Tx) error {
		now := time.Now()
		for _, m := range attempt {
			m.LastUpdatedAt = now

			var err error
			if m.Version == 0 {
				err = m.dbInsert(ctx, tx)
			} else {
				err = m.dbUpdate(ctx, tx)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for i, m := range attempt {
		*models[i] = *m
	}
	return nil
}

func (m *model) dbInsert(ctx context.Context, tx *sqlx.Tx) error {
	query := `INSERT INTO ` + tableName + `
		(address, owner, data, version, last_updated_at)
		VALUES ($1, $2, $3, 1, $4)

		ON CONFLICT (address) DO NOTHING

		RETURNING ` + allColumns

	err := tx.QueryRowxContext(
		ctx,
		query,
		m.Address,
		m.Owner,
		m.Data,
		m.LastUpdatedAt.UTC(),
	).StructScan(m)

	return pgutil.CheckNoRows(err, ledger.ErrStaleAccountState)
}

func (m *model) dbUpdate(ctx context.Context, tx *sqlx.Tx) error {
	query := `UPDATE ` + tableName + `
		SET owner = $2, data = $3, version = version + 1, last_updated_at = $5
		WHERE address = $1 AND version = $4

		RETURNING ` + allColumns

	err := tx.QueryRowxContext(
		ctx,
		query,
		m.Address,
		m.Owner,
		m.Data,
		m.Version,
		m.LastUpdatedAt.UTC(),
	).StructScan(m)

	return pgutil.CheckNoRows(err, ledger.ErrStaleAccountState)
}

func dbGetByAddress(ctx context.Context, db *sqlx.DB, address string) (*model, error) {
	res := &model{}

	query := `SELECT ` + allColumns + `
		FROM ` + tableName + `
		WHERE address = $1
		LIMIT 1`

	err := db.GetContext(ctx, res, query, address)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, ledger.ErrAccountNotFound)
	}
	return res, nil
}

func dbGetByAddresses(ctx context.Context, db *sqlx.DB, addresses ...string) ([]*model, error) {
	res := []*model{}
	if len(addresses) == 0 {
		return res, nil
	}

	placeholders := make([]string, len(addresses))
	args := make([]interface{}, len(addresses))
	for i, address := range addresses {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = address
	}

	query := `SELECT ` + allColumns + `
		FROM ` + tableName + `
		WHERE address IN (` + strings.Join(placeholders, ", ") + `)`

	// Reads join a transaction scoped to ctx, so loads and the commit that
	// follows them observe the same snapshot.
	err := pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &res, query, args...)
	})
	if err != nil && !pgutil.IsNoRows(err) {
		return nil, err
	}
	return res, nil
}

func dbGetAllByOwner(ctx context.Context, db *sqlx.DB, owner string, cursor q.Cursor, limit uint64, direction q.Ordering) ([]*model, error) {
	res := []*model{}

	query := `SELECT ` + allColumns + `
		FROM ` + tableName + `
		WHERE (owner = $1)
	`

	opts := []interface{}{owner}
	query, opts = q.PaginateQuery(query, opts, cursor, limit, direction)

	err := db.SelectContext(ctx, &res, query, opts...)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, ledger.ErrAccountNotFound)
	}

	if len(res) == 0 {
		return nil, ledger.ErrAccountNotFound
	}
	return res, nil
}

func dbGetCountByOwner(ctx context.Context, db *sqlx.DB, owner string) (uint64, error) {
	var res uint64

	query := `SELECT COUNT(*) FROM ` + tableName + ` WHERE owner = $1`
	err := db.GetContext(ctx, &res, query, owner)
	if err != nil {
		return 0, err
	}

	return res, nil
}
