package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/code-payments/code-runtime/pkg/data/ledger"
	"github.com/code-payments/code-runtime/pkg/database/query"
)

type store struct {
	db *sqlx.DB
}

// New returns a new postgres-backed ledger.Store
func New(db *sql.DB) ledger.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

// Save implements ledger.Store.Save
func (s *store) Save(ctx context.Context, records ...*ledger.Record) error {
	if err := ledger.ValidateBatch(records...); err != nil {
		return err
	}

	models := make([]*model, len(records))
	for i, record := range records {
		model, err := toModel(record)
		if err != nil {
			return err
		}
		models[i] = model
	}

	if err := dbSaveBatch(ctx, s.db, models...); err != nil {
		return err
	}

	for i, model := range models {
		fromModel(model).CopyTo(records[i])
	}

	return nil
}

// GetByAddress implements ledger.Store.GetByAddress
func (s *store) GetByAddress(ctx context.Context, address string) (*ledger.Record, error) {
	model, err := dbGetByAddress(ctx, s.db, address)
	if err != nil {
		return nil, err
	}

	return fromModel(model), nil
}

// GetByAddresses implements ledger.Store.GetByAddresses
func (s *store) GetByAddresses(ctx context.Context, addresses ...string) (map[string]*ledger.Record, error) {
	models, err := dbGetByAddresses(ctx, s.db, addresses...)
	if err != nil {
		return nil, err
	}

	res := make(map[string]*ledger.Record, len(models))
	for _, model := range models {
		res[model.Address] = fromModel(model)
	}
	return res, nil
}

// GetAllByOwner implements ledger.Store.GetAllByOwner
func (s *store) GetAllByOwner(ctx context.Context, owner string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*ledger.Record, error) {
	if err := cursor.Validate(); err != nil {
		return nil, err
	}

	models, err := dbGetAllByOwner(ctx, s.db, owner, cursor, limit, direction)
	if err != nil {
		return nil, err
	}

	res := make([]*ledger.Record, len(models))
	for i, model := range models {
		res[i] = fromModel(model)
	}
	return res, nil
}

// GetCountByOwner implements ledger.Store.GetCountByOwner
func (s *store) GetCountByOwner(ctx context.Context, owner string) (uint64, error) {
	return dbGetCountByOwner(ctx, s.db, owner)
}
