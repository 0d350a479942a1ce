package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/code-payments/code-runtime/pkg/data/ledger"
	ledger_memory_client "github.com/code-payments/code-runtime/pkg/data/ledger/memory"
	ledger_postgres_client "github.com/code-payments/code-runtime/pkg/data/ledger/postgres"
	pg "github.com/code-payments/code-runtime/pkg/database/postgres"
)

// Provider is a ledger.Store that can scope several store calls to a single
// database transaction.
type Provider struct {
	ledger.Store

	db *sqlx.DB
}

// NewPostgresLedger opens the database described by dbConfig and returns a
// Provider backed by it.
func NewPostgresLedger(dbConfig *pg.Config) (*Provider, error) {
	db, err := pg.New(dbConfig)
	if err != nil {
		return nil, err
	}

	db.SetConnMaxIdleTime(time.Hour)
	db.SetConnMaxLifetime(time.Hour)

	return NewPostgresLedgerFromDB(db), nil
}

// NewPostgresLedgerFromDB returns a Provider over an already opened database
func NewPostgresLedgerFromDB(db *sql.DB) *Provider {
	return &Provider{
		Store: ledger_postgres_client.New(db),
		db:    sqlx.NewDb(db, "pgx"),
	}
}

func NewTestLedger() *Provider {
	return &Provider{
		Store: ledger_memory_client.New(),
	}
}

// ExecuteInTx executes fn with a single DB transaction that is scoped to the
// call. Without a database, fn simply runs. A transaction that loses a
// serialization race is reported as ledger.ErrStaleAccountState.
func (p *Provider) ExecuteInTx(ctx context.Context, isolation sql.IsolationLevel, fn func(ctx context.Context) error) error {
	if p.db == nil {
		return fn(ctx)
	}

	err := pg.ExecuteTxWithinCtx(ctx, p.db, isolation, fn)
	if pg.IsSerializationFailure(err) {
		return ledger.ErrStaleAccountState
	}
	return err
}
