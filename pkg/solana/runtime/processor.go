package runtime

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-runtime/pkg/data/ledger"
	"github.com/code-payments/code-runtime/pkg/metrics"
	"github.com/code-payments/code-runtime/pkg/retry"
	"github.com/code-payments/code-runtime/pkg/retry/backoff"
	"github.com/code-payments/code-runtime/pkg/solana"
	"github.com/code-payments/code-runtime/pkg/sync"
)

// Result is the outcome of an executed transaction. It is returned alongside
// instruction errors so callers can inspect the logs of a failed execution.
type Result struct {
	Signature   solana.Signature
	Logs        []string
	Invocations []InvocationRecord
}

// transactor is implemented by stores that can scope several calls to one
// database transaction, such as data.Provider.
type transactor interface {
	ExecuteInTx(ctx context.Context, isolation sql.IsolationLevel, fn func(ctx context.Context) error) error
}

// Processor executes transactions against a ledger.Store. It is safe for
// concurrent use: transactions touching disjoint accounts run in parallel,
// while overlapping ones are serialized by a striped account lock.
type Processor struct {
	log      *logrus.Entry
	conf     *conf
	store    ledger.Store
	registry *Registry
	locks    *sync.StripedLock
	status   *statusCache
}

func New(store ledger.Store, registry *Registry, configProvider ConfigProvider) *Processor {
	conf := configProvider()
	ctx := context.Background()

	return &Processor{
		log:      logrus.StandardLogger().WithField("type", "solana/runtime/processor"),
		conf:     conf,
		store:    store,
		registry: registry,
		locks:    sync.NewStripedLock(conf.lockStripes(ctx)),
		status:   newStatusCache(conf.recentBlockhashes(ctx)),
	}
}

// LatestBlockhash returns the blockhash new transactions should reference.
func (p *Processor) LatestBlockhash() solana.Blockhash {
	return p.status.latest()
}

// ExpireBlockhash mints a new latest blockhash. Once enough newer blockhashes
// exist, transactions referencing an old one are no longer accepted.
func (p *Processor) ExpireBlockhash() solana.Blockhash {
	return p.status.expire()
}

// ProcessTransaction verifies and executes a signed transaction. Account
// changes are only committed when every instruction succeeds.
//
// Failures are reported as a *solana.TransactionError. A failed instruction
// is carried as a solana.InstructionError with its index, and the partial
// Result is returned alongside it.
func (p *Processor) ProcessTransaction(ctx context.Context, tx solana.Transaction) (*Result, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "ProcessTransaction")
	defer tracer.End()

	start := time.Now()
	defer func() {
		metrics.RecordDuration(ctx, transactionDurationMetricName, time.Since(start))
	}()

	sig := tx.Signature()
	log := p.log.WithFields(logrus.Fields{
		"method":    "ProcessTransaction",
		"signature": sig.String(),
	})

	result, err := p.processTransaction(ctx, tx)
	if err != nil {
		log.WithError(err).Debug("transaction failed")
		metrics.RecordCount(ctx, transactionFailedMetricName, 1)
		tracer.OnError(err)
	}
	metrics.RecordCount(ctx, transactionCountMetricName, 1)

	return result, err
}

func (p *Processor) processTransaction(ctx context.Context, tx solana.Transaction) (*Result, error) {
	if err := tx.Sanitize(); err != nil {
		return nil, solana.NewTransactionError(solana.TransactionErrorSanitizeFailure, err)
	}

	if err := tx.VerifySignatures(); err != nil {
		return nil, solana.NewTransactionError(solana.TransactionErrorSignatureFailure, err)
	}

	bh := tx.Message.RecentBlockhash
	if p.conf.requireRecentBlockhash.Get(ctx) && !p.status.isRecent(bh) {
		return nil, solana.NewTransactionError(solana.TransactionErrorBlockhashNotFound)
	}

	instructions := make([]solana.Instruction, len(tx.Message.Instructions))
	for i := range tx.Message.Instructions {
		ix, err := tx.Instruction(i)
		if err != nil {
			return nil, solana.NewTransactionError(solana.TransactionErrorSanitizeFailure, err)
		}

		if _, ok := p.registry.Get(ix.Program); !ok {
			return nil, solana.NewTransactionError(solana.TransactionErrorProgramAccountNotFound, errors.Errorf("program %s", ix.Program))
		}

		instructions[i] = ix
	}

	access := make(map[solana.Identity]bool, len(tx.Message.Accounts))
	for i, id := range tx.Message.Accounts {
		access[id] = tx.IsWritable(i)
	}

	signers := make(map[solana.Identity]struct{})
	for _, signer := range tx.Signers() {
		signers[signer] = struct{}{}
	}

	sig := tx.Signature()
	if !p.status.reserve(bh, sig) {
		return nil, solana.NewTransactionError(solana.TransactionErrorDuplicateSignature)
	}

	result, err := p.execute(ctx, sig, instructions, signers, access)
	if err != nil {
		var ixErr *solana.InstructionError
		if errors.As(err, &ixErr) {
			// The transaction was executed, so its signature stays spent
			return result, solana.TransactionErrorFromInstructionError(ixErr)
		}

		p.status.release(sig)
		return result, err
	}
	return result, nil
}

// ProcessInstruction executes a single instruction without a transaction
// envelope. signers are treated as verified signatures.
func (p *Processor) ProcessInstruction(ctx context.Context, ix solana.Instruction, signers ...solana.Identity) (*Result, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "ProcessInstruction")
	defer tracer.End()

	signerSet := make(map[solana.Identity]struct{}, len(signers))
	for _, signer := range signers {
		signerSet[signer] = struct{}{}
	}

	access := make(map[solana.Identity]bool, len(ix.Accounts)+1)
	access[ix.Program] = false
	for _, meta := range ix.Accounts {
		access[meta.PublicKey] = access[meta.PublicKey] || meta.IsWritable
	}

	result, err := p.execute(ctx, solana.Signature{}, []solana.Instruction{ix}, signerSet, access)
	if err != nil {
		var ixErr *solana.InstructionError
		if errors.As(err, &ixErr) {
			err = solana.TransactionErrorFromInstructionError(ixErr)
		}

		p.log.WithError(err).WithFields(logrus.Fields{
			"method":  "ProcessInstruction",
			"program": ix.Program.String(),
		}).Debug("instruction failed")
		tracer.OnError(err)
	}
	return result, err
}

// execute runs instructions in order and commits the resulting account state,
// retrying from scratch when the commit loses an optimistic concurrency race.
func (p *Processor) execute(ctx context.Context, sig solana.Signature, instructions []solana.Instruction, signers map[solana.Identity]struct{}, access map[solana.Identity]bool) (*Result, error) {
	log := p.log.WithFields(logrus.Fields{
		"method":    "execute",
		"signature": sig.String(),
	})

	keys := make([]sync.KeyAccess, 0, len(access))
	for id, writable := range access {
		id := id
		keys = append(keys, sync.KeyAccess{Key: id[:], Writable: writable})
	}

	unlock := p.locks.LockAll(keys...)
	defer unlock()

	var result *Result
	_, err := retry.Retry(
		func() error {
			var err error
			result, err = p.executeInTx(ctx, sig, instructions, signers, access)
			if errors.Is(err, ledger.ErrStaleAccountState) {
				log.WithError(err).Warn("commit conflict, retrying transaction")
				metrics.RecordCount(ctx, commitConflictMetricName, 1)
			}
			return err
		},
		retry.RetriableErrors(ledger.ErrStaleAccountState),
		retry.Context(ctx),
		retry.Limit(p.conf.commitAttempts(ctx)),
		retry.BackoffWithJitter(backoff.BinaryExponential(10*time.Millisecond), 100*time.Millisecond, 0.1),
	)
	if result != nil {
		metrics.RecordCount(ctx, invocationCountMetricName, uint64(len(result.Invocations)))
	}
	if err == nil {
		return result, nil
	}

	var ixErr *solana.InstructionError
	switch {
	case errors.As(err, &ixErr):
		return result, err
	case errors.Is(err, ledger.ErrStaleAccountState):
		return result, solana.NewTransactionError(solana.TransactionErrorAccountInUse, err)
	default:
		log.WithError(err).Warn("failure executing transaction")
		return result, solana.NewTransactionError(solana.TransactionErrorInternal, err)
	}
}

// executeInTx runs one execution attempt. When the store supports it, the
// account loads and the commit share a serializable transaction.
func (p *Processor) executeInTx(ctx context.Context, sig solana.Signature, instructions []solana.Instruction, signers map[solana.Identity]struct{}, access map[solana.Identity]bool) (*Result, error) {
	tx, ok := p.store.(transactor)
	if !ok {
		return p.executeOnce(ctx, sig, instructions, signers, access)
	}

	var result *Result
	err := tx.ExecuteInTx(ctx, sql.LevelSerializable, func(ctx context.Context) error {
		var err error
		result, err = p.executeOnce(ctx, sig, instructions, signers, access)
		return err
	})
	return result, err
}

func (p *Processor) executeOnce(ctx context.Context, sig solana.Signature, instructions []solana.Instruction, signers map[solana.Identity]struct{}, access map[solana.Identity]bool) (*Result, error) {
	accounts, err := loadAccounts(ctx, p.store, access)
	if err != nil {
		return nil, err
	}

	exec := newExecutor(
		ctx,
		p.log.WithField("signature", sig.String()),
		p.registry,
		accounts,
		p.conf.invocationDepth(ctx),
		p.conf.maxAccountDataSize.Get(ctx),
	)

	result := &Result{
		Signature: sig,
	}

	for i, ix := range instructions {
		err := exec.executeInstruction(ix, signers)

		result.Logs = exec.logs
		result.Invocations = exec.invocations

		if err != nil {
			return result, &solana.InstructionError{Index: i, Err: err}
		}
	}

	var records []*ledger.Record
	for _, acct := range accounts {
		if record := acct.toRecord(); record != nil {
			records = append(records, record)
		}
	}

	if len(records) > 0 {
		if err := p.store.Save(ctx, records...); err != nil {
			return result, err
		}
	}

	return result, nil
}
