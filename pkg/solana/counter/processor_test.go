package counter

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-runtime/pkg/data/ledger"
	ledger_memory "github.com/code-payments/code-runtime/pkg/data/ledger/memory"
	"github.com/code-payments/code-runtime/pkg/solana"
	"github.com/code-payments/code-runtime/pkg/solana/runtime"
	"github.com/code-payments/code-runtime/pkg/solana/system"
	"github.com/code-payments/code-runtime/pkg/testutil"
)

type testEnv struct {
	ctx       context.Context
	store     ledger.Store
	processor *runtime.Processor
	program   solana.Identity

	payer    solana.Identity
	payerKey ed25519.PrivateKey
}

func setup(t *testing.T) testEnv {
	env := testEnv{
		ctx:     context.Background(),
		store:   ledger_memory.New(),
		program: testutil.NewRandomIdentity(t),
	}
	env.payer, env.payerKey = testutil.NewRandomAccount(t)

	registry := runtime.NewRegistry().
		MustRegister(system.ProgramKey, system.Process).
		MustRegister(env.program, Process)
	env.processor = runtime.New(env.store, registry, runtime.WithManualTestOverrides(&runtime.TestOverrides{}))

	return env
}

func (e testEnv) createCounter(t *testing.T) (solana.Identity, ed25519.PrivateKey) {
	address, key := testutil.NewRandomAccount(t)
	e.send(t, system.CreateAccount(address, e.program, StateSize), key)
	return address, key
}

func (e testEnv) send(t *testing.T, ix solana.Instruction, keys ...ed25519.PrivateKey) {
	_, err := e.trySend(t, ix, keys...)
	require.NoError(t, err)
}

func (e testEnv) trySend(t *testing.T, ix solana.Instruction, keys ...ed25519.PrivateKey) (solana.Transaction, error) {
	tx := solana.NewTransaction(e.payer, ix)
	tx.SetBlockhash(e.processor.LatestBlockhash())
	require.NoError(t, tx.Sign(append([]ed25519.PrivateKey{e.payerKey}, keys...)...))

	_, err := e.processor.ProcessTransaction(e.ctx, tx)
	return tx, err
}

func (e testEnv) count(t *testing.T, address solana.Identity) uint32 {
	record, err := e.store.GetByAddress(e.ctx, address.String())
	require.NoError(t, err)
	assert.Equal(t, e.program.String(), record.Owner)

	var state State
	require.NoError(t, state.Unmarshal(record.Data))
	return state.Count
}

func TestProcess_Double(t *testing.T) {
	env := setup(t)

	address, key := env.createCounter(t)
	assert.EqualValues(t, 0, env.count(t, address))

	for _, expected := range []uint32{1, 2, 4, 8} {
		env.send(t, NewDoubleInstruction(env.program, address), key)
		assert.Equal(t, expected, env.count(t, address))

		// Identical transactions are only distinguishable by their blockhash
		env.processor.ExpireBlockhash()
	}
}

func TestProcess_DuplicateTransaction(t *testing.T) {
	env := setup(t)

	address, key := env.createCounter(t)

	tx, err := env.trySend(t, NewDoubleInstruction(env.program, address), key)
	require.NoError(t, err)

	_, err = env.processor.ProcessTransaction(env.ctx, tx)
	testutil.AssertTransactionError(t, err, solana.TransactionErrorDuplicateSignature)
	assert.EqualValues(t, 1, env.count(t, address))
}

func TestProcess_ReturnData(t *testing.T) {
	env := setup(t)

	address, _ := env.createCounter(t)

	var returned []byte
	caller := testutil.NewRandomIdentity(t)
	registry := runtime.NewRegistry().
		MustRegister(env.program, Process).
		MustRegister(caller, func(ictx *runtime.InvocationContext, accounts []*runtime.AccountView, _ []byte) error {
			result, err := ictx.Invoke(NewDoubleInstruction(env.program, accounts[0].Identity))
			if err != nil {
				return err
			}
			returned = result.ReturnData
			return nil
		})
	processor := runtime.New(env.store, registry, runtime.WithManualTestOverrides(&runtime.TestOverrides{}))

	ix := solana.NewInstruction(caller, nil, solana.NewAccountMeta(address, true), solana.NewReadonlyAccountMeta(env.program, false))
	_, err := processor.ProcessInstruction(env.ctx, ix, address)
	require.NoError(t, err)

	assert.Equal(t, State{Count: 1}.Marshal(), returned)
	assert.EqualValues(t, 1, env.count(t, address))
}

func TestProcess_RequiresSignature(t *testing.T) {
	env := setup(t)

	address, _ := env.createCounter(t)

	ix := NewDoubleInstruction(env.program, address)
	ix.Accounts[0].IsSigner = false

	_, err := env.trySend(t, ix)
	testutil.AssertInstructionError(t, err, 0, solana.ErrMissingRequiredSignature)
	assert.EqualValues(t, 0, env.count(t, address))
}

func TestProcess_InvalidAccounts(t *testing.T) {
	env := setup(t)

	_, err := env.processor.ProcessInstruction(env.ctx, solana.NewInstruction(env.program, nil))
	testutil.AssertInstructionError(t, err, 0, solana.ErrNotEnoughAccountKeys)

	// Never created, so still owned by the system program
	address, key := testutil.NewRandomAccount(t)
	_, err = env.trySend(t, NewDoubleInstruction(env.program, address), key)
	testutil.AssertInstructionError(t, err, 0, solana.ErrIncorrectProgramID)

	// Owned by the program, but too large to hold a counter
	address, key = testutil.NewRandomAccount(t)
	env.send(t, system.CreateAccount(address, env.program, StateSize+1), key)

	_, err = env.trySend(t, NewDoubleInstruction(env.program, address), key)
	testutil.AssertInstructionError(t, err, 0, solana.ErrInvalidAccountData)
}
