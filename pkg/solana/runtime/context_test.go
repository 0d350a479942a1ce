package runtime

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-runtime/pkg/solana"
	"github.com/code-payments/code-runtime/pkg/testutil"
)

func TestInvoke_DerivedSigner(t *testing.T) {
	env := setup(t, nil)

	var observed []bool
	checker := env.register(t, func(ictx *InvocationContext, accounts []*AccountView, _ []byte) error {
		observed = append(observed, accounts[0].IsSigner && ictx.IsSigner(accounts[0].Identity))
		return nil
	})

	var proofs []AuthorityProof
	caller := env.register(t, func(ictx *InvocationContext, accounts []*AccountView, _ []byte) error {
		_, err := ictx.Invoke(solana.NewInstruction(checker, nil, solana.NewAccountMeta(accounts[0].Identity, true)), proofs...)
		return err
	})
	other := env.register(t, noopProgram)

	seeds := [][]byte{[]byte("vault"), []byte("1")}
	pda, bump, err := solana.FindProgramAddressAndBump(caller, seeds...)
	require.NoError(t, err)

	_, otherBump, err := solana.FindProgramAddressAndBump(other, seeds...)
	require.NoError(t, err)

	ix := solana.NewInstruction(caller, nil, solana.NewAccountMeta(pda, false))

	for _, tc := range []struct {
		name   string
		proofs []AuthorityProof
	}{
		{"no proof", nil},
		{"wrong bump", []AuthorityProof{{Seeds: seeds, Bump: bump - 1}}},
		{"wrong seeds", []AuthorityProof{{Seeds: [][]byte{[]byte("vault"), []byte("2")}, Bump: bump}}},
		{"another program's bump", []AuthorityProof{{Seeds: seeds, Bump: otherBump}}},
	} {
		if tc.name == "another program's bump" && otherBump == bump {
			continue
		}

		proofs = tc.proofs
		result, err := env.processor.ProcessInstruction(env.ctx, ix)
		testutil.AssertInstructionError(t, err, 0, solana.ErrMissingRequiredAuthority)
		assert.Len(t, result.Invocations, 1, tc.name)
	}
	assert.Empty(t, observed)

	// Proofs that don't verify are ignored as long as one does
	proofs = []AuthorityProof{
		{Seeds: [][]byte{[]byte("unrelated")}, Bump: 255},
		{Seeds: seeds, Bump: bump},
	}
	result, err := env.processor.ProcessInstruction(env.ctx, ix)
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, observed)

	require.Len(t, result.Invocations, 2)
	assert.Empty(t, result.Invocations[0].Signers)
	assert.Equal(t, []solana.Identity{pda}, result.Invocations[1].Signers)
	assert.Equal(t, 2, result.Invocations[1].Depth)
}

func TestInvoke_ViewFlagsGrantNothing(t *testing.T) {
	env := setup(t, nil)
	hook := testutil.CaptureLogs(t)

	checker := env.register(t, noopProgram)

	var meta func(id solana.Identity) solana.AccountMeta
	caller := env.register(t, func(ictx *InvocationContext, accounts []*AccountView, _ []byte) error {
		accounts[0].IsSigner = true
		accounts[0].IsWritable = true

		_, err := ictx.Invoke(solana.NewInstruction(checker, nil, meta(accounts[0].Identity)))
		return err
	})

	address := testutil.NewRandomIdentity(t)
	ix := solana.NewInstruction(caller, nil, solana.NewReadonlyAccountMeta(address, false))

	meta = func(id solana.Identity) solana.AccountMeta { return solana.NewReadonlyAccountMeta(id, true) }
	_, err := env.processor.ProcessInstruction(env.ctx, ix)
	testutil.AssertInstructionError(t, err, 0, solana.ErrMissingRequiredAuthority)

	entry, ok := testutil.FindLogEntry(hook, "rejected cross-program invocation")
	require.True(t, ok)
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Equal(t, caller.String(), entry.Data["caller"])
	assert.Equal(t, checker.String(), entry.Data["callee"])
	assert.True(t, errors.Is(entry.Data[logrus.ErrorKey].(error), solana.ErrMissingRequiredAuthority))

	meta = func(id solana.Identity) solana.AccountMeta { return solana.NewAccountMeta(id, false) }
	_, err = env.processor.ProcessInstruction(env.ctx, ix)
	testutil.AssertInstructionError(t, err, 0, solana.ErrPrivilegeEscalation)

	meta = func(id solana.Identity) solana.AccountMeta { return solana.NewReadonlyAccountMeta(testutil.NewRandomIdentity(t), false) }
	_, err = env.processor.ProcessInstruction(env.ctx, ix)
	testutil.AssertInstructionError(t, err, 0, solana.ErrMissingAccount)
}

func TestInvoke_SignerPropagation(t *testing.T) {
	env := setup(t, nil)

	var signed bool
	leaf := env.register(t, func(ictx *InvocationContext, accounts []*AccountView, _ []byte) error {
		signed = accounts[0].IsSigner
		return nil
	})

	forward := func(target solana.Identity) Entrypoint {
		return func(ictx *InvocationContext, accounts []*AccountView, _ []byte) error {
			_, err := ictx.Invoke(solana.NewInstruction(target, nil, solana.NewReadonlyAccountMeta(accounts[0].Identity, true)))
			return err
		}
	}
	middle := env.register(t, forward(leaf))
	top := env.register(t, forward(middle))

	user := testutil.NewRandomIdentity(t)

	result, err := env.processor.ProcessInstruction(env.ctx, solana.NewInstruction(top, nil, solana.NewReadonlyAccountMeta(user, true)), user)
	require.NoError(t, err)
	assert.True(t, signed)

	require.Len(t, result.Invocations, 3)
	for i, invocation := range result.Invocations {
		assert.Equal(t, i+1, invocation.Depth)
		assert.Equal(t, []solana.Identity{user}, invocation.Signers)
	}

	// Without the top level signature, no frame can vouch for the user
	_, err = env.processor.ProcessInstruction(env.ctx, solana.NewInstruction(top, nil, solana.NewReadonlyAccountMeta(user, false)))
	testutil.AssertInstructionError(t, err, 0, solana.ErrMissingRequiredAuthority)
}

func TestInvoke_SignerNotReforwarded(t *testing.T) {
	env := setup(t, nil)

	leaf := env.register(t, noopProgram)

	// middle receives the user as a plain account and tries to vouch for it
	var middleHeld bool
	middle := env.register(t, func(ictx *InvocationContext, accounts []*AccountView, _ []byte) error {
		middleHeld = ictx.IsSigner(accounts[0].Identity)
		_, err := ictx.Invoke(solana.NewInstruction(leaf, nil, solana.NewReadonlyAccountMeta(accounts[0].Identity, true)))
		return err
	})

	var topHeld bool
	top := env.register(t, func(ictx *InvocationContext, accounts []*AccountView, _ []byte) error {
		topHeld = ictx.IsSigner(accounts[0].Identity)
		_, err := ictx.Invoke(solana.NewInstruction(middle, nil, solana.NewReadonlyAccountMeta(accounts[0].Identity, false)))
		return err
	})

	user := testutil.NewRandomIdentity(t)

	result, err := env.processor.ProcessInstruction(env.ctx, solana.NewInstruction(top, nil, solana.NewReadonlyAccountMeta(user, true)), user)
	testutil.AssertInstructionError(t, err, 0, solana.ErrMissingRequiredAuthority)
	assert.True(t, topHeld)
	assert.False(t, middleHeld)

	require.Len(t, result.Invocations, 2)
	assert.Equal(t, []solana.Identity{user}, result.Invocations[0].Signers)
	assert.Empty(t, result.Invocations[1].Signers)
}

func TestInvoke_WritesAreVisibleAcrossFrames(t *testing.T) {
	env := setup(t, nil)

	var seen [][]byte
	reader := env.register(t, func(_ *InvocationContext, accounts []*AccountView, _ []byte) error {
		seen = append(seen, cloneBytes(accounts[0].Data))
		return nil
	})
	owner := env.register(t, func(ictx *InvocationContext, accounts []*AccountView, data []byte) error {
		accounts[0].Data = data
		if len(data) > 1 {
			_, err := ictx.Invoke(solana.NewInstruction(reader, nil, solana.NewReadonlyAccountMeta(accounts[0].Identity, false)))
			return err
		}
		return nil
	})
	caller := env.register(t, func(ictx *InvocationContext, accounts []*AccountView, _ []byte) error {
		if _, err := ictx.Invoke(solana.NewInstruction(owner, []byte{7}, solana.NewAccountMeta(accounts[0].Identity, false))); err != nil {
			return err
		}
		seen = append(seen, cloneBytes(accounts[0].Data))
		return nil
	})

	address := env.seed(t, owner, []byte{0})

	// The caller observes the callee's writes
	_, err := env.processor.ProcessInstruction(env.ctx, solana.NewInstruction(caller, nil, solana.NewAccountMeta(address, false)))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{7}}, seen)
	assert.Equal(t, []byte{7}, env.record(t, address).Data)

	// The callee observes the caller's writes
	seen = nil
	_, err = env.processor.ProcessInstruction(env.ctx, solana.NewInstruction(owner, []byte{8, 9}, solana.NewAccountMeta(address, false)))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{8, 9}}, seen)
	assert.Equal(t, []byte{8, 9}, env.record(t, address).Data)
}

func TestInvoke_ReturnData(t *testing.T) {
	env := setup(t, nil)

	callee := env.register(t, func(ictx *InvocationContext, _ []*AccountView, data []byte) error {
		ictx.SetReturnData(append(data, byte(ictx.Depth())))
		return nil
	})

	var result *CalleeResult
	caller := env.register(t, func(ictx *InvocationContext, _ []*AccountView, _ []byte) error {
		var err error
		result, err = ictx.Invoke(solana.NewInstruction(callee, []byte{1, 2}))
		return err
	})

	_, err := env.processor.ProcessInstruction(env.ctx, solana.NewInstruction(caller, nil))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, callee, result.Program)
	assert.Equal(t, []byte{1, 2, 2}, result.ReturnData)
}

func TestSync_ExternalAccountDataModified(t *testing.T) {
	env := setup(t, nil)

	owner := env.register(t, noopProgram)
	intruder := env.register(t, writeProgram)

	var calleeErr error
	swallower := env.register(t, func(ictx *InvocationContext, accounts []*AccountView, _ []byte) error {
		_, calleeErr = ictx.Invoke(solana.NewInstruction(intruder, []byte{1}, solana.NewAccountMeta(accounts[0].Identity, false)))
		return nil
	})

	address := env.seed(t, owner, []byte{0})

	_, err := env.processor.ProcessInstruction(env.ctx, solana.NewInstruction(intruder, []byte{1}, solana.NewAccountMeta(address, false)))
	testutil.AssertInstructionError(t, err, 0, solana.ErrExternalAccountDataModified)

	// An illegal write never lands, even if the caller ignores the failure
	_, err = env.processor.ProcessInstruction(env.ctx, solana.NewInstruction(swallower, nil, solana.NewAccountMeta(address, false)))
	require.NoError(t, err)
	assert.True(t, errors.Is(calleeErr, solana.ErrExternalAccountDataModified))

	record := env.record(t, address)
	assert.Equal(t, []byte{0}, record.Data)
	assert.EqualValues(t, 1, record.Version)
}

func TestSync_FailedCalleeKeepsLegitimateWrites(t *testing.T) {
	env := setup(t, nil)

	owner := env.register(t, func(_ *InvocationContext, accounts []*AccountView, data []byte) error {
		accounts[0].Data = data
		return solana.CustomError(1)
	})
	caller := env.register(t, func(ictx *InvocationContext, accounts []*AccountView, _ []byte) error {
		_, err := ictx.Invoke(solana.NewInstruction(owner, []byte{5}, solana.NewAccountMeta(accounts[0].Identity, false)))
		if errors.Is(err, solana.CustomError(1)) {
			return nil
		}
		return errors.Errorf("unexpected callee result: %v", err)
	})

	address := env.seed(t, owner, []byte{0})

	_, err := env.processor.ProcessInstruction(env.ctx, solana.NewInstruction(caller, nil, solana.NewAccountMeta(address, false)))
	require.NoError(t, err)
	assert.Equal(t, []byte{5}, env.record(t, address).Data)
}

func TestSync_ReadonlyDataModified(t *testing.T) {
	env := setup(t, nil)

	owner := env.register(t, writeProgram)
	address := env.seed(t, owner, []byte{0})

	_, err := env.processor.ProcessInstruction(env.ctx, solana.NewInstruction(owner, []byte{1}, solana.NewReadonlyAccountMeta(address, false)))
	testutil.AssertInstructionError(t, err, 0, solana.ErrReadonlyDataModified)

	// Writable in the transaction, but passed read-only to the callee
	caller := env.register(t, func(ictx *InvocationContext, accounts []*AccountView, _ []byte) error {
		_, err := ictx.Invoke(solana.NewInstruction(owner, []byte{2}, solana.NewReadonlyAccountMeta(accounts[0].Identity, false)))
		return err
	})
	_, err = env.processor.ProcessInstruction(env.ctx, solana.NewInstruction(caller, nil, solana.NewAccountMeta(address, false)))
	testutil.AssertInstructionError(t, err, 0, solana.ErrReadonlyDataModified)

	assert.Equal(t, []byte{0}, env.record(t, address).Data)
}

func TestSync_ModifiedProgramID(t *testing.T) {
	env := setup(t, nil)

	assign := func(_ *InvocationContext, accounts []*AccountView, data []byte) error {
		var owner solana.Identity
		copy(owner[:], data)
		accounts[0].Owner = owner
		return nil
	}
	program := env.register(t, assign)
	next := env.register(t, writeProgram)

	// Only zeroed accounts may be handed over
	dirty := env.seed(t, program, []byte{1})
	_, err := env.processor.ProcessInstruction(env.ctx, solana.NewInstruction(program, next[:], solana.NewAccountMeta(dirty, false)))
	testutil.AssertInstructionError(t, err, 0, solana.ErrModifiedProgramID)
	assert.Equal(t, program.String(), env.record(t, dirty).Owner)

	clean := env.seed(t, program, make([]byte, 4))
	_, err = env.processor.ProcessInstruction(env.ctx, solana.NewInstruction(program, next[:], solana.NewAccountMeta(clean, false)))
	require.NoError(t, err)
	assert.Equal(t, next.String(), env.record(t, clean).Owner)

	// The previous owner lost control, the new one gained it
	_, err = env.processor.ProcessInstruction(env.ctx, solana.NewInstruction(program, program[:], solana.NewAccountMeta(clean, false)))
	testutil.AssertInstructionError(t, err, 0, solana.ErrModifiedProgramID)

	_, err = env.processor.ProcessInstruction(env.ctx, solana.NewInstruction(next, []byte{3}, solana.NewAccountMeta(clean, false)))
	require.NoError(t, err)
	assert.Equal(t, []byte{3}, env.record(t, clean).Data)
}

func TestSync_DataSizeLimit(t *testing.T) {
	env := setup(t, &TestOverrides{MaxAccountDataSize: 16})

	program := env.register(t, writeProgram)
	address := env.seed(t, program, nil)

	_, err := env.processor.ProcessInstruction(env.ctx, solana.NewInstruction(program, make([]byte, 17), solana.NewAccountMeta(address, false)))
	testutil.AssertInstructionError(t, err, 0, solana.ErrInvalidArgument)

	_, err = env.processor.ProcessInstruction(env.ctx, solana.NewInstruction(program, make([]byte, 16), solana.NewAccountMeta(address, false)))
	require.NoError(t, err)
	assert.Len(t, env.record(t, address).Data, 16)
}

func TestInvoke_DuplicateAccountMetas(t *testing.T) {
	env := setup(t, nil)

	var shared, isSigner, isWritable bool
	program := env.register(t, func(_ *InvocationContext, accounts []*AccountView, data []byte) error {
		shared = accounts[0] == accounts[1]
		isSigner = accounts[0].IsSigner
		isWritable = accounts[0].IsWritable
		accounts[1].Data = data
		return nil
	})

	address := env.seed(t, program, nil)

	ix := solana.NewInstruction(
		program,
		[]byte{4},
		solana.NewReadonlyAccountMeta(address, false),
		solana.NewAccountMeta(address, true),
	)

	_, err := env.processor.ProcessInstruction(env.ctx, ix, address)
	require.NoError(t, err)
	assert.True(t, shared)
	assert.True(t, isSigner)
	assert.True(t, isWritable)
	assert.Equal(t, []byte{4}, env.record(t, address).Data)
}

func TestInvoke_MaxDepth(t *testing.T) {
	env := setup(t, &TestOverrides{MaxInvocationDepth: 3})

	var deepest int
	var recurse solana.Identity
	recurse = env.register(t, func(ictx *InvocationContext, _ []*AccountView, data []byte) error {
		if ictx.Depth() > deepest {
			deepest = ictx.Depth()
		}
		if data[0] == 0 {
			return nil
		}
		_, err := ictx.Invoke(solana.NewInstruction(recurse, []byte{data[0] - 1}))
		return err
	})

	result, err := env.processor.ProcessInstruction(env.ctx, solana.NewInstruction(recurse, []byte{2}))
	require.NoError(t, err)
	assert.Equal(t, 3, deepest)
	assert.Len(t, result.Invocations, 3)

	result, err = env.processor.ProcessInstruction(env.ctx, solana.NewInstruction(recurse, []byte{3}))
	testutil.AssertInstructionError(t, err, 0, solana.ErrInvocationDepthExceeded)
	assert.Len(t, result.Invocations, 3)
}

func TestInvoke_Failures(t *testing.T) {
	env := setup(t, nil)

	unknown := testutil.NewRandomIdentity(t)
	caller := env.register(t, func(ictx *InvocationContext, _ []*AccountView, _ []byte) error {
		_, err := ictx.Invoke(solana.NewInstruction(unknown, nil))
		return err
	})
	_, err := env.processor.ProcessInstruction(env.ctx, solana.NewInstruction(caller, nil))
	testutil.AssertInstructionError(t, err, 0, solana.ErrUnsupportedProgramID)

	panicking := env.register(t, func(*InvocationContext, []*AccountView, []byte) error {
		panic("boom")
	})
	_, err = env.processor.ProcessInstruction(env.ctx, solana.NewInstruction(panicking, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked: boom")

	// A context is only usable while its own frame is executing
	var saved *InvocationContext
	noop := env.register(t, noopProgram)
	callee := env.register(t, func(*InvocationContext, []*AccountView, []byte) error {
		_, err := saved.Invoke(solana.NewInstruction(noop, nil))
		return err
	})
	outer := env.register(t, func(ictx *InvocationContext, _ []*AccountView, _ []byte) error {
		saved = ictx
		_, err := ictx.Invoke(solana.NewInstruction(callee, nil))
		return err
	})
	_, err = env.processor.ProcessInstruction(env.ctx, solana.NewInstruction(outer, nil))
	testutil.AssertInstructionError(t, err, 0, solana.ErrInvalidArgument)
}
