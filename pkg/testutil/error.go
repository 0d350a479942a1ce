package testutil

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-runtime/pkg/solana"
)

// AssertTransactionError verifies that err is a transaction level failure
// with the provided key.
func AssertTransactionError(t *testing.T, err error, key solana.TransactionErrorKey) {
	require.Error(t, err)

	var txErr *solana.TransactionError
	require.True(t, errors.As(err, &txErr), "expected a transaction error, got %v", err)
	assert.Equal(t, key, txErr.ErrorKey())
}

// AssertInstructionError verifies that err is the failure of the instruction
// at index and that the instruction failed with target.
func AssertInstructionError(t *testing.T, err error, index int, target error) {
	AssertTransactionError(t, err, solana.TransactionErrorInstructionError)

	var txErr *solana.TransactionError
	require.True(t, errors.As(err, &txErr))
	require.NotNil(t, txErr.InstructionError())
	assert.Equal(t, index, txErr.InstructionError().Index)
	assert.True(t, errors.Is(err, target), "expected %v, got %v", target, err)
	assert.Equal(t, solana.InstructionErrorKeyOf(target), txErr.InstructionError().ErrorKey())
}
