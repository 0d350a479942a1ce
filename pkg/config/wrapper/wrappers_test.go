package wrapper_test

import (
	"context"
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-runtime/pkg/config"
	"github.com/code-payments/code-runtime/pkg/config/memory"
	"github.com/code-payments/code-runtime/pkg/config/wrapper"
)

type typedGetter[T any] interface {
	Get(ctx context.Context) T
	GetSafe(ctx context.Context) (T, error)
	Shutdown()
}

func testOverrideLifecycle[T any](t *testing.T, mock *memory.Config, cfg typedGetter[T], defaultValue, overridenValue T) {
	ctx := context.Background()

	// Return the default value when no override is set
	val, err := cfg.GetSafe(ctx)
	require.NoError(t, err)
	assert.Equal(t, defaultValue, val)
	assert.Equal(t, defaultValue, cfg.Get(ctx))

	// The overriden value is returned when set
	mock.SetValue(overridenValue)
	val, err = cfg.GetSafe(ctx)
	require.NoError(t, err)
	assert.Equal(t, overridenValue, val)
	assert.Equal(t, overridenValue, cfg.Get(ctx))

	// Unsupported source types keep the last observed value
	mock.SetValue("not supported")
	val, err = cfg.GetSafe(ctx)
	assert.Equal(t, wrapper.ErrUnsuportedConversion, err)
	assert.Equal(t, overridenValue, val)

	// The default value is returned when the override no longer has a value
	mock.ClearValue()
	val, err = cfg.GetSafe(ctx)
	require.NoError(t, err)
	assert.Equal(t, defaultValue, val)
	assert.Equal(t, defaultValue, cfg.Get(ctx))

	// Invalid byte array values keep the last observed value
	mock.SetValue([]byte("cannot convert"))
	val, err = cfg.GetSafe(ctx)
	require.Error(t, err)
	assert.Equal(t, defaultValue, val)
}

func TestBoolConfig(t *testing.T) {
	mock := memory.NewConfig(nil)
	cfg := wrapper.NewBoolConfig(mock, true)
	testOverrideLifecycle[bool](t, mock, cfg, true, false)

	mock.SetValue([]byte("false"))
	assert.False(t, cfg.Get(context.Background()))

	cfg.Shutdown()
	_, err := cfg.GetSafe(context.Background())
	assert.Equal(t, config.ErrShutdown, err)
}

func TestUint64Config(t *testing.T) {
	mock := memory.NewConfig(nil)
	cfg := wrapper.NewUint64Config(mock, math.MaxUint64)
	testOverrideLifecycle[uint64](t, mock, cfg, math.MaxUint64, 0)

	mock.SetValue([]byte(strconv.FormatUint(math.MaxUint64, 10)))
	assert.EqualValues(t, uint64(math.MaxUint64), cfg.Get(context.Background()))

	mock.SetValue(uint(42))
	assert.EqualValues(t, 42, cfg.Get(context.Background()))

	cfg.Shutdown()
	_, err := cfg.GetSafe(context.Background())
	assert.Equal(t, config.ErrShutdown, err)
}

func TestDurationConfig(t *testing.T) {
	mock := memory.NewConfig(nil)
	cfg := wrapper.NewDurationConfig(mock, 30*time.Second)
	testOverrideLifecycle[time.Duration](t, mock, cfg, 30*time.Second, -2*time.Hour)

	mock.SetValue([]byte((-2 * time.Hour).String()))
	assert.Equal(t, -2*time.Hour, cfg.Get(context.Background()))

	cfg.Shutdown()
	_, err := cfg.GetSafe(context.Background())
	assert.Equal(t, config.ErrShutdown, err)
}
