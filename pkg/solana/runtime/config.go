package runtime

import (
	"context"

	"github.com/code-payments/code-runtime/pkg/config"
	"github.com/code-payments/code-runtime/pkg/config/env"
	"github.com/code-payments/code-runtime/pkg/config/memory"
)

const (
	envConfigPrefix = "RUNTIME_"

	MaxInvocationDepthConfigEnvName = envConfigPrefix + "MAX_INVOCATION_DEPTH"
	defaultMaxInvocationDepth       = 4

	MaxCommitAttemptsConfigEnvName = envConfigPrefix + "MAX_COMMIT_ATTEMPTS"
	defaultMaxCommitAttempts       = 3

	AccountLockStripesConfigEnvName = envConfigPrefix + "ACCOUNT_LOCK_STRIPES"
	defaultAccountLockStripes       = 1024

	MaxRecentBlockhashesConfigEnvName = envConfigPrefix + "MAX_RECENT_BLOCKHASHES"
	defaultMaxRecentBlockhashes       = 150

	MaxAccountDataSizeConfigEnvName = envConfigPrefix + "MAX_ACCOUNT_DATA_SIZE"
	defaultMaxAccountDataSize       = 10 * 1024

	RequireRecentBlockhashConfigEnvName = envConfigPrefix + "REQUIRE_RECENT_BLOCKHASH"
	defaultRequireRecentBlockhash       = true
)

// Upper bounds applied to configured values. Depth and stripes size
// allocations, so unbounded values are rejected rather than honoured.
const (
	maxInvocationDepthLimit   = 64
	maxCommitAttemptsLimit    = 100
	maxAccountLockStripes     = 1 << 16
	maxRecentBlockhashesLimit = 4096
)

type conf struct {
	// Maximum stack height, including the top level instruction
	maxInvocationDepth config.Uint64

	maxCommitAttempts      config.Uint64
	accountLockStripes     config.Uint64
	maxRecentBlockhashes   config.Uint64
	maxAccountDataSize     config.Uint64
	requireRecentBlockhash config.Bool
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			maxInvocationDepth:     env.NewUint64Config(MaxInvocationDepthConfigEnvName, defaultMaxInvocationDepth),
			maxCommitAttempts:      env.NewUint64Config(MaxCommitAttemptsConfigEnvName, defaultMaxCommitAttempts),
			accountLockStripes:     env.NewUint64Config(AccountLockStripesConfigEnvName, defaultAccountLockStripes),
			maxRecentBlockhashes:   env.NewUint64Config(MaxRecentBlockhashesConfigEnvName, defaultMaxRecentBlockhashes),
			maxAccountDataSize:     env.NewUint64Config(MaxAccountDataSizeConfigEnvName, defaultMaxAccountDataSize),
			requireRecentBlockhash: env.NewBoolConfig(RequireRecentBlockhashConfigEnvName, defaultRequireRecentBlockhash),
		}
	}
}

// TestOverrides are the knobs tests of this and other packages may turn.
// Zero values fall back to the defaults.
type TestOverrides struct {
	MaxInvocationDepth       uint64
	MaxCommitAttempts        uint64
	MaxRecentBlockhashes     uint64
	MaxAccountDataSize       uint64
	SkipRecentBlockhashCheck bool
}

// WithManualTestOverrides returns configuration backed by in memory values
func WithManualTestOverrides(overrides *TestOverrides) ConfigProvider {
	return func() *conf {
		maxInvocationDepth := withDefault(overrides.MaxInvocationDepth, defaultMaxInvocationDepth)
		maxCommitAttempts := withDefault(overrides.MaxCommitAttempts, defaultMaxCommitAttempts)
		maxRecentBlockhashes := withDefault(overrides.MaxRecentBlockhashes, defaultMaxRecentBlockhashes)
		maxAccountDataSize := withDefault(overrides.MaxAccountDataSize, defaultMaxAccountDataSize)

		return &conf{
			maxInvocationDepth:     memory.NewUint64Config(maxInvocationDepth, defaultMaxInvocationDepth),
			maxCommitAttempts:      memory.NewUint64Config(maxCommitAttempts, defaultMaxCommitAttempts),
			accountLockStripes:     memory.NewUint64Config(uint64(16), defaultAccountLockStripes),
			maxRecentBlockhashes:   memory.NewUint64Config(maxRecentBlockhashes, defaultMaxRecentBlockhashes),
			maxAccountDataSize:     memory.NewUint64Config(maxAccountDataSize, defaultMaxAccountDataSize),
			requireRecentBlockhash: memory.NewBoolConfig(!overrides.SkipRecentBlockhashCheck, defaultRequireRecentBlockhash),
		}
	}
}

func withDefault(value, defaultValue uint64) uint64 {
	if value == 0 {
		return defaultValue
	}
	return value
}

func (c *conf) invocationDepth(ctx context.Context) int {
	return int(clamp(c.maxInvocationDepth.Get(ctx), 1, maxInvocationDepthLimit))
}

func (c *conf) commitAttempts(ctx context.Context) uint {
	return uint(clamp(c.maxCommitAttempts.Get(ctx), 1, maxCommitAttemptsLimit))
}

func (c *conf) lockStripes(ctx context.Context) uint {
	return uint(clamp(c.accountLockStripes.Get(ctx), 1, maxAccountLockStripes))
}

func (c *conf) recentBlockhashes(ctx context.Context) int {
	return int(clamp(c.maxRecentBlockhashes.Get(ctx), 1, maxRecentBlockhashesLimit))
}

func clamp(value, lower, upper uint64) uint64 {
	switch {
	case value < lower:
		return lower
	case value > upper:
		return upper
	default:
		return value
	}
}
