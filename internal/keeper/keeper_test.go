package keeper

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvault/yvm/internal/manager"
	"github.com/openvault/yvm/internal/types"
	"github.com/openvault/yvm/internal/vault"
)

func testVault(t *testing.T) (*vault.Vault, *manager.StrategyManager) {
	t.Helper()
	tier := types.TierConfig{
		IdleThreshold:       sdkmath.NewInt(10_000_000),
		MinProfitForHarvest: sdkmath.NewInt(1_000_000),
		MaxTVL:              sdkmath.NewInt(1_000_000_000_000),
		MinDeposit:          sdkmath.NewInt(1_000_000),

		MinAllocationThresholdBps:   500,
		MaxAllocationPerStrategyBps: 10000,

		RebalanceMinTVL:           sdkmath.NewInt(50_000_000),
		RebalanceSkewThresholdBps: 300,
		RebalanceOverhead:         sdkmath.NewInt(1_000_000),
		RebalanceProfitMultiplier: 3,
	}
	auth := types.NewSingleOwner("owner")

	m, err := manager.NewStrategyManager(manager.Config{
		Asset:     "uusdc",
		Tier:      tier,
		Authority: auth,
	})
	require.NoError(t, err)

	v, err := vault.NewVault(vault.Config{
		ID:        "vault-main",
		Asset:     "uusdc",
		Manager:   m,
		Authority: auth,
		Tier:      tier,
		Fees: types.FeePolicy{
			PerformanceFeeBps:  1000,
			TreasurySplitBps:   8000,
			FounderSplitBps:    2000,
			KeeperIncentiveBps: 50,
		},
		Treasury: "treasury",
		Founder:  "founder",
	})
	require.NoError(t, err)
	require.NoError(t, m.Bind(v.ID()))
	return v, m
}

func TestNewKeeper_ConfigValidation(t *testing.T) {
	v, m := testVault(t)

	_, err := NewKeeper(nil)
	assert.ErrorIs(t, err, ErrKeeperConfigNil)

	_, err = NewKeeper(&Config{Vault: v, Manager: m})
	assert.ErrorIs(t, err, ErrKeeperIdentity)

	_, err = NewKeeper(&Config{Identity: "keeper"})
	assert.ErrorIs(t, err, ErrKeeperVaultNil)

	_, err = NewKeeper(&Config{
		Identity:        "keeper",
		Vault:           v,
		Manager:         m,
		HarvestSchedule: "not a cron expression",
	})
	assert.ErrorIs(t, err, ErrKeeperSchedule)
}

func TestNewKeeper_EmptySchedulesDisableJobs(t *testing.T) {
	v, m := testVault(t)

	k, err := NewKeeper(&Config{
		Identity: "keeper",
		Vault:    v,
		Manager:  m,
	})
	require.NoError(t, err)
	require.NotNil(t, k)

	// Start/Stop with no registered jobs must be clean.
	k.Start()
	k.Stop()
}

func TestRunJobs_EconomicGatesAreSkipsNotFailures(t *testing.T) {
	v, m := testVault(t)

	k, err := NewKeeper(&Config{Identity: "keeper", Vault: v, Manager: m})
	require.NoError(t, err)

	// With an empty vault every job hits a gate: no idle to sweep, nothing
	// to harvest, nothing deployed to rebalance. None of them may panic.
	k.runHarvest()
	k.runAllocateIdle()
	k.runRebalance()
}
