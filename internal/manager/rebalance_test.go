package manager

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvault/yvm/internal/types"
)

func rebalanceTier() types.TierConfig {
	tier := testTier()
	tier.MinAllocationThresholdBps = 0
	return tier
}

func TestRebalance_MovesCapitalTowardHigherYield(t *testing.T) {
	// 90M sits in the 10% strategy while the 90% strategy holds only 10M.
	// Target weights are 10/90, so 80M should move from a to b.
	m, sims, sink := newBoundManager(t, rebalanceTier(), 1000, 9000)
	_, err := sims[0].Deposit(sdkmath.NewInt(90_000_000))
	require.NoError(t, err)
	_, err = sims[1].Deposit(sdkmath.NewInt(10_000_000))
	require.NoError(t, err)

	ok, err := m.ShouldRebalance()
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, m.Rebalance("keeper"))

	bal0, _ := sims[0].TotalAssets()
	bal1, _ := sims[1].TotalAssets()
	assert.True(t, bal0.Equal(sdkmath.NewInt(10_000_000)), "source should end at target, got %s", bal0)
	assert.True(t, bal1.Equal(sdkmath.NewInt(90_000_000)), "destination should end at target, got %s", bal1)

	events := sink.OfType(types.EventRebalanced)
	require.Len(t, events, 1)
	assert.Equal(t, simName(0), events[0].Attributes["from_strategy"])
	assert.Equal(t, simName(1), events[0].Attributes["to_strategy"])
	assert.Equal(t, "80000000", events[0].Attributes["assets"])

	// The portfolio now matches the targets; a second pass has nothing to do.
	ok, err = m.ShouldRebalance()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRebalance_GatedBelowMinTVL(t *testing.T) {
	m, sims, _ := newBoundManager(t, rebalanceTier(), 1000, 9000)
	_, err := sims[0].Deposit(sdkmath.NewInt(1_000_000))
	require.NoError(t, err)

	err = m.Rebalance("keeper")
	assert.ErrorIs(t, err, ErrRebalanceBelowMinTVL)

	ok, serr := m.ShouldRebalance()
	require.NoError(t, serr)
	assert.False(t, ok, "a gated rebalance is not a pending one")
}

func TestRebalance_GatedOnSmallSkew(t *testing.T) {
	// Equal APYs, equal balances: targets match current, max skew is zero.
	m, sims, _ := newBoundManager(t, rebalanceTier(), 1000, 1000)
	for _, sim := range sims {
		_, err := sim.Deposit(sdkmath.NewInt(50_000_000))
		require.NoError(t, err)
	}

	err := m.Rebalance("keeper")
	assert.ErrorIs(t, err, ErrRebalanceSkewTooSmall)
}

func TestRebalance_GatedWhenGainBelowHurdle(t *testing.T) {
	tier := rebalanceTier()
	tier.RebalanceOverhead = sdkmath.NewInt(100_000_000)
	m, sims, _ := newBoundManager(t, tier, 1000, 9000)
	_, err := sims[0].Deposit(sdkmath.NewInt(90_000_000))
	require.NoError(t, err)
	_, err = sims[1].Deposit(sdkmath.NewInt(10_000_000))
	require.NoError(t, err)

	// Projected annual gain is 64M, the hurdle 300M.
	err = m.Rebalance("keeper")
	assert.ErrorIs(t, err, ErrRebalanceNotProfitable)

	bal0, _ := sims[0].TotalAssets()
	assert.True(t, bal0.Equal(sdkmath.NewInt(90_000_000)), "gated rebalance must not move capital")
}

func TestRebalance_ExecutesAfterCapTightening(t *testing.T) {
	// Targets start at 50/30/20 under a 50% cap. Tightening the cap to 40%
	// leaves the first strategy over-allocated; the compliance rebalance must
	// execute even though moving capital off the best yielder projects a
	// negative gain.
	m, sims, _ := newBoundManager(t, rebalanceTier(), 5000, 3000, 2000)
	mustAllocate(t, m, 100_000_000)

	bal0, _ := sims[0].TotalAssets()
	require.True(t, bal0.Equal(sdkmath.NewInt(50_000_000)))

	ok, err := m.ShouldRebalance()
	require.NoError(t, err)
	require.False(t, ok, "the portfolio matches its targets before the cap change")

	require.NoError(t, m.SetAllocationConstraints(testOwner, 0, 4000))

	ok, err = m.ShouldRebalance()
	require.NoError(t, err)
	require.True(t, ok, "tightened cap leaves the first strategy over-allocated")

	totalBefore, err := m.TotalAssets()
	require.NoError(t, err)
	require.NoError(t, m.Rebalance("keeper"))

	bal0, _ = sims[0].TotalAssets()
	bal1, _ := sims[1].TotalAssets()
	bal2, _ := sims[2].TotalAssets()
	assert.True(t, bal0.Equal(sdkmath.NewInt(40_000_000)), "got %s", bal0)
	assert.True(t, bal1.Equal(sdkmath.NewInt(36_000_000)), "got %s", bal1)
	assert.True(t, bal2.Equal(sdkmath.NewInt(24_000_000)), "got %s", bal2)

	totalAfter, err := m.TotalAssets()
	require.NoError(t, err)
	assert.True(t, totalAfter.Equal(totalBefore), "rebalancing moves value, never destroys it")
}

func TestSetAllocationConstraints_Validation(t *testing.T) {
	m, _, _ := newBoundManager(t, rebalanceTier(), 1000)

	err := m.SetAllocationConstraints("intruder", 0, 4000)
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = m.SetAllocationConstraints(testOwner, 5000, 4000)
	assert.ErrorIs(t, err, types.ErrInvalidTierConfig, "floor above cap is contradictory")

	err = m.SetAllocationConstraints(testOwner, 0, 0)
	assert.ErrorIs(t, err, types.ErrInvalidTierConfig)
}

func TestRebalance_UnwindsFailedMove(t *testing.T) {
	m, sims, _ := newBoundManager(t, rebalanceTier(), 1000, 9000)
	_, err := sims[0].Deposit(sdkmath.NewInt(90_000_000))
	require.NoError(t, err)
	_, err = sims[1].Deposit(sdkmath.NewInt(10_000_000))
	require.NoError(t, err)
	sims[1].FailDeposits(true)

	err = m.Rebalance("keeper")
	require.ErrorIs(t, err, ErrStrategyDeposit)

	// The withdrawn capital went back to its source.
	bal0, _ := sims[0].TotalAssets()
	bal1, _ := sims[1].TotalAssets()
	assert.True(t, bal0.Equal(sdkmath.NewInt(90_000_000)))
	assert.True(t, bal1.Equal(sdkmath.NewInt(10_000_000)))
}
