package vault

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvault/yvm/internal/manager"
	"github.com/openvault/yvm/internal/strategy"
	"github.com/openvault/yvm/internal/types"
)

const (
	testOwner    = "owner"
	testAlice    = "alice"
	testBob      = "bob"
	testTreasury = "treasury"
	testFounder  = "founder"
	testKeeper   = "keeper"
	testVaultID  = "vault-main"
	testAsset    = "uusdc"
)

func testTier() types.TierConfig {
	return types.TierConfig{
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
}

func testFees() types.FeePolicy {
	return types.FeePolicy{
		PerformanceFeeBps:  1000,
		TreasurySplitBps:   8000,
		FounderSplitBps:    2000,
		KeeperIncentiveBps: 50,
	}
}

type fixture struct {
	vault *Vault
	mgr   *manager.StrategyManager
	sims  []*strategy.Sim
	sink  *types.MemorySink
}

func newFixture(t *testing.T, tier types.TierConfig, apys ...int64) *fixture {
	t.Helper()
	sink := types.NewMemorySink()
	auth := types.NewSingleOwner(testOwner)

	mgr, err := manager.NewStrategyManager(manager.Config{
		Asset:     testAsset,
		Tier:      tier,
		Authority: auth,
		EventSink: sink,
	})
	require.NoError(t, err)

	v, err := NewVault(Config{
		ID:        testVaultID,
		Asset:     testAsset,
		Manager:   mgr,
		Authority: auth,
		EventSink: sink,
		Tier:      tier,
		Fees:      testFees(),
		Treasury:  testTreasury,
		Founder:   testFounder,
	})
	require.NoError(t, err)
	require.NoError(t, mgr.Bind(v.ID()))

	sims := make([]*strategy.Sim, len(apys))
	for i, apy := range apys {
		sims[i] = strategy.NewSim(simName(i), testAsset, apy)
		require.NoError(t, mgr.AddStrategy(testOwner, sims[i]))
	}
	return &fixture{vault: v, mgr: mgr, sims: sims, sink: sink}
}

func simName(i int) string {
	return string(rune('a'+i)) + "-strategy"
}

func TestDeposit_BelowThresholdStaysIdle(t *testing.T) {
	f := newFixture(t, testTier(), 1000)

	shares, err := f.vault.Deposit(testAlice, sdkmath.NewInt(5_000_000))
	require.NoError(t, err)
	assert.True(t, shares.Equal(sdkmath.NewInt(5_000_000)), "bootstrap price is 1:1")

	assert.True(t, f.vault.IdleBuffer().Equal(sdkmath.NewInt(5_000_000)))
	deployed, err := f.mgr.TotalAssets()
	require.NoError(t, err)
	assert.True(t, deployed.IsZero(), "below-threshold deposits must not deploy")

	assert.Len(t, f.sink.OfType(types.EventDeposit), 1)
	assert.Empty(t, f.sink.OfType(types.EventIdleAllocated))
}

func TestDeposit_CrossingThresholdSweepsWholeBuffer(t *testing.T) {
	f := newFixture(t, testTier(), 1000)

	_, err := f.vault.Deposit(testAlice, sdkmath.NewInt(5_000_000))
	require.NoError(t, err)
	_, err = f.vault.Deposit(testAlice, sdkmath.NewInt(6_000_000))
	require.NoError(t, err)

	assert.True(t, f.vault.IdleBuffer().IsZero(), "the entire buffer sweeps, not just the excess")
	deployed, err := f.mgr.TotalAssets()
	require.NoError(t, err)
	assert.True(t, deployed.Equal(sdkmath.NewInt(11_000_000)))

	swept := f.sink.OfType(types.EventIdleAllocated)
	require.Len(t, swept, 1)
	assert.Equal(t, "11000000", swept[0].Attributes["amount"])
}

func TestDeposit_CapConstrainedSweepKeepsRemainderIdle(t *testing.T) {
	// Two strategies capped at 30% each absorb 60M of the 100M sweep; the
	// refused 40M stays in the idle buffer rather than breaching the caps.
	tier := testTier()
	tier.MinAllocationThresholdBps = 0
	tier.MaxAllocationPerStrategyBps = 3000
	f := newFixture(t, tier, 1000, 1000)

	_, err := f.vault.Deposit(testAlice, sdkmath.NewInt(100_000_000))
	require.NoError(t, err)

	deployed, err := f.mgr.TotalAssets()
	require.NoError(t, err)
	assert.True(t, deployed.Equal(sdkmath.NewInt(60_000_000)), "got %s", deployed)
	assert.True(t, f.vault.IdleBuffer().Equal(sdkmath.NewInt(40_000_000)),
		"capital the caps refuse stays idle")

	total, err := f.vault.TotalAssets()
	require.NoError(t, err)
	assert.True(t, total.Equal(sdkmath.NewInt(100_000_000)), "nothing is lost to the split")

	swept := f.sink.OfType(types.EventIdleAllocated)
	require.Len(t, swept, 1)
	assert.Equal(t, "60000000", swept[0].Attributes["amount"], "the event reports what was deployed")
}

func TestDeposit_Validation(t *testing.T) {
	f := newFixture(t, testTier(), 1000)

	_, err := f.vault.Deposit(testAlice, sdkmath.ZeroInt())
	assert.ErrorIs(t, err, ErrZeroAmount)

	_, err = f.vault.Deposit(testAlice, sdkmath.NewInt(500_000))
	assert.ErrorIs(t, err, ErrBelowMinDeposit)

	_, err = f.vault.Deposit("", sdkmath.NewInt(5_000_000))
	assert.ErrorIs(t, err, ErrZeroIdentity)
}

func TestDeposit_MaxTVLEnforced(t *testing.T) {
	tier := testTier()
	tier.MaxTVL = sdkmath.NewInt(20_000_000)
	f := newFixture(t, tier, 1000)

	_, err := f.vault.Deposit(testAlice, sdkmath.NewInt(15_000_000))
	require.NoError(t, err)

	_, err = f.vault.Deposit(testBob, sdkmath.NewInt(6_000_000))
	assert.ErrorIs(t, err, ErrMaxTVLExceeded)

	// Exactly filling the cap is allowed.
	_, err = f.vault.Deposit(testBob, sdkmath.NewInt(5_000_000))
	assert.NoError(t, err)
}

func TestDeposit_RollsBackOnAllocationFailure(t *testing.T) {
	f := newFixture(t, testTier(), 1000)
	f.sims[0].FailDeposits(true)

	_, err := f.vault.Deposit(testAlice, sdkmath.NewInt(20_000_000))
	require.ErrorIs(t, err, manager.ErrStrategyDeposit)

	// The ledger must be exactly as before the call.
	assert.True(t, f.vault.IdleBuffer().IsZero())
	assert.True(t, f.vault.TotalSupply().IsZero())
	assert.True(t, f.vault.BalanceOf(testAlice).IsZero())
	assert.Empty(t, f.sink.OfType(types.EventDeposit))
}

func TestMint_ChargesCeilPricedAssets(t *testing.T) {
	f := newFixture(t, testTier(), 1000)

	assets, err := f.vault.Mint(testAlice, sdkmath.NewInt(5_000_000))
	require.NoError(t, err)
	assert.True(t, assets.Equal(sdkmath.NewInt(5_000_000)), "bootstrap mint is 1:1")
	assert.True(t, f.vault.BalanceOf(testAlice).Equal(sdkmath.NewInt(5_000_000)))
}

func TestWithdraw_IdleFirstThenManager(t *testing.T) {
	f := newFixture(t, testTier(), 1000)
	_, err := f.vault.Deposit(testAlice, sdkmath.NewInt(11_000_000)) // swept
	require.NoError(t, err)
	_, err = f.vault.Deposit(testAlice, sdkmath.NewInt(3_000_000)) // stays idle
	require.NoError(t, err)

	paid, burned, err := f.vault.Withdraw(testAlice, sdkmath.NewInt(5_000_000), testAlice)
	require.NoError(t, err)
	assert.True(t, paid.Equal(sdkmath.NewInt(5_000_000)))
	assert.True(t, burned.Equal(sdkmath.NewInt(5_000_000)))

	assert.True(t, f.vault.IdleBuffer().IsZero(), "idle drains before the manager is touched")
	deployed, err := f.mgr.TotalAssets()
	require.NoError(t, err)
	assert.True(t, deployed.Equal(sdkmath.NewInt(9_000_000)), "only the shortfall was pulled")
	assert.True(t, f.vault.BalanceOf(testAlice).Equal(sdkmath.NewInt(9_000_000)))
}

func TestWithdraw_InsufficientShares(t *testing.T) {
	f := newFixture(t, testTier(), 1000)
	_, err := f.vault.Deposit(testAlice, sdkmath.NewInt(5_000_000))
	require.NoError(t, err)

	_, _, err = f.vault.Withdraw(testAlice, sdkmath.NewInt(6_000_000), testAlice)
	assert.ErrorIs(t, err, ErrInsufficientShares)

	_, _, err = f.vault.Withdraw(testBob, sdkmath.NewInt(1_000_000), testBob)
	assert.ErrorIs(t, err, ErrInsufficientShares)

	_, err = f.vault.Redeem(testBob, sdkmath.NewInt(1_000_000), testBob)
	assert.ErrorIs(t, err, ErrInsufficientShares, "a non-holder cannot redeem either")
}

func TestWithdraw_AfterFullRedemptionIsRejected(t *testing.T) {
	// Full redemption deletes the ledger entry; a later withdrawal attempt by
	// the same holder must fail like any other non-holder's.
	f := newFixture(t, testTier(), 1000)
	shares, err := f.vault.Deposit(testAlice, sdkmath.NewInt(5_000_000))
	require.NoError(t, err)
	_, err = f.vault.Redeem(testAlice, shares, testAlice)
	require.NoError(t, err)

	_, _, err = f.vault.Withdraw(testAlice, sdkmath.NewInt(1_000_000), testAlice)
	assert.ErrorIs(t, err, ErrInsufficientShares)

	_, err = f.vault.Redeem(testAlice, sdkmath.NewInt(1), testAlice)
	assert.ErrorIs(t, err, ErrInsufficientShares)
}

func TestWithdraw_UnderDeliveryBurnsOnlyWhatWasPaid(t *testing.T) {
	f := newFixture(t, testTier(), 1000)
	_, err := f.vault.Deposit(testAlice, sdkmath.NewInt(100_000_000))
	require.NoError(t, err)

	// The sole strategy can only free 5M per withdrawal.
	limit := sdkmath.NewInt(5_000_000)
	f.sims[0].SetWithdrawLimit(&limit)

	paid, burned, err := f.vault.Withdraw(testAlice, sdkmath.NewInt(20_000_000), testAlice)
	require.NoError(t, err, "external illiquidity is under-delivery, not failure")
	assert.True(t, paid.Equal(sdkmath.NewInt(5_000_000)))
	assert.True(t, burned.Equal(sdkmath.NewInt(5_000_000)))
	assert.True(t, f.vault.BalanceOf(testAlice).Equal(sdkmath.NewInt(95_000_000)),
		"shares burn for what was delivered, not what was requested")
}

func TestRedeem_FullRoundTripWithoutProfit(t *testing.T) {
	f := newFixture(t, testTier(), 1000)
	shares, err := f.vault.Deposit(testAlice, sdkmath.NewInt(5_000_000))
	require.NoError(t, err)

	paid, err := f.vault.Redeem(testAlice, shares, testAlice)
	require.NoError(t, err)
	assert.True(t, paid.Equal(sdkmath.NewInt(5_000_000)), "no profit, principal comes back whole")
	assert.True(t, f.vault.TotalSupply().IsZero())
	assert.True(t, f.vault.BalanceOf(testAlice).IsZero())
	assert.True(t, f.vault.IdleBuffer().IsZero())
}

func TestSharePrice_AppreciatesWithProfitAndPricesNewDeposits(t *testing.T) {
	f := newFixture(t, testTier(), 1000)
	require.NoError(t, f.vault.SetOfficialKeeper(testOwner, testKeeper, true))

	_, err := f.vault.Deposit(testAlice, sdkmath.NewInt(100_000_000))
	require.NoError(t, err)

	priceBefore, err := f.vault.SharePrice()
	require.NoError(t, err)
	assert.True(t, priceBefore.Equal(sdkmath.LegacyOneDec()))

	f.sims[0].AccrueRewards(sdkmath.NewInt(10_000_000))
	_, err = f.vault.Harvest(testKeeper)
	require.NoError(t, err)

	priceAfter, err := f.vault.SharePrice()
	require.NoError(t, err)
	assert.True(t, priceAfter.GT(priceBefore), "realized profit must appreciate the share price")

	// A later depositor pays the appreciated price.
	sharesBob, err := f.vault.Deposit(testBob, sdkmath.NewInt(50_000_000))
	require.NoError(t, err)
	assert.True(t, sharesBob.LT(sdkmath.NewInt(50_000_000)),
		"bob gets fewer shares per asset than the bootstrap depositor")
	assert.True(t, sharesBob.GT(sdkmath.NewInt(45_000_000)))
}

func TestLedgerInvariants_HoldAcrossOperationSequence(t *testing.T) {
	f := newFixture(t, testTier(), 800, 1200)
	require.NoError(t, f.vault.SetOfficialKeeper(testOwner, testKeeper, true))

	holders := []string{testAlice, testBob, testTreasury}
	lastPrice := sdkmath.LegacyOneDec()

	check := func(step string) {
		total, err := f.vault.TotalAssets()
		require.NoError(t, err, step)
		deployed, err := f.mgr.TotalAssets()
		require.NoError(t, err, step)
		assert.True(t, f.vault.IdleBuffer().Add(deployed).Equal(total),
			"%s: idle + deployed must equal total assets", step)

		supply := f.vault.TotalSupply()
		sum := sdkmath.ZeroInt()
		for _, h := range holders {
			sum = sum.Add(f.vault.BalanceOf(h))
		}
		assert.True(t, sum.Equal(supply), "%s: holder balances must sum to total supply", step)

		if !supply.IsZero() {
			price, err := f.vault.SharePrice()
			require.NoError(t, err, step)
			assert.True(t, price.GTE(lastPrice), "%s: share price must never decrease", step)
			lastPrice = price
		}
	}

	_, err := f.vault.Deposit(testAlice, sdkmath.NewInt(30_000_000))
	require.NoError(t, err)
	check("alice deposit")

	_, err = f.vault.Deposit(testBob, sdkmath.NewInt(20_000_000))
	require.NoError(t, err)
	check("bob deposit")

	f.sims[0].AccrueRewards(sdkmath.NewInt(2_000_000))
	f.sims[1].AccrueRewards(sdkmath.NewInt(3_000_000))
	_, err = f.vault.Harvest(testKeeper)
	require.NoError(t, err)
	check("harvest")

	_, _, err = f.vault.Withdraw(testAlice, sdkmath.NewInt(10_000_000), testAlice)
	require.NoError(t, err)
	check("alice withdrawal")

	_, err = f.vault.Redeem(testBob, f.vault.BalanceOf(testBob), testBob)
	require.NoError(t, err)
	check("bob full redemption")
}
