/*

This file contains the tunable per-deployment parameters for the vault system:
the tier configuration (thresholds and allocation constraints) and the fee policy
describing how realized yield is split.

*/

package types

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// BpsDenominator is the basis-point scale used for every percentage-valued
// configuration field in the system.
const BpsDenominator int64 = 10000

var (
	ErrInvalidTierConfig = errors.New("tier configuration is invalid")
	ErrInvalidFeePolicy  = errors.New("fee policy is invalid")
)

// TierConfig holds the per-deployment risk parameters. A deployment is
// constructed with one tier; the owner may update individual fields later.
type TierConfig struct {
	// IdleThreshold is the idle-buffer size at which the vault auto-sweeps
	// undeployed funds into the StrategyManager.
	IdleThreshold sdkmath.Int `json:"idle_threshold"`
	// MinProfitForHarvest is the minimum aggregate profit below which a
	// harvest returns zero and distributes no fees.
	MinProfitForHarvest sdkmath.Int `json:"min_profit_for_harvest"`
	// MaxTVL caps the total pooled value the vault will accept.
	MaxTVL sdkmath.Int `json:"max_tvl"`
	// MinDeposit is the smallest deposit the vault will accept.
	MinDeposit sdkmath.Int `json:"min_deposit"`

	// MinAllocationThresholdBps is the participation cutoff: any strategy
	// whose raw APY-proportional weight falls below this is excluded from
	// allocation entirely rather than raised to the floor.
	MinAllocationThresholdBps int64 `json:"min_allocation_threshold_bps"`
	// MaxAllocationPerStrategyBps caps a single strategy's target weight;
	// excess weight is redistributed among the uncapped survivors.
	MaxAllocationPerStrategyBps int64 `json:"max_allocation_per_strategy_bps"`

	// RebalanceMinTVL is the minimum deployed value below which rebalancing
	// is never considered profitable.
	RebalanceMinTVL sdkmath.Int `json:"rebalance_min_tvl"`
	// RebalanceSkewThresholdBps is the minimum divergence between the current
	// and target allocation of any strategy required before a rebalance is
	// considered.
	RebalanceSkewThresholdBps int64 `json:"rebalance_skew_threshold_bps"`
	// RebalanceOverhead is the assumed execution overhead, in base-asset
	// units, of moving capital between two strategies.
	RebalanceOverhead sdkmath.Int `json:"rebalance_overhead"`
	// RebalanceProfitMultiplier is the multiple of RebalanceOverhead the
	// projected annualized gain must exceed for a rebalance to execute.
	RebalanceProfitMultiplier int64 `json:"rebalance_profit_multiplier"`
}

// Validate checks the tier configuration for internal consistency.
func (c TierConfig) Validate() error {
	for _, v := range []struct {
		name   string
		amount sdkmath.Int
	}{
		{"idle_threshold", c.IdleThreshold},
		{"min_profit_for_harvest", c.MinProfitForHarvest},
		{"max_tvl", c.MaxTVL},
		{"min_deposit", c.MinDeposit},
		{"rebalance_min_tvl", c.RebalanceMinTVL},
		{"rebalance_overhead", c.RebalanceOverhead},
	} {
		if v.amount.IsNil() {
			return fmt.Errorf("%w: %s is nil", ErrInvalidTierConfig, v.name)
		}
		if v.amount.IsNegative() {
			return fmt.Errorf("%w: %s is negative", ErrInvalidTierConfig, v.name)
		}
	}
	if c.MaxTVL.IsZero() {
		return fmt.Errorf("%w: max_tvl must be positive", ErrInvalidTierConfig)
	}
	if c.MinAllocationThresholdBps < 0 || c.MinAllocationThresholdBps > BpsDenominator {
		return fmt.Errorf("%w: min_allocation_threshold_bps out of range: %d", ErrInvalidTierConfig, c.MinAllocationThresholdBps)
	}
	if c.MaxAllocationPerStrategyBps <= 0 || c.MaxAllocationPerStrategyBps > BpsDenominator {
		return fmt.Errorf("%w: max_allocation_per_strategy_bps out of range: %d", ErrInvalidTierConfig, c.MaxAllocationPerStrategyBps)
	}
	if c.MinAllocationThresholdBps > c.MaxAllocationPerStrategyBps {
		return fmt.Errorf("%w: min_allocation_threshold_bps (%d) exceeds max_allocation_per_strategy_bps (%d)",
			ErrInvalidTierConfig, c.MinAllocationThresholdBps, c.MaxAllocationPerStrategyBps)
	}
	if c.RebalanceSkewThresholdBps < 0 || c.RebalanceSkewThresholdBps > BpsDenominator {
		return fmt.Errorf("%w: rebalance_skew_threshold_bps out of range: %d", ErrInvalidTierConfig, c.RebalanceSkewThresholdBps)
	}
	if c.RebalanceProfitMultiplier <= 0 {
		return fmt.Errorf("%w: rebalance_profit_multiplier must be positive", ErrInvalidTierConfig)
	}
	return nil
}

// FeePolicy describes how realized yield is split between the two fixed
// stakeholders and an optional keeper incentive. Performance fees are charged
// on realized profit only, never on principal.
type FeePolicy struct {
	// PerformanceFeeBps is the share of realized profit taken as fee.
	PerformanceFeeBps int64 `json:"performance_fee_bps"`
	// TreasurySplitBps is the treasury's share of the performance fee,
	// minted as new vault shares.
	TreasurySplitBps int64 `json:"treasury_split_bps"`
	// FounderSplitBps is the founder's share of the performance fee, paid
	// out in base asset. TreasurySplitBps + FounderSplitBps must equal 10000.
	FounderSplitBps int64 `json:"founder_split_bps"`
	// KeeperIncentiveBps is the share of realized profit paid to a
	// non-official harvest caller.
	KeeperIncentiveBps int64 `json:"keeper_incentive_bps"`
}

// Validate checks the fee policy against the hard configuration invariants.
func (p FeePolicy) Validate() error {
	if p.PerformanceFeeBps < 0 || p.PerformanceFeeBps > BpsDenominator {
		return fmt.Errorf("%w: performance_fee_bps out of range: %d", ErrInvalidFeePolicy, p.PerformanceFeeBps)
	}
	if p.KeeperIncentiveBps < 0 || p.KeeperIncentiveBps > BpsDenominator {
		return fmt.Errorf("%w: keeper_incentive_bps out of range: %d", ErrInvalidFeePolicy, p.KeeperIncentiveBps)
	}
	if p.TreasurySplitBps < 0 || p.FounderSplitBps < 0 {
		return fmt.Errorf("%w: fee split components cannot be negative", ErrInvalidFeePolicy)
	}
	if p.TreasurySplitBps+p.FounderSplitBps != BpsDenominator {
		return fmt.Errorf("%w: treasury_split_bps (%d) + founder_split_bps (%d) must equal %d",
			ErrInvalidFeePolicy, p.TreasurySplitBps, p.FounderSplitBps, BpsDenominator)
	}
	return nil
}
