/*

This file contains the default tier configuration and fee policy used when no
active parameter set exists in the database yet. Amounts are in base-asset
micro-units.

*/

package config

import (
	sdkmath "cosmossdk.io/math"

	"github.com/openvault/yvm/internal/types"
)

// DefaultParamsConfigName is the configuration name under which parameter
// snapshots are persisted.
const DefaultParamsConfigName = "default_yvm_tier"

// DefaultParamsConfigVersion is the initial parameter version.
const DefaultParamsConfigVersion = 1

// DefaultTierConfig is the conservative launch tier.
var DefaultTierConfig = types.TierConfig{
	IdleThreshold:       sdkmath.NewInt(10_000_000),        // 10 units
	MinProfitForHarvest: sdkmath.NewInt(1_000_000),         // 1 unit
	MaxTVL:              sdkmath.NewInt(1_000_000_000_000), // 1M units
	MinDeposit:          sdkmath.NewInt(1_000_000),         // 1 unit

	MinAllocationThresholdBps:   500,  // 5% participation cutoff
	MaxAllocationPerStrategyBps: 5000, // 50% single-strategy cap

	RebalanceMinTVL:           sdkmath.NewInt(100_000_000), // 100 units
	RebalanceSkewThresholdBps: 300,                         // 3% divergence
	RebalanceOverhead:         sdkmath.NewInt(500_000),     // 0.5 units per move
	RebalanceProfitMultiplier: 3,
}

// DefaultFeePolicy is the launch fee schedule: 10% performance fee split
// 80/20 between treasury and founder, 0.5% of profit to outside keepers.
var DefaultFeePolicy = types.FeePolicy{
	PerformanceFeeBps:  1000,
	TreasurySplitBps:   8000,
	FounderSplitBps:    2000,
	KeeperIncentiveBps: 50,
}
