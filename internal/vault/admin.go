/*

This file contains the owner-gated administrative surface: pause control, fee
and threshold setters, stakeholder identity updates, and the official-keeper
allow-list. Every setter validates before mutating and snapshots the updated
configuration to the attached parameter store, when one is present.

*/

package vault

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/openvault/yvm/internal/types"
)

func (v *Vault) requireOwnerLocked(caller string) error {
	if !v.auth.IsAuthorized(caller) {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	return nil
}

// persistParamsLocked snapshots the current configuration to the parameter
// store. Persistence problems are logged, never surfaced to the admin caller.
func (v *Vault) persistParamsLocked() {
	if v.paramStore == nil {
		return
	}
	if err := v.paramStore.SaveParameters(v.tier, v.fees); err != nil {
		v.logger.Error().Err(err).Msg("Failed to persist parameter snapshot")
	}
}

// Pause disables all public vault operations.
func (v *Vault) Pause(caller string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOwnerLocked(caller); err != nil {
		return err
	}
	if v.paused {
		return ErrPaused
	}
	v.paused = true
	v.logger.Warn().Str("caller", caller).Msg("Vault paused")
	return nil
}

// Unpause re-enables public vault operations.
func (v *Vault) Unpause(caller string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOwnerLocked(caller); err != nil {
		return err
	}
	if !v.paused {
		return ErrNotPaused
	}
	v.paused = false
	v.logger.Info().Str("caller", caller).Msg("Vault unpaused")
	return nil
}

// SetPerformanceFee updates the performance fee in basis points.
func (v *Vault) SetPerformanceFee(caller string, bps int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOwnerLocked(caller); err != nil {
		return err
	}
	updated := v.fees
	updated.PerformanceFeeBps = bps
	if err := updated.Validate(); err != nil {
		return err
	}
	v.fees = updated
	v.persistParamsLocked()
	v.logger.Info().Int64("performance_fee_bps", bps).Msg("Performance fee updated")
	return nil
}

// SetFeeSplit updates the treasury/founder split; the parts must sum to
// exactly 10000.
func (v *Vault) SetFeeSplit(caller string, treasuryBps, founderBps int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOwnerLocked(caller); err != nil {
		return err
	}
	updated := v.fees
	updated.TreasurySplitBps = treasuryBps
	updated.FounderSplitBps = founderBps
	if err := updated.Validate(); err != nil {
		return err
	}
	v.fees = updated
	v.persistParamsLocked()
	v.logger.Info().
		Int64("treasury_split_bps", treasuryBps).
		Int64("founder_split_bps", founderBps).
		Msg("Fee split updated")
	return nil
}

// SetKeeperIncentive updates the keeper incentive in basis points.
func (v *Vault) SetKeeperIncentive(caller string, bps int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOwnerLocked(caller); err != nil {
		return err
	}
	updated := v.fees
	updated.KeeperIncentiveBps = bps
	if err := updated.Validate(); err != nil {
		return err
	}
	v.fees = updated
	v.persistParamsLocked()
	v.logger.Info().Int64("keeper_incentive_bps", bps).Msg("Keeper incentive updated")
	return nil
}

// SetMinDeposit updates the minimum accepted deposit.
func (v *Vault) SetMinDeposit(caller string, amount sdkmath.Int) error {
	return v.setTierAmount(caller, "min_deposit", amount, func(t *types.TierConfig) {
		t.MinDeposit = amount
	})
}

// SetIdleThreshold updates the auto-allocation threshold.
func (v *Vault) SetIdleThreshold(caller string, amount sdkmath.Int) error {
	return v.setTierAmount(caller, "idle_threshold", amount, func(t *types.TierConfig) {
		t.IdleThreshold = amount
	})
}

// SetMaxTVL updates the pooled-value cap.
func (v *Vault) SetMaxTVL(caller string, amount sdkmath.Int) error {
	return v.setTierAmount(caller, "max_tvl", amount, func(t *types.TierConfig) {
		t.MaxTVL = amount
	})
}

// SetMinProfitForHarvest updates the harvest profit floor.
func (v *Vault) SetMinProfitForHarvest(caller string, amount sdkmath.Int) error {
	return v.setTierAmount(caller, "min_profit_for_harvest", amount, func(t *types.TierConfig) {
		t.MinProfitForHarvest = amount
	})
}

func (v *Vault) setTierAmount(caller, field string, amount sdkmath.Int, apply func(*types.TierConfig)) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOwnerLocked(caller); err != nil {
		return err
	}
	updated := v.tier
	apply(&updated)
	if err := updated.Validate(); err != nil {
		return err
	}
	v.tier = updated
	v.persistParamsLocked()
	v.logger.Info().Str("field", field).Str("value", amount.String()).Msg("Tier parameter updated")
	return nil
}

// SetTreasury updates the treasury identity.
func (v *Vault) SetTreasury(caller, treasury string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOwnerLocked(caller); err != nil {
		return err
	}
	if treasury == "" {
		return fmt.Errorf("%w: treasury", ErrZeroIdentity)
	}
	v.treasury = treasury
	v.logger.Info().Str("treasury", treasury).Msg("Treasury identity updated")
	return nil
}

// SetFounder updates the founder identity.
func (v *Vault) SetFounder(caller, founder string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOwnerLocked(caller); err != nil {
		return err
	}
	if founder == "" {
		return fmt.Errorf("%w: founder", ErrZeroIdentity)
	}
	v.founder = founder
	v.logger.Info().Str("founder", founder).Msg("Founder identity updated")
	return nil
}

// SetStrategyManager swaps the StrategyManager reference.
func (v *Vault) SetStrategyManager(caller string, m ManagerAPI) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOwnerLocked(caller); err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("%w: strategy manager", ErrZeroIdentity)
	}
	v.manager = m
	v.logger.Warn().Msg("Strategy manager reference updated")
	return nil
}

// SetOfficialKeeper toggles an identity on the official-keeper allow-list.
// Official keepers harvest without drawing the keeper incentive.
func (v *Vault) SetOfficialKeeper(caller, keeper string, official bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOwnerLocked(caller); err != nil {
		return err
	}
	if keeper == "" {
		return fmt.Errorf("%w: keeper", ErrZeroIdentity)
	}
	if official {
		v.officialKeepers[keeper] = true
	} else {
		delete(v.officialKeepers, keeper)
	}
	v.logger.Info().Str("keeper", keeper).Bool("official", official).Msg("Official keeper allow-list updated")
	return nil
}

// IsOfficialKeeper reports whether an identity is on the allow-list.
func (v *Vault) IsOfficialKeeper(keeper string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.officialKeepers[keeper]
}
