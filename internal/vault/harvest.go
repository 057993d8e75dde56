/*

This file contains the harvest-then-distribute-fees cycle and the manual idle
allocation trigger. Harvest is callable by any identity; callers not on the
official-keeper allow-list are compensated from realized profit.

*/

package vault

import (
	"fmt"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/openvault/yvm/internal/types"
	"github.com/openvault/yvm/internal/utils"
)

// Harvest realizes accrued yield across every strategy and distributes the
// performance fee. Profit below the tier minimum returns zero with no state
// change. The treasury's fee share is minted as new shares; the founder's
// share and any keeper incentive are withdrawn from the manager and paid out
// in base asset.
func (v *Vault) Harvest(caller string) (sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.paused {
		return sdkmath.ZeroInt(), ErrPaused
	}
	if caller == "" {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: harvest caller", ErrZeroIdentity)
	}

	opID := uuid.New().String()
	harvestLogger := v.logger.With().Str("harvest_id", opID).Logger()

	profit, err := v.manager.Harvest(v.id)
	if err != nil {
		harvestLogger.Error().Err(err).Msg("Harvest aborted: strategy harvest failed")
		return sdkmath.ZeroInt(), err
	}
	if profit.LT(v.tier.MinProfitForHarvest) {
		harvestLogger.Info().
			Str("profit", profit.String()).
			Str("minimum", v.tier.MinProfitForHarvest.String()).
			Msg("Profit below harvest minimum, no fees distributed")
		return sdkmath.ZeroInt(), nil
	}

	fee, err := utils.PortionBps(profit, v.fees.PerformanceFeeBps)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	treasuryFee, err := utils.PortionBps(fee, v.fees.TreasurySplitBps)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	// The split must account for the whole fee; truncation dust goes to the
	// founder side so treasury + founder == fee exactly.
	founderFee := fee.Sub(treasuryFee)

	incentive := sdkmath.ZeroInt()
	if !v.officialKeepers[caller] {
		incentive, err = utils.PortionBps(profit, v.fees.KeeperIncentiveBps)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
	}

	// External payouts happen before any ledger mutation so a failure leaves
	// the share ledger untouched. The manager may under-deliver on strategy
	// illiquidity; only the delivered amounts count as paid.
	founderPaid := sdkmath.ZeroInt()
	if founderFee.IsPositive() {
		founderPaid, err = v.manager.WithdrawTo(v.id, founderFee, v.founder)
		if err != nil {
			harvestLogger.Error().Err(err).Msg("Harvest aborted: founder fee payout failed")
			return sdkmath.ZeroInt(), err
		}
		if founderPaid.LT(founderFee) {
			harvestLogger.Warn().
				Str("owed", founderFee.String()).
				Str("paid", founderPaid.String()).
				Msg("Founder fee under-delivered on strategy illiquidity")
		}
	}
	incentivePaid := sdkmath.ZeroInt()
	if incentive.IsPositive() {
		incentivePaid, err = v.manager.WithdrawTo(v.id, incentive, caller)
		if err != nil {
			harvestLogger.Error().Err(err).Msg("Harvest aborted: keeper incentive payout failed")
			return sdkmath.ZeroInt(), err
		}
		if incentivePaid.LT(incentive) {
			harvestLogger.Warn().
				Str("owed", incentive.String()).
				Str("paid", incentivePaid.String()).
				Msg("Keeper incentive under-delivered on strategy illiquidity")
		}
	}

	if treasuryFee.IsPositive() {
		totalAfter, err := v.totalAssetsLocked()
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		treasuryShares := v.convertToSharesLocked(treasuryFee, totalAfter)
		if treasuryShares.IsPositive() {
			v.creditSharesLocked(v.treasury, treasuryShares)
		}
	}

	now := time.Now().UTC()
	v.lastHarvest = now
	v.totalHarvested = v.totalHarvested.Add(profit)

	v.events.Publish(types.NewEvent(types.EventHarvest, map[string]string{
		"profit":    profit.String(),
		"fee":       fee.String(),
		"timestamp": strconv.FormatInt(now.Unix(), 10),
	}))
	v.events.Publish(types.NewEvent(types.EventFeeDistributed, map[string]string{
		"treasury_amount": treasuryFee.String(),
		"founder_amount":  founderPaid.String(),
	}))

	if v.harvestStore != nil {
		distributed := treasuryFee.Add(founderPaid)
		if err := v.harvestStore.SaveHarvest(profit, distributed, now, v.totalHarvested); err != nil {
			harvestLogger.Error().Err(err).Msg("Failed to persist harvest record")
		}
	}

	harvestLogger.Info().
		Str("caller", caller).
		Str("profit", profit.String()).
		Str("fee", fee.String()).
		Str("treasury", treasuryFee.String()).
		Str("founder", founderPaid.String()).
		Str("incentive", incentivePaid.String()).
		Msg("Harvest completed")
	return profit, nil
}

// AllocateIdle is the manual sweep trigger. It fails while the idle buffer is
// below the tier threshold.
func (v *Vault) AllocateIdle(caller string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.paused {
		return ErrPaused
	}
	if v.idle.LT(v.tier.IdleThreshold) || v.idle.IsZero() {
		return fmt.Errorf("%w: idle %s, threshold %s", ErrIdleBelowThreshold, v.idle, v.tier.IdleThreshold)
	}
	if err := v.maybeAllocateIdleLocked(); err != nil {
		return err
	}
	v.logger.Info().Str("caller", caller).Msg("Manual idle allocation completed")
	return nil
}
