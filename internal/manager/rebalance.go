/*

This file contains the rebalance decision and execution logic: moving already
deployed capital from lower-yielding to higher-yielding strategies when the
projected annualized gain clears a configured multiple of the assumed
execution overhead. The gates fail explicitly rather than silently no-op-ing
so a caller can distinguish "nothing to do" from "did nothing".

*/

package manager

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/openvault/yvm/internal/allocator"
	"github.com/openvault/yvm/internal/types"
	"github.com/openvault/yvm/internal/utils"
)

// rebalanceMove is one planned transfer between two registry entries.
type rebalanceMove struct {
	fromIndex int
	toIndex   int
	amount    sdkmath.Int
}

// rebalancePlan holds everything needed to decide and execute a rebalance.
type rebalancePlan struct {
	total               sdkmath.Int
	maxSkewBps          int64
	projectedAnnualGain sdkmath.Int
	moves               []rebalanceMove

	// capViolation marks a plan that restores constraint compliance: some
	// strategy currently holds more than the per-strategy cap allows.
	capViolation bool
}

// planRebalanceLocked recomputes target weights from current APYs and derives
// the surplus-to-deficit moves that would realign the deployed balances.
func (m *StrategyManager) planRebalanceLocked() (*rebalancePlan, error) {
	if len(m.strategies) == 0 {
		return nil, ErrNoStrategies
	}

	balances := make([]sdkmath.Int, len(m.strategies))
	total := sdkmath.ZeroInt()
	for i, s := range m.strategies {
		bal, err := s.TotalAssets()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrStrategyQuery, s.Name(), err)
		}
		balances[i] = bal
		total = total.Add(bal)
	}
	if total.IsZero() {
		return &rebalancePlan{total: total, projectedAnnualGain: sdkmath.ZeroInt()}, nil
	}

	apys, err := m.collectAPYsLocked()
	if err != nil {
		return nil, err
	}
	weights, err := allocator.TargetWeightsBps(apys, m.tier.MinAllocationThresholdBps, m.tier.MaxAllocationPerStrategyBps)
	if err != nil {
		return nil, err
	}
	// When every survivor is locked at the cap the targets sum below the
	// deployed total; the unmatched surplus stays where it is, since there is
	// no path back to the idle buffer from here.
	targets, _, err := allocator.SplitByWeights(total, weights)
	if err != nil {
		return nil, err
	}

	// Skew and projected gain. The gain of moving capital is the sum over
	// strategies of (target - current) * apy, which nets the yield lost at
	// the sources against the yield gained at the destinations.
	var maxSkewBps int64
	capViolation := false
	gain := sdkmath.ZeroInt()
	surpluses := make([]rebalanceMove, 0)
	deficits := make([]rebalanceMove, 0)
	for i := range m.strategies {
		heldBps, err := utils.BpsOf(balances[i], total)
		if err != nil {
			return nil, err
		}
		if heldBps > m.tier.MaxAllocationPerStrategyBps {
			capViolation = true
		}
		diff := targets[i].Sub(balances[i])
		skewBps, err := utils.BpsOf(diff.Abs(), total)
		if err != nil {
			return nil, err
		}
		if skewBps > maxSkewBps {
			maxSkewBps = skewBps
		}
		gain = gain.Add(diff.MulRaw(apys[i]).QuoRaw(types.BpsDenominator))
		if diff.IsNegative() {
			surpluses = append(surpluses, rebalanceMove{fromIndex: i, amount: diff.Neg()})
		} else if diff.IsPositive() {
			deficits = append(deficits, rebalanceMove{toIndex: i, amount: diff})
		}
	}

	// Greedy pairing of surpluses to deficits in registry order keeps the
	// move list deterministic.
	moves := make([]rebalanceMove, 0)
	si, di := 0, 0
	for si < len(surpluses) && di < len(deficits) {
		amount := surpluses[si].amount
		if deficits[di].amount.LT(amount) {
			amount = deficits[di].amount
		}
		if amount.IsPositive() {
			moves = append(moves, rebalanceMove{
				fromIndex: surpluses[si].fromIndex,
				toIndex:   deficits[di].toIndex,
				amount:    amount,
			})
		}
		surpluses[si].amount = surpluses[si].amount.Sub(amount)
		deficits[di].amount = deficits[di].amount.Sub(amount)
		if surpluses[si].amount.IsZero() {
			si++
		}
		if deficits[di].amount.IsZero() {
			di++
		}
	}

	return &rebalancePlan{
		total:               total,
		maxSkewBps:          maxSkewBps,
		projectedAnnualGain: gain,
		moves:               moves,
		capViolation:        capViolation,
	}, nil
}

// checkGates applies the three rebalance gates in order: TVL floor, skew
// threshold, profitability versus overhead.
func (m *StrategyManager) checkGates(plan *rebalancePlan) error {
	if plan.total.LT(m.tier.RebalanceMinTVL) {
		return fmt.Errorf("%w: deployed %s, minimum %s",
			ErrRebalanceBelowMinTVL, plan.total, m.tier.RebalanceMinTVL)
	}
	if plan.maxSkewBps < m.tier.RebalanceSkewThresholdBps {
		return fmt.Errorf("%w: max skew %d bps, threshold %d bps",
			ErrRebalanceSkewTooSmall, plan.maxSkewBps, m.tier.RebalanceSkewThresholdBps)
	}
	// A plan that restores cap compliance is not an economic optimization;
	// the profit hurdle applies only to yield-chasing moves.
	if plan.capViolation {
		return nil
	}
	hurdle := m.tier.RebalanceOverhead.MulRaw(m.tier.RebalanceProfitMultiplier)
	if !plan.projectedAnnualGain.GT(hurdle) {
		return fmt.Errorf("%w: projected gain %s, hurdle %s",
			ErrRebalanceNotProfitable, plan.projectedAnnualGain, hurdle)
	}
	return nil
}

// ShouldRebalance reports whether a Rebalance call would execute, without
// moving any capital.
func (m *StrategyManager) ShouldRebalance() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	plan, err := m.planRebalanceLocked()
	if err != nil {
		return false, err
	}
	if err := m.checkGates(plan); err != nil {
		return false, nil
	}
	return len(plan.moves) > 0, nil
}

// Rebalance moves deployed capital from overweight to underweight strategies
// per the current target weights. Fails explicitly when any gate is not met.
func (m *StrategyManager) Rebalance(caller string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	plan, err := m.planRebalanceLocked()
	if err != nil {
		return err
	}
	if err := m.checkGates(plan); err != nil {
		return err
	}

	for _, move := range plan.moves {
		src := m.strategies[move.fromIndex]
		dst := m.strategies[move.toIndex]

		actual, err := src.Withdraw(move.amount)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrStrategyWithdraw, src.Name(), err)
		}
		if actual.IsZero() {
			m.logger.Warn().
				Str("from", src.Name()).
				Str("to", dst.Name()).
				Msg("Rebalance move skipped: source supplied nothing")
			continue
		}
		if _, err := dst.Deposit(actual); err != nil {
			// Return the withdrawn capital to its source so the failed
			// operation leaves no partially-applied state behind.
			if _, depErr := src.Deposit(actual); depErr != nil {
				m.logger.Error().
					Err(depErr).
					Str("strategy", src.Name()).
					Str("assets", actual.String()).
					Msg("Compensating deposit failed while unwinding rebalance move")
			}
			return fmt.Errorf("%w: %s: %w", ErrStrategyDeposit, dst.Name(), err)
		}

		m.events.Publish(types.NewEvent(types.EventRebalanced, map[string]string{
			"from_strategy": src.Name(),
			"to_strategy":   dst.Name(),
			"assets":        actual.String(),
		}))
		m.logger.Info().
			Str("caller", caller).
			Str("from", src.Name()).
			Str("to", dst.Name()).
			Str("assets", actual.String()).
			Msg("Capital rebalanced")
	}
	return nil
}
