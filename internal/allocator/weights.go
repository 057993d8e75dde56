/*

This file contains the target-allocation algorithm: APY-proportional weights in
basis points, with a participation floor and a per-strategy cap enforced
iteratively. The floor is a cutoff, not a minimum: a strategy whose raw weight
falls below it is excluded from the allocation entirely.

*/

package allocator

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/openvault/yvm/internal/logger"
	"github.com/openvault/yvm/internal/types"
)

var allocLogger = logger.GetForComponent("allocator")

var (
	ErrNoCandidates         = errors.New("no strategies provided for allocation")
	ErrInvalidConstraints   = errors.New("invalid allocation constraints")
	ErrInvalidAPY           = errors.New("strategy reported an invalid APY")
	ErrNoPositiveYield      = errors.New("no strategy reports positive yield")
	ErrNoEligibleStrategies = errors.New("no strategy survives the participation floor")
	ErrOverAllocation       = errors.New("constraint enforcement resulted in over-allocation")
	ErrNoConvergence        = errors.New("constraint enforcement failed to converge")
)

const maxConstraintIterations = 20 // Prevent potential infinite loops in constraint logic

// TargetWeightsBps computes the target allocation weight, in basis points, for
// each strategy given its reported APY in basis points. The returned slice is
// aligned with the input order.
//
// Raw weights are APY-proportional. Weights below floorBps are zeroed out,
// surviving weights above capBps are clamped with the excess redistributed
// proportionally among the uncapped survivors, and the result is renormalized
// so the weights sum to exactly 10000 with the rounding remainder assigned to
// the last uncapped strategy in iteration order. When every survivor is
// capped the sum may legitimately fall short of 10000.
func TargetWeightsBps(apys []int64, floorBps, capBps int64) ([]int64, error) {
	if len(apys) == 0 {
		return nil, ErrNoCandidates
	}
	if floorBps < 0 || floorBps > types.BpsDenominator {
		return nil, fmt.Errorf("%w: floor %d bps", ErrInvalidConstraints, floorBps)
	}
	if capBps <= 0 || capBps > types.BpsDenominator {
		return nil, fmt.Errorf("%w: cap %d bps", ErrInvalidConstraints, capBps)
	}
	if floorBps > capBps {
		return nil, fmt.Errorf("%w: floor %d bps exceeds cap %d bps", ErrInvalidConstraints, floorBps, capBps)
	}

	var totalAPY int64
	for i, apy := range apys {
		if apy < 0 {
			return nil, fmt.Errorf("%w: strategy %d reports %d bps", ErrInvalidAPY, i, apy)
		}
		totalAPY += apy
	}
	if totalAPY == 0 {
		return nil, ErrNoPositiveYield
	}

	// Participation cutoff on the raw proportional weight.
	survivors := make([]int, 0, len(apys))
	var survivorAPY int64
	for i, apy := range apys {
		raw := apy * types.BpsDenominator / totalAPY
		if raw < floorBps {
			allocLogger.Debug().
				Int("strategy", i).
				Int64("rawWeightBps", raw).
				Int64("floorBps", floorBps).
				Msg("Strategy below participation floor, excluded")
			continue
		}
		survivors = append(survivors, i)
		survivorAPY += apy
	}
	if len(survivors) == 0 {
		return nil, ErrNoEligibleStrategies
	}

	// Iteratively lock strategies at the cap; the freed excess is
	// redistributed proportionally among the still-uncapped survivors.
	locked := make(map[int]bool, len(survivors))
	iteration := 0
	madeChanges := true
	for madeChanges && iteration < maxConstraintIterations {
		madeChanges = false
		iteration++

		remaining := types.BpsDenominator - int64(len(locked))*capBps
		if remaining < 0 {
			return nil, ErrOverAllocation
		}

		var unlockedAPY int64
		for _, i := range survivors {
			if !locked[i] {
				unlockedAPY += apys[i]
			}
		}
		if unlockedAPY == 0 {
			break // Everything is locked at the cap
		}

		for _, i := range survivors {
			if locked[i] {
				continue
			}
			w := apys[i] * remaining / unlockedAPY
			if w > capBps {
				allocLogger.Debug().
					Int("strategy", i).
					Int64("weightBps", w).
					Int64("capBps", capBps).
					Msg("Strategy above cap, locking at cap")
				locked[i] = true
				madeChanges = true
			}
		}
	}
	if iteration == maxConstraintIterations && madeChanges {
		return nil, fmt.Errorf("%w after %d iterations", ErrNoConvergence, maxConstraintIterations)
	}

	// Final assignment: locked survivors get the cap, the rest split the
	// remaining weight proportionally. The truncation remainder goes to the
	// last uncapped survivor so the weights sum to exactly 10000.
	weights := make([]int64, len(apys))
	remaining := types.BpsDenominator - int64(len(locked))*capBps
	var unlockedAPY int64
	lastUncapped := -1
	for _, i := range survivors {
		if locked[i] {
			weights[i] = capBps
			continue
		}
		unlockedAPY += apys[i]
		lastUncapped = i
	}
	if unlockedAPY > 0 {
		var assigned int64
		for _, i := range survivors {
			if locked[i] {
				continue
			}
			weights[i] = apys[i] * remaining / unlockedAPY
			assigned += weights[i]
		}
		weights[lastUncapped] += remaining - assigned
	}

	var total int64
	for _, w := range weights {
		total += w
	}
	if total > types.BpsDenominator {
		return nil, ErrOverAllocation
	}

	allocLogger.Debug().
		Int("survivors", len(survivors)).
		Int("capped", len(locked)).
		Int64("totalWeightBps", total).
		Msg("Target weights computed")

	return weights, nil
}

// SplitByWeights divides amount across the given bps weights, returning one
// portion per weight in input order plus the undeployed remainder. Each
// nonzero weight receives amount * w / 10000, so a weight set that sums below
// 10000 (every survivor locked at the cap) leaves the shortfall with the
// caller instead of stretching the portions past the caps. The truncation
// dust within the weighted share goes to the last nonzero-weighted entry.
func SplitByWeights(amount sdkmath.Int, weights []int64) ([]sdkmath.Int, sdkmath.Int, error) {
	if amount.IsNil() || amount.IsNegative() {
		return nil, sdkmath.ZeroInt(), fmt.Errorf("%w: amount must be non-negative", ErrInvalidConstraints)
	}
	var totalWeight int64
	lastNonzero := -1
	for i, w := range weights {
		if w < 0 {
			return nil, sdkmath.ZeroInt(), fmt.Errorf("%w: negative weight at %d", ErrInvalidConstraints, i)
		}
		totalWeight += w
		if w > 0 {
			lastNonzero = i
		}
	}
	if totalWeight == 0 {
		return nil, sdkmath.ZeroInt(), ErrNoEligibleStrategies
	}
	if totalWeight > types.BpsDenominator {
		return nil, sdkmath.ZeroInt(), fmt.Errorf("%w: weights sum to %d bps", ErrOverAllocation, totalWeight)
	}

	weighted := amount.MulRaw(totalWeight).QuoRaw(types.BpsDenominator)
	portions := make([]sdkmath.Int, len(weights))
	assigned := sdkmath.ZeroInt()
	for i, w := range weights {
		if w == 0 {
			portions[i] = sdkmath.ZeroInt()
			continue
		}
		portions[i] = amount.MulRaw(w).QuoRaw(types.BpsDenominator)
		assigned = assigned.Add(portions[i])
	}
	portions[lastNonzero] = portions[lastNonzero].Add(weighted.Sub(assigned))
	return portions, amount.Sub(weighted), nil
}
