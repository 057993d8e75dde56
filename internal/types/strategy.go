/*

This file contains the Strategy capability contract every yield adapter must satisfy.
Adapters bridge pooled capital to exactly one external yield source; they carry no
allocation logic of their own and only execute instructions from the StrategyManager.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// Strategy is the capability contract for a single external yield source.
// Implementations are owned and driven exclusively by the StrategyManager.
type Strategy interface {
	// Deposit invests assets into the external yield source. The assets are
	// assumed to already be under the strategy's control when called. Returns
	// the receipt shares credited by the external source, which for most
	// sources echoes the deposited amount 1:1.
	Deposit(assets sdkmath.Int) (sdkmath.Int, error)

	// Withdraw pulls assets out of the external source and forwards the
	// proceeds to the caller. The actual amount withdrawn may exceed the
	// request by accrued yield, or fall short of it when the external source
	// lacks liquidity.
	Withdraw(assets sdkmath.Int) (sdkmath.Int, error)

	// Harvest claims pending reward emissions, converts them to the base
	// asset and reinvests the proceeds into the same external source.
	// Returns the pre-reinvestment profit, or zero when there is nothing to
	// claim (the sole sanctioned no-op).
	Harvest() (sdkmath.Int, error)

	// TotalAssets reports the strategy's current balance in base-asset units.
	TotalAssets() (sdkmath.Int, error)

	// APY reports the strategy's current yield in basis points.
	APY() (int64, error)

	// Asset returns the identity of the base asset this strategy accounts in.
	Asset() string

	// Name returns a human-readable strategy name for logs and events.
	Name() string
}
