/*

This file contains a simulated Strategy adapter. It models a single external
yield source in-process: a balance, a reported APY, an optional liquidity cap
on withdrawals, reward accrual, and injectable external failures. Real
protocol adapters live outside this repository; the simulator implements the
same capability contract and backs the local runtime and the test suite.

*/

package strategy

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/openvault/yvm/internal/types"
)

var (
	ErrExternalDeposit  = errors.New("external deposit failed")
	ErrExternalWithdraw = errors.New("external withdrawal failed")
	ErrExternalHarvest  = errors.New("external harvest failed")
	ErrSimInvalidAmount = errors.New("simulated strategy received invalid amount")
)

// Sim is an in-process Strategy implementation bridging to a pretend external
// yield source.
type Sim struct {
	mu sync.Mutex

	name   string
	asset  string
	apyBps int64

	balance        sdkmath.Int
	pendingRewards sdkmath.Int

	// withdrawLimit caps the amount a single Withdraw can supply, modelling
	// external illiquidity. Nil means unlimited.
	withdrawLimit *sdkmath.Int

	failDeposits  bool
	failWithdraws bool
	failHarvests  bool
}

var _ types.Strategy = (*Sim)(nil)

// NewSim creates a simulated strategy for the given asset reporting the given
// APY in basis points.
func NewSim(name, asset string, apyBps int64) *Sim {
	return &Sim{
		name:           name,
		asset:          asset,
		apyBps:         apyBps,
		balance:        sdkmath.ZeroInt(),
		pendingRewards: sdkmath.ZeroInt(),
	}
}

func (s *Sim) Name() string  { return s.name }
func (s *Sim) Asset() string { return s.asset }

func (s *Sim) APY() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apyBps, nil
}

func (s *Sim) TotalAssets() (sdkmath.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance, nil
}

// Deposit credits the simulated external source. Receipt shares echo the
// deposited amount 1:1, matching the typical external receipt token.
func (s *Sim) Deposit(assets sdkmath.Int) (sdkmath.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDeposits {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrExternalDeposit, s.name)
	}
	if assets.IsNil() || !assets.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: deposit of %s", ErrSimInvalidAmount, assets)
	}
	s.balance = s.balance.Add(assets)
	return assets, nil
}

// Withdraw debits the simulated external source, capped by the configured
// liquidity limit and by the held balance. The actual amount withdrawn is
// returned and may fall short of the request.
func (s *Sim) Withdraw(assets sdkmath.Int) (sdkmath.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWithdraws {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrExternalWithdraw, s.name)
	}
	if assets.IsNil() || !assets.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: withdrawal of %s", ErrSimInvalidAmount, assets)
	}
	actual := assets
	if actual.GT(s.balance) {
		actual = s.balance
	}
	if s.withdrawLimit != nil && actual.GT(*s.withdrawLimit) {
		actual = *s.withdrawLimit
	}
	s.balance = s.balance.Sub(actual)
	return actual, nil
}

// Harvest claims accrued rewards, reinvests them into the source and returns
// the pre-reinvestment profit. Returns zero when nothing has accrued.
func (s *Sim) Harvest() (sdkmath.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failHarvests {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrExternalHarvest, s.name)
	}
	if s.pendingRewards.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	profit := s.pendingRewards
	s.pendingRewards = sdkmath.ZeroInt()
	s.balance = s.balance.Add(profit)
	return profit, nil
}

// AccrueRewards queues reward emissions to be realized by the next Harvest.
func (s *Sim) AccrueRewards(amount sdkmath.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingRewards = s.pendingRewards.Add(amount)
}

// SetAPY updates the reported yield.
func (s *Sim) SetAPY(apyBps int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apyBps = apyBps
}

// SetWithdrawLimit caps the amount a single withdrawal can supply, modelling
// external illiquidity. Pass a nil pointer to lift the cap.
func (s *Sim) SetWithdrawLimit(limit *sdkmath.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.withdrawLimit = limit
}

// FailDeposits toggles injected deposit failures.
func (s *Sim) FailDeposits(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDeposits = fail
}

// FailWithdrawals toggles injected withdrawal failures.
func (s *Sim) FailWithdrawals(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWithdraws = fail
}

// FailHarvests toggles injected harvest failures.
func (s *Sim) FailHarvests(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failHarvests = fail
}
