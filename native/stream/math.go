package stream

import (
	"math"
	"math/big"

	"github.com/holiman/uint256"
)

// The accrual calculator is pure: every function takes a stream snapshot plus
// a timestamp and derives amounts without touching state. All divisions floor,
// so a rate derived from total/duration may under-allocate by up to
// duration-1 smallest units over the full window; the residual stays in the
// deposited balance and returns to the sender on cancel.

// RatePerSecond derives the accrual rate as floor(total / duration) in
// smallest token units per second. A zero or negative total, or a zero
// duration, yields a zero rate.
func RatePerSecond(total *big.Int, duration uint64) *big.Int {
	if total == nil || total.Sign() <= 0 || duration == 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Quo(total, new(big.Int).SetUint64(duration))
}

// TotalDebt returns the cumulative amount owed to the recipient at the given
// time, capped by the committed total. Paused and canceled streams report the
// debt frozen at the pause/cancel instant.
func TotalDebt(s *Stream, now int64) *big.Int {
	if s == nil {
		return big.NewInt(0)
	}
	debt := cloneOrZero(s.SnapshotDebt)
	if s.Status == StreamActive {
		at := clampTime(now, s.AnchorTime, s.EndTime())
		elapsed := at - s.AnchorTime
		if elapsed > 0 {
			accrued := new(big.Int).Mul(cloneOrZero(s.RatePerSecond), big.NewInt(elapsed))
			debt.Add(debt, accrued)
		}
	}
	return capAtTotal(s, debt)
}

// CoveredDebt returns the portion of the debt backed by funds the protocol
// actually holds for the stream.
func CoveredDebt(s *Stream, now int64) *big.Int {
	if s == nil {
		return big.NewInt(0)
	}
	debt := TotalDebt(s, now)
	funded := new(big.Int).Add(cloneOrZero(s.Balance), cloneOrZero(s.Withdrawn))
	if debt.Cmp(funded) > 0 {
		return funded
	}
	return debt
}

// UncoveredDebt returns the portion of the debt the deposited balance no
// longer backs.
func UncoveredDebt(s *Stream, now int64) *big.Int {
	debt := TotalDebt(s, now)
	return debt.Sub(debt, CoveredDebt(s, now))
}

// WithdrawableAmount returns the covered debt not yet paid out. The result is
// never negative and never exceeds the deposited balance.
func WithdrawableAmount(s *Stream, now int64) *big.Int {
	if s == nil {
		return big.NewInt(0)
	}
	withdrawable := CoveredDebt(s, now)
	withdrawable.Sub(withdrawable, cloneOrZero(s.Withdrawn))
	if withdrawable.Sign() < 0 {
		return big.NewInt(0)
	}
	return withdrawable
}

// DepletionTime projects the timestamp at which the deposited funds run out at
// the current rate. The second return is false when the stream never depletes:
// the rate is zero, the stream is not active, or the held funds cover
// everything the stream can still accrue.
func DepletionTime(s *Stream) (int64, bool) {
	if s == nil || s.Status != StreamActive {
		return 0, false
	}
	rate := cloneOrZero(s.RatePerSecond)
	if rate.Sign() == 0 {
		return 0, false
	}
	funded := new(big.Int).Add(cloneOrZero(s.Balance), cloneOrZero(s.Withdrawn))
	maxAccrual := new(big.Int).Mul(rate, new(big.Int).SetUint64(s.Duration))
	maxAccrual.Add(maxAccrual, cloneOrZero(s.SnapshotDebt))
	maxAccrual = capAtTotal(s, maxAccrual)
	if funded.Cmp(maxAccrual) >= 0 {
		return 0, false
	}
	need := funded.Sub(funded, cloneOrZero(s.SnapshotDebt))
	if need.Sign() <= 0 {
		return s.AnchorTime, true
	}
	// Ceil division: the returned instant is the first second at which the
	// accrued debt reaches the held funds.
	q, r := new(big.Int).QuoRem(need, rate, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	if !q.IsInt64() || q.Int64() > math.MaxInt64-s.AnchorTime {
		return 0, false
	}
	return s.AnchorTime + q.Int64(), true
}

func clampTime(now, start, end int64) int64 {
	if now < start {
		return start
	}
	if now > end {
		return end
	}
	return now
}

func capAtTotal(s *Stream, debt *big.Int) *big.Int {
	if s.TotalAmount != nil && debt.Cmp(s.TotalAmount) > 0 {
		return new(big.Int).Set(s.TotalAmount)
	}
	return debt
}

// fitsWord reports whether the value is representable in 256 bits. Engine
// entry points reject amounts outside this range so downstream products
// (rate times elapsed, fee times gross) stay representable too.
func fitsWord(v *big.Int) bool {
	if v == nil || v.Sign() < 0 {
		return false
	}
	_, overflow := uint256.FromBig(v)
	return !overflow
}
