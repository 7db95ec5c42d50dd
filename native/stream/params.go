package stream

import (
	"fmt"
	"math/big"
)

// FeeUnit is the fixed-point denominator for protocol fee rates. A rate equal
// to FeeUnit retains 100% of a withdrawal as protocol revenue.
var FeeUnit = mustBigInt("1000000000000000000") // 1e18

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// FeePolicy holds the protocol fee configuration: a default rate plus
// per-token overrides, each a parts-per-1e18 fraction of every withdrawal.
// The engine is the single writer; read paths receive clones.
type FeePolicy struct {
	DefaultRate *big.Int
	TokenRates  map[string]*big.Int
}

// NewFeePolicy constructs a policy with the supplied default rate and no
// per-token overrides. A nil rate is treated as zero.
func NewFeePolicy(defaultRate *big.Int) *FeePolicy {
	return &FeePolicy{
		DefaultRate: cloneOrZero(defaultRate),
		TokenRates:  make(map[string]*big.Int),
	}
}

// Clone returns a deep copy to avoid aliasing the override map or the rate
// values between callers.
func (p *FeePolicy) Clone() *FeePolicy {
	if p == nil {
		return nil
	}
	clone := &FeePolicy{
		DefaultRate: cloneOrZero(p.DefaultRate),
		TokenRates:  make(map[string]*big.Int, len(p.TokenRates)),
	}
	for token, rate := range p.TokenRates {
		clone.TokenRates[token] = cloneOrZero(rate)
	}
	return clone
}

// RateFor resolves the fee rate for a token, falling back to the default when
// no override is configured.
func (p *FeePolicy) RateFor(token string) *big.Int {
	if p == nil {
		return big.NewInt(0)
	}
	if rate, ok := p.TokenRates[token]; ok {
		return cloneOrZero(rate)
	}
	return cloneOrZero(p.DefaultRate)
}

// SetDefaultRate updates the fallback rate. Rates above 100% are rejected.
func (p *FeePolicy) SetDefaultRate(rate *big.Int) error {
	checked, err := checkRate(rate)
	if err != nil {
		return err
	}
	p.DefaultRate = checked
	return nil
}

// SetTokenRate installs a per-token override. Rates above 100% are rejected.
func (p *FeePolicy) SetTokenRate(token string, rate *big.Int) error {
	normalized, err := NormalizeToken(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	checked, err := checkRate(rate)
	if err != nil {
		return err
	}
	if p.TokenRates == nil {
		p.TokenRates = make(map[string]*big.Int)
	}
	p.TokenRates[normalized] = checked
	return nil
}

// Apply splits a gross withdrawal into the recipient's net amount and the
// protocol fee. The fee floors, so net+fee always equals gross exactly.
func (p *FeePolicy) Apply(token string, gross *big.Int) (net, fee *big.Int) {
	net = cloneOrZero(gross)
	fee = big.NewInt(0)
	if net.Sign() <= 0 {
		return big.NewInt(0), fee
	}
	rate := p.RateFor(token)
	if rate.Sign() == 0 {
		return net, fee
	}
	fee = new(big.Int).Mul(net, rate)
	fee.Quo(fee, FeeUnit)
	net.Sub(net, fee)
	return net, fee
}

func checkRate(rate *big.Int) (*big.Int, error) {
	if rate == nil || rate.Sign() < 0 {
		return nil, fmt.Errorf("%w: fee rate must be non-negative", ErrInvalidAmount)
	}
	if rate.Cmp(FeeUnit) > 0 {
		return nil, fmt.Errorf("%w: fee rate exceeds 100%%", ErrInvalidAmount)
	}
	return new(big.Int).Set(rate), nil
}
