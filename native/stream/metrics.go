package stream

import (
	"fmt"
	"math/big"
	"time"
)

// StreamMetrics is the on-demand analytics view of a single stream: the debt
// breakdown at the observation instant plus a summary of withdrawal history.
type StreamMetrics struct {
	ID            *big.Int
	Token         string
	Status        StreamStatus
	TotalDebt     *big.Int
	CoveredDebt   *big.Int
	UncoveredDebt *big.Int
	Withdrawable  *big.Int
	// Streamed is everything earned so far: paid out plus still claimable.
	Streamed         *big.Int
	Withdrawn        *big.Int
	WithdrawalCount  uint64
	LastWithdrawalAt int64
	// DepletionTime is only meaningful when Depletes is true.
	DepletionTime int64
	Depletes      bool
}

// TokenTotals aggregates protocol-wide amounts for one token.
type TokenTotals struct {
	Token         string
	ValueLocked   *big.Int
	FeesCollected *big.Int
}

// ProtocolMetrics is the protocol-wide analytics view.
type ProtocolMetrics struct {
	ActiveStreams uint64
	TotalStreams  uint64
	Tokens        []TokenTotals
}

// Metrics derives read-only analytics from current ledger state plus the
// accrual calculator. Nothing is replicated: every call reads the ledger so
// the view can never diverge from it.
type Metrics struct {
	ledger Ledger
	nowFn  func() int64
}

// NewMetrics constructs an aggregator over the given ledger.
func NewMetrics(ledger Ledger) *Metrics {
	return &Metrics{
		ledger: ledger,
		nowFn:  func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the observation clock, mirroring the engine's hook.
func (m *Metrics) SetNowFunc(now func() int64) {
	if now == nil {
		m.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	m.nowFn = now
}

// StreamMetrics computes the per-stream view, or ErrNotFound for an unknown
// identifier.
func (m *Metrics) StreamMetrics(id *big.Int) (*StreamMetrics, error) {
	if m == nil || m.ledger == nil {
		return nil, errNilLedger
	}
	if id == nil {
		return nil, fmt.Errorf("%w: nil identifier", ErrNotFound)
	}
	s, ok, err := m.ledger.StreamByID(id)
	if err != nil {
		return nil, fmt.Errorf("stream metrics: load stream %s: %w", id.String(), err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: id %s", ErrNotFound, id.String())
	}
	now := m.nowFn()
	withdrawable := WithdrawableAmount(s, now)
	depletion, depletes := DepletionTime(s)
	return &StreamMetrics{
		ID:               cloneOrZero(s.ID),
		Token:            s.Token,
		Status:           s.Status,
		TotalDebt:        TotalDebt(s, now),
		CoveredDebt:      CoveredDebt(s, now),
		UncoveredDebt:    UncoveredDebt(s, now),
		Withdrawable:     withdrawable,
		Streamed:         new(big.Int).Add(cloneOrZero(s.Withdrawn), withdrawable),
		Withdrawn:        cloneOrZero(s.Withdrawn),
		WithdrawalCount:  s.WithdrawalCount,
		LastWithdrawalAt: s.LastWithdrawalAt,
		DepletionTime:    depletion,
		Depletes:         depletes,
	}, nil
}

// ProtocolMetrics computes the protocol-wide view from the ledger's
// incrementally maintained aggregates.
func (m *Metrics) ProtocolMetrics() (*ProtocolMetrics, error) {
	if m == nil || m.ledger == nil {
		return nil, errNilLedger
	}
	active, err := m.ledger.ActiveStreamCount()
	if err != nil {
		return nil, err
	}
	total, err := m.ledger.TotalStreams()
	if err != nil {
		return nil, err
	}
	tokens, err := m.ledger.Tokens()
	if err != nil {
		return nil, err
	}
	out := &ProtocolMetrics{
		ActiveStreams: active,
		TotalStreams:  total,
		Tokens:        make([]TokenTotals, 0, len(tokens)),
	}
	for _, token := range tokens {
		locked, err := m.ledger.AggregateBalance(token)
		if err != nil {
			return nil, err
		}
		fees, err := m.ledger.FeesCollected(token)
		if err != nil {
			return nil, err
		}
		out.Tokens = append(out.Tokens, TokenTotals{
			Token:         token,
			ValueLocked:   locked,
			FeesCollected: fees,
		})
	}
	return out, nil
}
