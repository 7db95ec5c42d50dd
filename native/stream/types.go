package stream

import (
	"fmt"
	"math/big"
	"strings"
)

// StreamStatus enumerates the lifecycle states of a payment stream. The set is
// closed: Active may move to Paused or Canceled, Paused may move back to
// Active (via restart) or to Canceled, and Canceled is terminal.
type StreamStatus uint8

const (
	StreamActive StreamStatus = iota
	StreamPaused
	StreamCanceled
)

// Valid reports whether the status value is within the supported range.
func (s StreamStatus) Valid() bool {
	switch s {
	case StreamActive, StreamPaused, StreamCanceled:
		return true
	default:
		return false
	}
}

func (s StreamStatus) String() string {
	switch s {
	case StreamActive:
		return "active"
	case StreamPaused:
		return "paused"
	case StreamCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Stream captures the full accounting state of a single sender-to-recipient
// token release schedule. Identifiers are minted by the ledger from a
// monotonic 256-bit counter and are never reused; the matching ownership token
// carries the same identifier and its holder is authoritative for all
// recipient-side operations.
type Stream struct {
	ID        *big.Int
	Sender    [20]byte
	Recipient [20]byte
	// Delegate may act on the recipient's behalf without holding ownership.
	// The zero address means no delegate is set.
	Delegate [20]byte
	Token    string
	// RatePerSecond is floor(committed amount / duration) in smallest token
	// units per second; restart re-derives it from the remaining amount.
	RatePerSecond *big.Int
	// TotalAmount is the amount committed at creation. Additive deposits to a
	// live stream are not supported, so it never changes.
	TotalAmount *big.Int
	// Balance is the deposited amount still held by the protocol vault on
	// behalf of this stream.
	Balance   *big.Int
	Withdrawn *big.Int
	// SnapshotDebt is the debt accrued up to the most recent pause or cancel,
	// carried across restarts so past debt is never recomputed.
	SnapshotDebt *big.Int
	StartTime    int64
	// AnchorTime is the base of the current accrual window; creation and
	// restart both set it to the call time.
	AnchorTime       int64
	Duration         uint64
	Cancelable       bool
	Transferable     bool
	Status           StreamStatus
	WithdrawalCount  uint64
	LastWithdrawalAt int64
}

// EndTime returns the end of the current accrual window.
func (s *Stream) EndTime() int64 {
	if s == nil {
		return 0
	}
	return s.AnchorTime + int64(s.Duration)
}

// HasDelegate reports whether a delegate is currently assigned.
func (s *Stream) HasDelegate() bool {
	return s != nil && s.Delegate != ([20]byte{})
}

// Clone returns a deep copy so callers can mutate the copy without affecting
// the stored instance.
func (s *Stream) Clone() *Stream {
	if s == nil {
		return nil
	}
	clone := *s
	clone.ID = cloneOrZero(s.ID)
	clone.RatePerSecond = cloneOrZero(s.RatePerSecond)
	clone.TotalAmount = cloneOrZero(s.TotalAmount)
	clone.Balance = cloneOrZero(s.Balance)
	clone.Withdrawn = cloneOrZero(s.Withdrawn)
	clone.SnapshotDebt = cloneOrZero(s.SnapshotDebt)
	return &clone
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// NormalizeToken canonicalises a token symbol to trimmed upper case and
// rejects symbols outside the supported shape (1-16 characters, A-Z and 0-9).
func NormalizeToken(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" || len(trimmed) > 16 {
		return "", fmt.Errorf("streams: invalid token symbol %q", symbol)
	}
	for _, r := range trimmed {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("streams: invalid token symbol %q", symbol)
		}
	}
	return trimmed, nil
}

// SanitizeStream validates and normalises a stream record, returning a cloned
// instance with canonical token casing and non-nil amount fields. The original
// value is not mutated.
func SanitizeStream(s *Stream) (*Stream, error) {
	if s == nil {
		return nil, fmt.Errorf("streams: nil stream")
	}
	clone := s.Clone()
	token, err := NormalizeToken(clone.Token)
	if err != nil {
		return nil, err
	}
	clone.Token = token
	if clone.TotalAmount.Sign() < 0 || clone.Balance.Sign() < 0 ||
		clone.Withdrawn.Sign() < 0 || clone.SnapshotDebt.Sign() < 0 ||
		clone.RatePerSecond.Sign() < 0 {
		return nil, fmt.Errorf("streams: negative amount field")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("streams: invalid status: %d", clone.Status)
	}
	if clone.AnchorTime < clone.StartTime {
		return nil, fmt.Errorf("streams: anchor before start time")
	}
	return clone, nil
}
