package streams

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"streampay/native/stream"
	"streampay/storage"
)

var (
	streamRecordPrefix = []byte("streams/record/")
	streamCounterKey   = []byte("streams/counter")
	aggregatePrefix    = []byte("streams/aggregate/")
	feesPrefix         = []byte("streams/fees/")
	activeCountKey     = []byte("streams/active")
	tokenIndexKey      = []byte("streams/tokens")
)

var (
	errUnknownStream = errors.New("streams store: unknown stream")
	errTokenChanged  = errors.New("streams store: stream token is immutable")
	errTerminalState = errors.New("streams store: canceled streams cannot leave the terminal state")
)

// storedStream is the RLP shape of a stream record. Timestamps are stored as
// uint64 because RLP has no signed integers.
type storedStream struct {
	ID               *big.Int
	Sender           [20]byte
	Recipient        [20]byte
	Delegate         [20]byte
	Token            string
	RatePerSecond    *big.Int
	TotalAmount      *big.Int
	Balance          *big.Int
	Withdrawn        *big.Int
	SnapshotDebt     *big.Int
	StartTime        uint64
	AnchorTime       uint64
	Duration         uint64
	Cancelable       bool
	Transferable     bool
	Status           uint8
	WithdrawalCount  uint64
	LastWithdrawalAt uint64
}

// Store is the persistent stream ledger: the identifier-to-record mapping,
// the monotonic 256-bit identifier counter, and protocol aggregates that are
// maintained incrementally on every insert and update instead of being
// recomputed by scans.
type Store struct {
	mu sync.Mutex
	db storage.Database
}

var _ stream.Ledger = (*Store)(nil)

// NewStore binds a ledger to the given key-value backend.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

// InsertStream mints the next identifier, persists the record and bumps the
// aggregates. The returned identifier is never reused, even across restarts,
// because the counter itself is persisted.
func (s *Store) InsertStream(rec *stream.Stream) (*big.Int, error) {
	clean, err := stream.SanitizeStream(rec)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	counter, err := s.counter()
	if err != nil {
		return nil, err
	}
	next := new(uint256.Int)
	if _, overflow := next.AddOverflow(counter, uint256.NewInt(1)); overflow {
		return nil, errors.New("streams store: identifier space exhausted")
	}
	clean.ID = next.ToBig()
	if err := s.putRecord(clean); err != nil {
		return nil, err
	}
	if err := s.db.Put(streamCounterKey, next.Bytes()); err != nil {
		return nil, err
	}
	if err := s.addBig(aggregateKey(clean.Token), clean.Balance); err != nil {
		return nil, err
	}
	if clean.Status != stream.StreamCanceled {
		if err := s.addUint(activeCountKey, 1); err != nil {
			return nil, err
		}
	}
	if err := s.indexToken(clean.Token); err != nil {
		return nil, err
	}
	return new(big.Int).Set(clean.ID), nil
}

// StreamByID loads a record. Unknown identifiers are reported through the
// bool; backend and decode failures surface through the error.
func (s *Store) StreamByID(id *big.Int) (*stream.Stream, bool, error) {
	if id == nil {
		return nil, false, nil
	}
	key, ok := recordKey(id)
	if !ok {
		return nil, false, nil
	}
	raw, err := s.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("streams store: load id %s: %w", id, err)
	}
	rec, err := decodeStream(raw)
	if err != nil {
		return nil, false, fmt.Errorf("streams store: decode id %s: %w", id, err)
	}
	return rec, true, nil
}

// PutStream replaces an existing record and reconciles the aggregates against
// the previously stored version: the balance delta moves the per-token
// aggregate, and a transition into the terminal canceled state decrements the
// active counter.
func (s *Store) PutStream(rec *stream.Stream) error {
	clean, err := stream.SanitizeStream(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok, err := s.StreamByID(clean.ID)
	if err != nil {
		return err
	}
	if !ok {
		return errUnknownStream
	}
	if old.Token != clean.Token {
		return errTokenChanged
	}
	if old.Status == stream.StreamCanceled && clean.Status != stream.StreamCanceled {
		return errTerminalState
	}
	delta := new(big.Int).Sub(clean.Balance, old.Balance)
	if err := s.putRecord(clean); err != nil {
		return err
	}
	if delta.Sign() != 0 {
		if err := s.addBig(aggregateKey(clean.Token), delta); err != nil {
			return err
		}
	}
	if old.Status != stream.StreamCanceled && clean.Status == stream.StreamCanceled {
		if err := s.addUint(activeCountKey, -1); err != nil {
			return err
		}
	}
	return nil
}

// ActiveStreamCount returns the number of created, not-yet-canceled streams.
func (s *Store) ActiveStreamCount() (uint64, error) {
	return s.getUint(activeCountKey)
}

// TotalStreams returns the lifetime number of created streams.
func (s *Store) TotalStreams() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counter, err := s.counter()
	if err != nil {
		return 0, err
	}
	return counter.Uint64(), nil
}

// AggregateBalance returns the sum of deposited balances across all streams
// of the token.
func (s *Store) AggregateBalance(token string) (*big.Int, error) {
	return s.getBig(aggregateKey(token))
}

// AddFeesCollected accumulates protocol revenue per token.
func (s *Store) AddFeesCollected(token string, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return errors.New("streams store: negative fee amount")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addBig(feesKey(token), amount)
}

// FeesCollected returns the cumulative protocol revenue for the token.
func (s *Store) FeesCollected(token string) (*big.Int, error) {
	return s.getBig(feesKey(token))
}

// Tokens lists every token that ever backed a stream.
func (s *Store) Tokens() ([]string, error) {
	ok, err := s.db.Has(tokenIndexKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []string{}, nil
	}
	raw, err := s.db.Get(tokenIndexKey)
	if err != nil {
		return nil, err
	}
	var tokens []string
	if err := rlp.DecodeBytes(raw, &tokens); err != nil {
		return nil, fmt.Errorf("streams store: decode token index: %w", err)
	}
	return tokens, nil
}

// ForEachStream visits every record in identifier order. The callback returns
// false to stop early. Sequential identifiers make the scan a plain counter
// walk with no secondary index.
func (s *Store) ForEachStream(fn func(*stream.Stream) bool) error {
	s.mu.Lock()
	counter, err := s.counter()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	limit := counter.ToBig()
	one := big.NewInt(1)
	for id := big.NewInt(1); id.Cmp(limit) <= 0; id.Add(id, one) {
		rec, ok, err := s.StreamByID(id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("streams store: missing record for id %s", id)
		}
		if !fn(rec) {
			return nil
		}
	}
	return nil
}

func (s *Store) counter() (*uint256.Int, error) {
	ok, err := s.db.Has(streamCounterKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	raw, err := s.db.Get(streamCounterKey)
	if err != nil {
		return nil, err
	}
	if len(raw) > 32 {
		return nil, errors.New("streams store: malformed counter")
	}
	return new(uint256.Int).SetBytes(raw), nil
}

func (s *Store) putRecord(rec *stream.Stream) error {
	key, ok := recordKey(rec.ID)
	if !ok {
		return errors.New("streams store: identifier exceeds 256 bits")
	}
	raw, err := rlp.EncodeToBytes(encodeStream(rec))
	if err != nil {
		return err
	}
	return s.db.Put(key, raw)
}

func (s *Store) getBig(key []byte) (*big.Int, error) {
	ok, err := s.db.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	raw, err := s.db.Get(key)
	if err != nil {
		return nil, err
	}
	value := new(big.Int)
	if err := rlp.DecodeBytes(raw, value); err != nil {
		return nil, fmt.Errorf("streams store: decode amount: %w", err)
	}
	return value, nil
}

func (s *Store) addBig(key []byte, delta *big.Int) error {
	current, err := s.getBig(key)
	if err != nil {
		return err
	}
	current.Add(current, delta)
	if current.Sign() < 0 {
		return errors.New("streams store: aggregate underflow")
	}
	raw, err := rlp.EncodeToBytes(current)
	if err != nil {
		return err
	}
	return s.db.Put(key, raw)
}

func (s *Store) getUint(key []byte) (uint64, error) {
	ok, err := s.db.Has(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	raw, err := s.db.Get(key)
	if err != nil {
		return 0, err
	}
	var value uint64
	if err := rlp.DecodeBytes(raw, &value); err != nil {
		return 0, fmt.Errorf("streams store: decode counter: %w", err)
	}
	return value, nil
}

func (s *Store) addUint(key []byte, delta int64) error {
	current, err := s.getUint(key)
	if err != nil {
		return err
	}
	if delta < 0 {
		dec := uint64(-delta)
		if dec > current {
			return errors.New("streams store: counter underflow")
		}
		current -= dec
	} else {
		current += uint64(delta)
	}
	raw, err := rlp.EncodeToBytes(current)
	if err != nil {
		return err
	}
	return s.db.Put(key, raw)
}

func (s *Store) indexToken(token string) error {
	tokens, err := s.Tokens()
	if err != nil {
		return err
	}
	for _, known := range tokens {
		if known == token {
			return nil
		}
	}
	raw, err := rlp.EncodeToBytes(append(tokens, token))
	if err != nil {
		return err
	}
	return s.db.Put(tokenIndexKey, raw)
}

func recordKey(id *big.Int) ([]byte, bool) {
	word, overflow := uint256.FromBig(id)
	if overflow || id.Sign() < 0 {
		return nil, false
	}
	b32 := word.Bytes32()
	return append(append([]byte(nil), streamRecordPrefix...), b32[:]...), true
}

func aggregateKey(token string) []byte {
	return append(append([]byte(nil), aggregatePrefix...), token...)
}

func feesKey(token string) []byte {
	return append(append([]byte(nil), feesPrefix...), token...)
}

func encodeStream(rec *stream.Stream) *storedStream {
	return &storedStream{
		ID:               rec.ID,
		Sender:           rec.Sender,
		Recipient:        rec.Recipient,
		Delegate:         rec.Delegate,
		Token:            rec.Token,
		RatePerSecond:    rec.RatePerSecond,
		TotalAmount:      rec.TotalAmount,
		Balance:          rec.Balance,
		Withdrawn:        rec.Withdrawn,
		SnapshotDebt:     rec.SnapshotDebt,
		StartTime:        uint64(rec.StartTime),
		AnchorTime:       uint64(rec.AnchorTime),
		Duration:         rec.Duration,
		Cancelable:       rec.Cancelable,
		Transferable:     rec.Transferable,
		Status:           uint8(rec.Status),
		WithdrawalCount:  rec.WithdrawalCount,
		LastWithdrawalAt: uint64(rec.LastWithdrawalAt),
	}
}

func decodeStream(raw []byte) (*stream.Stream, error) {
	var rec storedStream
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return nil, fmt.Errorf("streams store: decode record: %w", err)
	}
	return &stream.Stream{
		ID:               rec.ID,
		Sender:           rec.Sender,
		Recipient:        rec.Recipient,
		Delegate:         rec.Delegate,
		Token:            rec.Token,
		RatePerSecond:    rec.RatePerSecond,
		TotalAmount:      rec.TotalAmount,
		Balance:          rec.Balance,
		Withdrawn:        rec.Withdrawn,
		SnapshotDebt:     rec.SnapshotDebt,
		StartTime:        int64(rec.StartTime),
		AnchorTime:       int64(rec.AnchorTime),
		Duration:         rec.Duration,
		Cancelable:       rec.Cancelable,
		Transferable:     rec.Transferable,
		Status:           stream.StreamStatus(rec.Status),
		WithdrawalCount:  rec.WithdrawalCount,
		LastWithdrawalAt: int64(rec.LastWithdrawalAt),
	}, nil
}
