package stream

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"streampay/core/events"
)

var (
	errNilLedger    = errors.New("stream engine: ledger not configured")
	errNilTokens    = errors.New("stream engine: token ledger not configured")
	errNilOwnership = errors.New("stream engine: ownership registry not configured")
	errNilAccess    = errors.New("stream engine: access control not configured")
	errNilVault     = errors.New("stream engine: vault address not configured")
)

// Engine orchestrates every mutating entry point of the streaming protocol.
// Each call loads the relevant stream from the ledger, performs all checks
// before any mutation, applies external token transfers as the last step
// before commit, and stores the updated record back. The execution model
// serializes calls, so the engine holds no locks of its own.
type Engine struct {
	ledger    Ledger
	tokens    TokenLedger
	ownership OwnershipRegistry
	access    AccessControl
	policy    *FeePolicy

	// vault is the address holding all deposited stream balances; the fee
	// collector receives the protocol share of every withdrawal.
	vault        [20]byte
	feeCollector [20]byte

	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates a stream engine with a zero fee policy and a no-op event
// emitter. Collaborators are wired through the setters below.
func NewEngine() *Engine {
	return &Engine{
		policy:  NewFeePolicy(big.NewInt(0)),
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetLedger configures the stream ledger backend.
func (e *Engine) SetLedger(ledger Ledger) { e.ledger = ledger }

// SetTokenLedger configures the fungible-token collaborator.
func (e *Engine) SetTokenLedger(tokens TokenLedger) { e.tokens = tokens }

// SetOwnership configures the ownership-token registry.
func (e *Engine) SetOwnership(registry OwnershipRegistry) { e.ownership = registry }

// SetAccessControl configures the role checker for admin-gated operations.
func (e *Engine) SetAccessControl(access AccessControl) { e.access = access }

// SetVault configures the address holding deposited stream balances.
func (e *Engine) SetVault(addr [20]byte) { e.vault = addr }

// SetFeeCollector configures the address receiving protocol fees. Runtime
// changes go through UpdateFeeCollector, which is role-gated.
func (e *Engine) SetFeeCollector(addr [20]byte) { e.feeCollector = addr }

// SetFeePolicy replaces the fee configuration wholesale. Intended for
// bootstrap wiring; runtime changes go through the role-gated setters.
func (e *Engine) SetFeePolicy(policy *FeePolicy) {
	if policy == nil {
		e.policy = NewFeePolicy(big.NewInt(0))
		return
	}
	e.policy = policy.Clone()
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the clock. Timestamps are read once per call and must
// come from a monotonically non-decreasing source; tests use this to pin time.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) ready() error {
	switch {
	case e == nil || e.ledger == nil:
		return errNilLedger
	case e.tokens == nil:
		return errNilTokens
	case e.ownership == nil:
		return errNilOwnership
	case e.vault == ([20]byte{}):
		return errNilVault
	}
	return nil
}

func (e *Engine) loadStream(id *big.Int) (*Stream, error) {
	if id == nil {
		return nil, fmt.Errorf("%w: nil identifier", ErrNotFound)
	}
	s, ok, err := e.ledger.StreamByID(id)
	if err != nil {
		return nil, fmt.Errorf("stream engine: load stream %s: %w", id.String(), err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: id %s", ErrNotFound, id.String())
	}
	return s, nil
}

func (e *Engine) requireAdmin(caller [20]byte) error {
	if e.access == nil {
		return errNilAccess
	}
	if !e.access.HasRole(RoleStreamAdmin, caller) {
		return fmt.Errorf("%w: caller lacks %s", ErrUnauthorized, RoleStreamAdmin)
	}
	return nil
}

// recipientAuthority reports whether addr may act on the recipient side of
// the stream: the current ownership-token holder, the delegate, or an
// operator the registry has approved for the token.
func (e *Engine) recipientAuthority(addr [20]byte, s *Stream) (bool, error) {
	owner, err := e.ownership.OwnerOf(s.ID)
	if err != nil {
		return false, fmt.Errorf("stream engine: ownership lookup: %w", err)
	}
	if addr == owner {
		return true, nil
	}
	if s.HasDelegate() && addr == s.Delegate {
		return true, nil
	}
	return e.ownership.Approved(s.ID, addr), nil
}

func (e *Engine) authorizeRecipient(caller [20]byte, s *Stream) error {
	ok, err := e.recipientAuthority(caller, s)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: caller is not owner, delegate or approved", ErrUnauthorized)
	}
	return nil
}

func (e *Engine) requireOwner(caller [20]byte, s *Stream) error {
	owner, err := e.ownership.OwnerOf(s.ID)
	if err != nil {
		return fmt.Errorf("stream engine: ownership lookup: %w", err)
	}
	if caller != owner {
		return fmt.Errorf("%w: caller does not hold the stream token", ErrUnauthorized)
	}
	return nil
}

// Create locks totalAmount of token, pulled from the sender, to be released
// to the recipient linearly over duration seconds. It mints the ownership
// token to the recipient and returns the new stream identifier.
func (e *Engine) Create(sender, recipient [20]byte, token string, totalAmount *big.Int, duration uint64, cancelable, transferable bool) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	normalized, err := NormalizeToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if sender == ([20]byte{}) || recipient == ([20]byte{}) {
		return nil, fmt.Errorf("%w: zero sender or recipient", ErrInvalidAmount)
	}
	amount := cloneOrZero(totalAmount)
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: total amount must be positive", ErrInvalidAmount)
	}
	if duration == 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidAmount)
	}
	if !fitsWord(amount) {
		return nil, fmt.Errorf("%w: total amount exceeds 256 bits", ErrOverflow)
	}
	now := e.now()
	if duration > math.MaxInt64 || int64(duration) > math.MaxInt64-now {
		return nil, fmt.Errorf("%w: stream end time not representable", ErrOverflow)
	}
	record, err := SanitizeStream(&Stream{
		Sender:        sender,
		Recipient:     recipient,
		Token:         normalized,
		RatePerSecond: RatePerSecond(amount, duration),
		TotalAmount:   amount,
		Balance:       amount,
		StartTime:     now,
		AnchorTime:    now,
		Duration:      duration,
		Cancelable:    cancelable,
		Transferable:  transferable,
		Status:        StreamActive,
	})
	if err != nil {
		return nil, err
	}
	// The deposit is pulled before the record exists so a failed transfer
	// leaves no trace in the ledger.
	if err := e.tokens.TransferFrom(normalized, sender, e.vault, amount); err != nil {
		return nil, fmt.Errorf("%w: deposit: %v", ErrTransferFailed, err)
	}
	id, err := e.ledger.InsertStream(record)
	if err != nil {
		return nil, err
	}
	record.ID = id
	if err := e.ownership.Mint(recipient, id); err != nil {
		// Unwind the insert: refund the deposit and cancel the record so
		// the ledger never carries a live stream without an owner token.
		mintErr := fmt.Errorf("stream engine: mint ownership token: %w", err)
		if rbErr := e.tokens.Transfer(normalized, e.vault, sender, amount); rbErr != nil {
			return nil, fmt.Errorf("%v; refund deposit: %w", mintErr, rbErr)
		}
		void := record.Clone()
		void.Status = StreamCanceled
		void.Balance = big.NewInt(0)
		if rbErr := e.ledger.PutStream(void); rbErr != nil {
			return nil, fmt.Errorf("%v; void stream record: %w", mintErr, rbErr)
		}
		return nil, mintErr
	}
	e.emit(NewCreatedEvent(record))
	return id, nil
}

// Withdraw pays amount of the stream's withdrawable funds. The caller and
// the destination must each be the current owner, the delegate, or a
// registry-approved operator; the net share goes to the destination and the
// protocol fee to the collector.
// Withdrawing remains possible on paused and canceled streams, whose frozen
// withdrawable amount is preserved rather than force-paid.
func (e *Engine) Withdraw(caller [20]byte, id *big.Int, amount *big.Int, to [20]byte) (*big.Int, *big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	s, err := e.loadStream(id)
	if err != nil {
		return nil, nil, err
	}
	if to == ([20]byte{}) {
		return nil, nil, fmt.Errorf("%w: zero destination", ErrInvalidAmount)
	}
	amt := cloneOrZero(amount)
	if amt.Sign() <= 0 {
		return nil, nil, fmt.Errorf("%w: withdrawal must be positive", ErrInvalidAmount)
	}
	if err := e.authorizeRecipient(caller, s); err != nil {
		return nil, nil, err
	}
	destOK, err := e.recipientAuthority(to, s)
	if err != nil {
		return nil, nil, err
	}
	if !destOK {
		return nil, nil, fmt.Errorf("%w: destination is not owner, delegate or approved", ErrUnauthorized)
	}
	now := e.now()
	withdrawable := WithdrawableAmount(s, now)
	if amt.Cmp(withdrawable) > 0 {
		return nil, nil, fmt.Errorf("%w: %s exceeds withdrawable %s", ErrInvalidAmount, amt, withdrawable)
	}
	net, fee := e.policy.Apply(s.Token, amt)
	if fee.Sign() > 0 && e.feeCollector == ([20]byte{}) {
		return nil, nil, fmt.Errorf("%w: fee collector not configured", ErrInvalidState)
	}
	record := s.Clone()
	record.Balance.Sub(record.Balance, amt)
	record.Withdrawn.Add(record.Withdrawn, amt)
	record.WithdrawalCount++
	record.LastWithdrawalAt = now
	if net.Sign() > 0 {
		if err := e.tokens.Transfer(s.Token, e.vault, to, net); err != nil {
			return nil, nil, fmt.Errorf("%w: payout: %v", ErrTransferFailed, err)
		}
	}
	if fee.Sign() > 0 {
		if err := e.tokens.Transfer(s.Token, e.vault, e.feeCollector, fee); err != nil {
			return nil, nil, fmt.Errorf("%w: fee: %v", ErrTransferFailed, err)
		}
	}
	if err := e.ledger.PutStream(record); err != nil {
		return nil, nil, err
	}
	if fee.Sign() > 0 {
		if err := e.ledger.AddFeesCollected(s.Token, fee); err != nil {
			return nil, nil, err
		}
	}
	e.emit(NewWithdrawnEvent(record, to, amt, net, fee))
	return net, fee, nil
}

// WithdrawMax withdraws the entire withdrawable amount. An empty stream fails
// with ErrInvalidAmount just like an explicit zero withdrawal.
func (e *Engine) WithdrawMax(caller [20]byte, id *big.Int, to [20]byte) (*big.Int, *big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	s, err := e.loadStream(id)
	if err != nil {
		return nil, nil, err
	}
	return e.Withdraw(caller, id, WithdrawableAmount(s, e.now()), to)
}

// Pause freezes accrual. Only the sender may pause, and only an active
// stream; the debt computed at this instant is snapshotted and stays frozen
// until a restart.
func (e *Engine) Pause(caller [20]byte, id *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	s, err := e.loadStream(id)
	if err != nil {
		return err
	}
	if caller != s.Sender {
		return fmt.Errorf("%w: only the sender may pause", ErrUnauthorized)
	}
	switch s.Status {
	case StreamCanceled:
		return fmt.Errorf("%w: stream is canceled", ErrInvalidState)
	case StreamPaused:
		return fmt.Errorf("%w: stream already paused", ErrInvalidState)
	}
	record := s.Clone()
	record.SnapshotDebt = TotalDebt(s, e.now())
	record.Status = StreamPaused
	if err := e.ledger.PutStream(record); err != nil {
		return err
	}
	e.emit(NewPausedEvent(record))
	return nil
}

// Restart resumes a paused stream. The rate is re-derived from the remaining
// committed amount spread over the supplied duration and accrual restarts at
// a fresh anchor; the debt frozen at pause is carried, never recomputed.
func (e *Engine) Restart(caller [20]byte, id *big.Int, duration uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	s, err := e.loadStream(id)
	if err != nil {
		return err
	}
	if caller != s.Sender {
		return fmt.Errorf("%w: only the sender may restart", ErrUnauthorized)
	}
	if s.Status != StreamPaused {
		return fmt.Errorf("%w: stream is not paused", ErrInvalidState)
	}
	if duration == 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidAmount)
	}
	remaining := new(big.Int).Sub(cloneOrZero(s.TotalAmount), cloneOrZero(s.Withdrawn))
	if remaining.Sign() <= 0 {
		return fmt.Errorf("%w: stream fully withdrawn", ErrInvalidAmount)
	}
	now := e.now()
	if duration > math.MaxInt64 || int64(duration) > math.MaxInt64-now {
		return fmt.Errorf("%w: stream end time not representable", ErrOverflow)
	}
	record := s.Clone()
	record.RatePerSecond = RatePerSecond(remaining, duration)
	record.AnchorTime = now
	record.Duration = duration
	record.Status = StreamActive
	if err := e.ledger.PutStream(record); err != nil {
		return err
	}
	e.emit(NewRestartedEvent(record))
	return nil
}

// Cancel terminates the stream. The withdrawable share stays claimable by the
// recipient; the rest of the deposited balance, including any rate-flooring
// residual, returns to the sender.
func (e *Engine) Cancel(caller [20]byte, id *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	s, err := e.loadStream(id)
	if err != nil {
		return err
	}
	if caller != s.Sender {
		return fmt.Errorf("%w: only the sender may cancel", ErrUnauthorized)
	}
	if s.Status == StreamCanceled {
		return fmt.Errorf("%w: stream already canceled", ErrInvalidState)
	}
	if !s.Cancelable {
		return fmt.Errorf("%w: stream is not cancelable", ErrInvalidState)
	}
	now := e.now()
	withdrawable := WithdrawableAmount(s, now)
	refund := new(big.Int).Sub(cloneOrZero(s.Balance), withdrawable)
	record := s.Clone()
	record.SnapshotDebt = TotalDebt(s, now)
	record.Balance = withdrawable
	record.Status = StreamCanceled
	if refund.Sign() > 0 {
		if err := e.tokens.Transfer(s.Token, e.vault, s.Sender, refund); err != nil {
			return fmt.Errorf("%w: refund: %v", ErrTransferFailed, err)
		}
	}
	if err := e.ledger.PutStream(record); err != nil {
		return err
	}
	e.emit(NewCanceledEvent(record, refund))
	return nil
}

// Delegate authorizes an account to act on the recipient's behalf without
// transferring ownership. Only the current owner may delegate.
func (e *Engine) Delegate(caller [20]byte, id *big.Int, delegate [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	s, err := e.loadStream(id)
	if err != nil {
		return err
	}
	if err := e.requireOwner(caller, s); err != nil {
		return err
	}
	if delegate == ([20]byte{}) {
		return fmt.Errorf("%w: zero delegate", ErrInvalidAmount)
	}
	record := s.Clone()
	record.Delegate = delegate
	if err := e.ledger.PutStream(record); err != nil {
		return err
	}
	e.emit(NewDelegateUpdatedEvent(record))
	return nil
}

// RevokeDelegation clears the delegate. Only the current owner may revoke.
func (e *Engine) RevokeDelegation(caller [20]byte, id *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	s, err := e.loadStream(id)
	if err != nil {
		return err
	}
	if err := e.requireOwner(caller, s); err != nil {
		return err
	}
	if !s.HasDelegate() {
		return fmt.Errorf("%w: no delegate set", ErrInvalidState)
	}
	record := s.Clone()
	record.Delegate = [20]byte{}
	if err := e.ledger.PutStream(record); err != nil {
		return err
	}
	e.emit(NewDelegateUpdatedEvent(record))
	return nil
}

// TransferStream moves ownership to a new recipient. It requires the stream
// to be transferable and the caller to hold the ownership token. A delegation
// granted by the previous owner does not survive the transfer.
func (e *Engine) TransferStream(caller [20]byte, id *big.Int, newRecipient [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	s, err := e.loadStream(id)
	if err != nil {
		return err
	}
	if err := e.requireOwner(caller, s); err != nil {
		return err
	}
	if !s.Transferable {
		return fmt.Errorf("%w: stream is not transferable", ErrInvalidState)
	}
	if newRecipient == ([20]byte{}) {
		return fmt.Errorf("%w: zero recipient", ErrInvalidAmount)
	}
	record := s.Clone()
	record.Recipient = newRecipient
	record.Delegate = [20]byte{}
	if err := e.ownership.Transfer(id, newRecipient); err != nil {
		return fmt.Errorf("%w: ownership token: %v", ErrTransferFailed, err)
	}
	if err := e.ledger.PutStream(record); err != nil {
		return err
	}
	e.emit(NewTransferredEvent(record, caller))
	return nil
}

// SetTransferability toggles whether the stream's ownership token may be
// transferred. Owner-only.
func (e *Engine) SetTransferability(caller [20]byte, id *big.Int, transferable bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	s, err := e.loadStream(id)
	if err != nil {
		return err
	}
	if err := e.requireOwner(caller, s); err != nil {
		return err
	}
	record := s.Clone()
	record.Transferable = transferable
	if err := e.ledger.PutStream(record); err != nil {
		return err
	}
	e.emit(NewTransferabilityEvent(record))
	return nil
}

// Recover moves tokens held by the vault but not attributable to any tracked
// stream balance. Tracked balances are never touched; only the protocol admin
// may recover, and only when a positive surplus exists.
func (e *Engine) Recover(caller [20]byte, token string, to [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	normalized, err := NormalizeToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if to == ([20]byte{}) {
		return nil, fmt.Errorf("%w: zero destination", ErrInvalidAmount)
	}
	held, err := e.tokens.BalanceOf(normalized, e.vault)
	if err != nil {
		return nil, fmt.Errorf("stream engine: vault balance: %w", err)
	}
	tracked, err := e.ledger.AggregateBalance(normalized)
	if err != nil {
		return nil, err
	}
	surplus := new(big.Int).Sub(held, tracked)
	if surplus.Sign() <= 0 {
		return nil, fmt.Errorf("%w: no recoverable surplus", ErrInvalidAmount)
	}
	if err := e.tokens.Transfer(normalized, e.vault, to, surplus); err != nil {
		return nil, fmt.Errorf("%w: surplus: %v", ErrTransferFailed, err)
	}
	e.emit(NewSurplusRecoveredEvent(normalized, to, surplus))
	return surplus, nil
}

// SetDefaultFeeRate updates the fallback protocol fee rate. Admin-only.
func (e *Engine) SetDefaultFeeRate(caller [20]byte, rate *big.Int) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.policy.SetDefaultRate(rate); err != nil {
		return err
	}
	e.emit(NewFeePolicyEvent("", e.policy.DefaultRate))
	return nil
}

// SetTokenFeeRate installs a per-token fee rate override. Admin-only.
func (e *Engine) SetTokenFeeRate(caller [20]byte, token string, rate *big.Int) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.policy.SetTokenRate(token, rate); err != nil {
		return err
	}
	normalized, _ := NormalizeToken(token)
	e.emit(NewFeePolicyEvent(normalized, e.policy.RateFor(normalized)))
	return nil
}

// UpdateFeeCollector changes the fee destination at runtime. Admin-only.
func (e *Engine) UpdateFeeCollector(caller [20]byte, collector [20]byte) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if collector == ([20]byte{}) {
		return fmt.Errorf("%w: zero collector", ErrInvalidAmount)
	}
	e.feeCollector = collector
	e.emit(NewFeeCollectorEvent(collector))
	return nil
}

// FeePolicy returns a copy of the current fee configuration.
func (e *Engine) FeePolicy() *FeePolicy { return e.policy.Clone() }

// FeeRate resolves the effective fee rate for a token.
func (e *Engine) FeeRate(token string) *big.Int {
	normalized, err := NormalizeToken(token)
	if err != nil {
		return big.NewInt(0)
	}
	return e.policy.RateFor(normalized)
}

// GetStream returns a copy of the stream record, or ErrNotFound for an
// unknown identifier. Safe to call with arbitrary ids.
func (e *Engine) GetStream(id *big.Int) (*Stream, error) {
	if e == nil || e.ledger == nil {
		return nil, errNilLedger
	}
	s, err := e.loadStream(id)
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// StreamExists reports whether the identifier names a known stream.
func (e *Engine) StreamExists(id *big.Int) bool {
	if e == nil || e.ledger == nil || id == nil {
		return false
	}
	_, ok, err := e.ledger.StreamByID(id)
	return err == nil && ok
}
