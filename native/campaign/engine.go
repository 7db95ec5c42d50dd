package campaign

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"streampay/core/events"
	"streampay/native/stream"
)

var (
	errNilState  = errors.New("campaign engine: state not configured")
	errNilTokens = errors.New("campaign engine: token ledger not configured")
	errNilVault  = errors.New("campaign engine: vault address not configured")
)

type engineState interface {
	InsertCampaign(c *Campaign) (uint64, error)
	CampaignByID(id uint64) (*Campaign, bool)
	PutCampaign(c *Campaign) error
	InsertReceipt(r *Receipt) (uint64, error)
	ReceiptByID(campaignID, receiptID uint64) (*Receipt, bool)
	PutReceipt(r *Receipt) error
}

// Engine runs the crowdfunding bookkeeping: donations accumulate in the
// vault, receipts are issued per donation, and either the creator claims a
// met goal or receipt holders reclaim their donations from a failed or
// canceled campaign. It shares the token-ledger collaborator with the stream
// engine.
type Engine struct {
	state   engineState
	tokens  stream.TokenLedger
	vault   [20]byte
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates a campaign engine with a no-op event emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the campaign state backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTokenLedger configures the fungible-token collaborator.
func (e *Engine) SetTokenLedger(tokens stream.TokenLedger) { e.tokens = tokens }

// SetVault configures the address holding donated funds.
func (e *Engine) SetVault(addr [20]byte) { e.vault = addr }

// SetEmitter configures the event emitter; nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the clock, primarily for tests.
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
	case e == nil || e.state == nil:
		return errNilState
	case e.tokens == nil:
		return errNilTokens
	case e.vault == ([20]byte{}):
		return errNilVault
	}
	return nil
}

func (e *Engine) loadCampaign(id uint64) (*Campaign, error) {
	c, ok := e.state.CampaignByID(id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return c, nil
}

// CreateCampaign registers a new drive and returns its identifier.
func (e *Engine) CreateCampaign(creator [20]byte, token string, goal *big.Int, deadline int64) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	normalized, err := stream.NormalizeToken(token)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if creator == ([20]byte{}) {
		return 0, fmt.Errorf("%w: zero creator", ErrInvalidAmount)
	}
	amount := cloneOrZero(goal)
	if amount.Sign() <= 0 {
		return 0, fmt.Errorf("%w: goal must be positive", ErrInvalidAmount)
	}
	if deadline <= e.now() {
		return 0, fmt.Errorf("%w: deadline not in the future", ErrInvalidState)
	}
	c := &Campaign{
		Creator:  creator,
		Token:    normalized,
		Goal:     amount,
		Raised:   big.NewInt(0),
		Deadline: deadline,
		Status:   CampaignActive,
	}
	id, err := e.state.InsertCampaign(c)
	if err != nil {
		return 0, err
	}
	c.ID = id
	e.emit(NewCampaignCreatedEvent(c))
	return id, nil
}

// Donate pulls the amount from the donor into the vault and issues a
// donation receipt. Donations close at the deadline.
func (e *Engine) Donate(donor [20]byte, campaignID uint64, amount *big.Int) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	c, err := e.loadCampaign(campaignID)
	if err != nil {
		return 0, err
	}
	if c.Status != CampaignActive {
		return 0, fmt.Errorf("%w: campaign is %s", ErrInvalidState, c.Status)
	}
	if e.now() >= c.Deadline {
		return 0, fmt.Errorf("%w: campaign deadline passed", ErrInvalidState)
	}
	amt := cloneOrZero(amount)
	if amt.Sign() <= 0 {
		return 0, fmt.Errorf("%w: donation must be positive", ErrInvalidAmount)
	}
	if err := e.tokens.TransferFrom(c.Token, donor, e.vault, amt); err != nil {
		return 0, fmt.Errorf("%w: donation: %v", ErrTransferFailed, err)
	}
	receipt := &Receipt{
		CampaignID: c.ID,
		Donor:      donor,
		Amount:     amt,
		DonatedAt:  e.now(),
	}
	receiptID, err := e.state.InsertReceipt(receipt)
	if err != nil {
		return 0, err
	}
	receipt.ID = receiptID
	record := c.Clone()
	record.Raised.Add(record.Raised, amt)
	record.ReceiptCount = receiptID
	if err := e.state.PutCampaign(record); err != nil {
		return 0, err
	}
	e.emit(NewDonationEvent(record, receipt))
	return receiptID, nil
}

// Claim pays the raised funds to the creator of a successful campaign.
func (e *Engine) Claim(caller [20]byte, campaignID uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	c, err := e.loadCampaign(campaignID)
	if err != nil {
		return nil, err
	}
	if caller != c.Creator {
		return nil, fmt.Errorf("%w: only the creator may claim", ErrUnauthorized)
	}
	if c.Status != CampaignActive {
		return nil, fmt.Errorf("%w: campaign is %s", ErrInvalidState, c.Status)
	}
	if e.now() < c.Deadline {
		return nil, fmt.Errorf("%w: deadline not reached", ErrInvalidState)
	}
	if c.Raised.Cmp(c.Goal) < 0 {
		return nil, fmt.Errorf("%w: goal not met", ErrInvalidState)
	}
	record := c.Clone()
	record.Status = CampaignClaimed
	if record.Raised.Sign() > 0 {
		if err := e.tokens.Transfer(c.Token, e.vault, c.Creator, record.Raised); err != nil {
			return nil, fmt.Errorf("%w: claim: %v", ErrTransferFailed, err)
		}
	}
	if err := e.state.PutCampaign(record); err != nil {
		return nil, err
	}
	e.emit(NewClaimedEvent(record))
	return cloneOrZero(record.Raised), nil
}

// Refund returns a donation to the receipt holder. Refunds open when the
// deadline passes with the goal unmet, or immediately when the campaign is
// canceled; each receipt refunds once.
func (e *Engine) Refund(caller [20]byte, campaignID, receiptID uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	c, err := e.loadCampaign(campaignID)
	if err != nil {
		return nil, err
	}
	receipt, ok := e.state.ReceiptByID(campaignID, receiptID)
	if !ok {
		return nil, fmt.Errorf("%w: campaign %d receipt %d", ErrReceiptMissing, campaignID, receiptID)
	}
	if receipt.Donor != caller {
		return nil, fmt.Errorf("%w: only the donor may refund", ErrUnauthorized)
	}
	if receipt.Refunded {
		return nil, fmt.Errorf("%w: receipt already refunded", ErrInvalidState)
	}
	failed := c.Status == CampaignActive && e.now() >= c.Deadline && c.Raised.Cmp(c.Goal) < 0
	if !failed && c.Status != CampaignCanceled {
		return nil, fmt.Errorf("%w: campaign not refundable", ErrInvalidState)
	}
	record := receipt.Clone()
	record.Refunded = true
	if err := e.tokens.Transfer(c.Token, e.vault, receipt.Donor, receipt.Amount); err != nil {
		return nil, fmt.Errorf("%w: refund: %v", ErrTransferFailed, err)
	}
	if err := e.state.PutReceipt(record); err != nil {
		return nil, err
	}
	e.emit(NewRefundedEvent(c, record))
	return cloneOrZero(record.Amount), nil
}

// CancelCampaign closes an active campaign and opens refunds. Creator-only.
func (e *Engine) CancelCampaign(caller [20]byte, campaignID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	c, err := e.loadCampaign(campaignID)
	if err != nil {
		return err
	}
	if caller != c.Creator {
		return fmt.Errorf("%w: only the creator may cancel", ErrUnauthorized)
	}
	if c.Status != CampaignActive {
		return fmt.Errorf("%w: campaign is %s", ErrInvalidState, c.Status)
	}
	record := c.Clone()
	record.Status = CampaignCanceled
	if err := e.state.PutCampaign(record); err != nil {
		return err
	}
	e.emit(NewCampaignCanceledEvent(record))
	return nil
}

// GetCampaign returns a copy of the campaign, or ErrNotFound.
func (e *Engine) GetCampaign(id uint64) (*Campaign, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	c, err := e.loadCampaign(id)
	if err != nil {
		return nil, err
	}
	return c.Clone(), nil
}
