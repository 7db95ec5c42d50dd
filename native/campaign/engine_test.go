package campaign

import (
	"errors"
	"fmt"
	"math/big"
	"testing"
)

type mockState struct {
	campaigns map[uint64]*Campaign
	receipts  map[string]*Receipt
	counter   uint64
	receiptNo map[uint64]uint64
}

func newMockState() *mockState {
	return &mockState{
		campaigns: make(map[uint64]*Campaign),
		receipts:  make(map[string]*Receipt),
		receiptNo: make(map[uint64]uint64),
	}
}

func receiptKey(campaignID, receiptID uint64) string {
	return fmt.Sprintf("%d/%d", campaignID, receiptID)
}

func (m *mockState) InsertCampaign(c *Campaign) (uint64, error) {
	m.counter++
	record := c.Clone()
	record.ID = m.counter
	m.campaigns[m.counter] = record
	return m.counter, nil
}

func (m *mockState) CampaignByID(id uint64) (*Campaign, bool) {
	c, ok := m.campaigns[id]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

func (m *mockState) PutCampaign(c *Campaign) error {
	if _, ok := m.campaigns[c.ID]; !ok {
		return fmt.Errorf("mock state: unknown campaign %d", c.ID)
	}
	m.campaigns[c.ID] = c.Clone()
	return nil
}

func (m *mockState) InsertReceipt(r *Receipt) (uint64, error) {
	m.receiptNo[r.CampaignID]++
	id := m.receiptNo[r.CampaignID]
	record := r.Clone()
	record.ID = id
	m.receipts[receiptKey(r.CampaignID, id)] = record
	return id, nil
}

func (m *mockState) ReceiptByID(campaignID, receiptID uint64) (*Receipt, bool) {
	r, ok := m.receipts[receiptKey(campaignID, receiptID)]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

func (m *mockState) PutReceipt(r *Receipt) error {
	key := receiptKey(r.CampaignID, r.ID)
	if _, ok := m.receipts[key]; !ok {
		return fmt.Errorf("mock state: unknown receipt %s", key)
	}
	m.receipts[key] = r.Clone()
	return nil
}

type mockTokens struct {
	balances map[string]map[[20]byte]*big.Int
}

func newMockTokens() *mockTokens {
	return &mockTokens{balances: make(map[string]map[[20]byte]*big.Int)}
}

func (m *mockTokens) mint(token string, to [20]byte, amount *big.Int) {
	if m.balances[token] == nil {
		m.balances[token] = make(map[[20]byte]*big.Int)
	}
	bal, ok := m.balances[token][to]
	if !ok {
		bal = big.NewInt(0)
	}
	m.balances[token][to] = new(big.Int).Add(bal, amount)
}

func (m *mockTokens) Transfer(token string, from, to [20]byte, amount *big.Int) error {
	bal, err := m.BalanceOf(token, from)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("mock tokens: insufficient balance")
	}
	m.balances[token][from] = bal.Sub(bal, amount)
	m.mint(token, to, amount)
	return nil
}

func (m *mockTokens) TransferFrom(token string, from, to [20]byte, amount *big.Int) error {
	return m.Transfer(token, from, to, amount)
}

func (m *mockTokens) BalanceOf(token string, account [20]byte) (*big.Int, error) {
	if m.balances[token] == nil {
		m.balances[token] = make(map[[20]byte]*big.Int)
	}
	bal, ok := m.balances[token][account]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(bal), nil
}

func testAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

type testEnv struct {
	engine *Engine
	tokens *mockTokens
	now    int64

	creator [20]byte
	donor   [20]byte
	vault   [20]byte
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		tokens:  newMockTokens(),
		now:     1_000_000,
		creator: testAddress(0x01),
		donor:   testAddress(0x02),
		vault:   testAddress(0xAA),
	}
	env.tokens.mint("PAY", env.donor, big.NewInt(10_000))
	engine := NewEngine()
	engine.SetState(newMockState())
	engine.SetTokenLedger(env.tokens)
	engine.SetVault(env.vault)
	engine.SetNowFunc(func() int64 { return env.now })
	env.engine = engine
	return env
}

func (env *testEnv) advance(seconds int64) { env.now += seconds }

func (env *testEnv) createCampaign(t *testing.T, goal int64, lifetime int64) uint64 {
	t.Helper()
	id, err := env.engine.CreateCampaign(env.creator, "PAY", big.NewInt(goal), env.now+lifetime)
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	return id
}

func (env *testEnv) balance(t *testing.T, account [20]byte) *big.Int {
	t.Helper()
	bal, err := env.tokens.BalanceOf("PAY", account)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal
}

func TestCreateCampaignValidation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.CreateCampaign(env.creator, "PAY", big.NewInt(0), env.now+100); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero goal: want ErrInvalidAmount, got %v", err)
	}
	if _, err := env.engine.CreateCampaign(env.creator, "PAY", big.NewInt(100), env.now); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("past deadline: want ErrInvalidState, got %v", err)
	}
	if _, err := env.engine.CreateCampaign([20]byte{}, "PAY", big.NewInt(100), env.now+100); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero creator: want ErrInvalidAmount, got %v", err)
	}
	id := env.createCampaign(t, 1000, 3600)
	c, err := env.engine.GetCampaign(id)
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if c.Status != CampaignActive || c.Goal.Cmp(big.NewInt(1000)) != 0 || c.Raised.Sign() != 0 {
		t.Fatalf("fresh campaign: %+v", c)
	}
}

func TestDonateIssuesReceipts(t *testing.T) {
	env := newTestEnv(t)
	id := env.createCampaign(t, 1000, 3600)
	first, err := env.engine.Donate(env.donor, id, big.NewInt(400))
	if err != nil {
		t.Fatalf("donate: %v", err)
	}
	second, err := env.engine.Donate(env.donor, id, big.NewInt(300))
	if err != nil {
		t.Fatalf("donate: %v", err)
	}
	if first != 1 || second != 2 {
		t.Fatalf("receipt ids: got %d, %d", first, second)
	}
	c, _ := env.engine.GetCampaign(id)
	if c.Raised.Cmp(big.NewInt(700)) != 0 || c.ReceiptCount != 2 {
		t.Fatalf("campaign after donations: raised=%s receipts=%d", c.Raised, c.ReceiptCount)
	}
	if got := env.balance(t, env.vault); got.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("vault: want 700, got %s", got)
	}
	if _, err := env.engine.Donate(env.donor, id, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero donation: want ErrInvalidAmount, got %v", err)
	}
	env.advance(3600)
	if _, err := env.engine.Donate(env.donor, id, big.NewInt(1)); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("donation after deadline: want ErrInvalidState, got %v", err)
	}
}

func TestClaimRequiresMetGoalAfterDeadline(t *testing.T) {
	env := newTestEnv(t)
	id := env.createCampaign(t, 1000, 3600)
	if _, err := env.engine.Donate(env.donor, id, big.NewInt(1000)); err != nil {
		t.Fatalf("donate: %v", err)
	}
	if _, err := env.engine.Claim(env.creator, id); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("claim before deadline: want ErrInvalidState, got %v", err)
	}
	env.advance(3600)
	if _, err := env.engine.Claim(env.donor, id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("donor claim: want ErrUnauthorized, got %v", err)
	}
	raised, err := env.engine.Claim(env.creator, id)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if raised.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("claimed amount: want 1000, got %s", raised)
	}
	if got := env.balance(t, env.creator); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("creator balance: want 1000, got %s", got)
	}
	if _, err := env.engine.Claim(env.creator, id); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("double claim: want ErrInvalidState, got %v", err)
	}
}

func TestClaimFailsWhenGoalUnmet(t *testing.T) {
	env := newTestEnv(t)
	id := env.createCampaign(t, 1000, 3600)
	if _, err := env.engine.Donate(env.donor, id, big.NewInt(500)); err != nil {
		t.Fatalf("donate: %v", err)
	}
	env.advance(3600)
	if _, err := env.engine.Claim(env.creator, id); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("claim unmet goal: want ErrInvalidState, got %v", err)
	}
}

func TestRefundAfterFailedCampaign(t *testing.T) {
	env := newTestEnv(t)
	id := env.createCampaign(t, 1000, 3600)
	receiptID, err := env.engine.Donate(env.donor, id, big.NewInt(500))
	if err != nil {
		t.Fatalf("donate: %v", err)
	}
	if _, err := env.engine.Refund(env.donor, id, receiptID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("refund while live: want ErrInvalidState, got %v", err)
	}
	env.advance(3600)
	if _, err := env.engine.Refund(env.creator, id, receiptID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("creator refund: want ErrUnauthorized, got %v", err)
	}
	amount, err := env.engine.Refund(env.donor, id, receiptID)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if amount.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("refund amount: want 500, got %s", amount)
	}
	if got := env.balance(t, env.donor); got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("donor balance restored: want 10000, got %s", got)
	}
	if _, err := env.engine.Refund(env.donor, id, receiptID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("double refund: want ErrInvalidState, got %v", err)
	}
	if _, err := env.engine.Refund(env.donor, id, 99); !errors.Is(err, ErrReceiptMissing) {
		t.Fatalf("unknown receipt: want ErrReceiptMissing, got %v", err)
	}
}

func TestCancelOpensRefundsImmediately(t *testing.T) {
	env := newTestEnv(t)
	id := env.createCampaign(t, 1000, 3600)
	receiptID, err := env.engine.Donate(env.donor, id, big.NewInt(500))
	if err != nil {
		t.Fatalf("donate: %v", err)
	}
	if err := env.engine.CancelCampaign(env.donor, id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("donor cancel: want ErrUnauthorized, got %v", err)
	}
	if err := env.engine.CancelCampaign(env.creator, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := env.engine.CancelCampaign(env.creator, id); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("double cancel: want ErrInvalidState, got %v", err)
	}
	// No deadline wait needed after a cancel.
	if _, err := env.engine.Refund(env.donor, id, receiptID); err != nil {
		t.Fatalf("refund after cancel: %v", err)
	}
	if _, err := env.engine.Donate(env.donor, id, big.NewInt(1)); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("donation after cancel: want ErrInvalidState, got %v", err)
	}
}

func TestGetCampaignUnknown(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.GetCampaign(42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown campaign: want ErrNotFound, got %v", err)
	}
}
