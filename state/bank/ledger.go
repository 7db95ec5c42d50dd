package bank

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"streampay/native/stream"
	"streampay/storage"
)

var accountPrefix = []byte("bank/account/")

var (
	errInvalidAmount       = errors.New("bank: amount must be non-negative")
	errInsufficientBalance = errors.New("bank: insufficient balance")
)

// Ledger is a fungible-token account ledger persisted through the key-value
// backend. It implements the token collaborator contract the stream and
// campaign engines depend on. Allowances are out of scope, so TransferFrom
// behaves exactly like Transfer; the engines are trusted callers.
type Ledger struct {
	mu sync.Mutex
	db storage.Database
}

var _ stream.TokenLedger = (*Ledger)(nil)

// NewLedger binds an account ledger to the given backend.
func NewLedger(db storage.Database) *Ledger {
	return &Ledger{db: db}
}

// Mint credits freshly issued tokens to an account. Intended for bootstrap
// and tests; the streaming protocol itself never mints.
func (l *Ledger) Mint(token string, to [20]byte, amount *big.Int) error {
	normalized, err := stream.NormalizeToken(token)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.credit(normalized, to, amount)
}

// Transfer moves tokens between accounts. It either fully succeeds or leaves
// both balances untouched.
func (l *Ledger) Transfer(token string, from, to [20]byte, amount *big.Int) error {
	normalized, err := stream.NormalizeToken(token)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, err := l.balance(normalized, from)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", errInsufficientBalance, balance, amount)
	}
	balance.Sub(balance, amount)
	if err := l.putBalance(normalized, from, balance); err != nil {
		return err
	}
	return l.credit(normalized, to, amount)
}

// TransferFrom moves tokens on behalf of the source account. Allowance
// checks are out of scope; see the type comment.
func (l *Ledger) TransferFrom(token string, from, to [20]byte, amount *big.Int) error {
	return l.Transfer(token, from, to, amount)
}

// BalanceOf returns the account balance for the token.
func (l *Ledger) BalanceOf(token string, account [20]byte) (*big.Int, error) {
	normalized, err := stream.NormalizeToken(token)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(normalized, account)
}

func (l *Ledger) credit(token string, to [20]byte, amount *big.Int) error {
	balance, err := l.balance(token, to)
	if err != nil {
		return err
	}
	balance.Add(balance, amount)
	return l.putBalance(token, to, balance)
}

func (l *Ledger) balance(token string, account [20]byte) (*big.Int, error) {
	key := accountKey(token, account)
	ok, err := l.db.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	raw, err := l.db.Get(key)
	if err != nil {
		return nil, err
	}
	balance := new(big.Int)
	if err := rlp.DecodeBytes(raw, balance); err != nil {
		return nil, fmt.Errorf("bank: decode balance: %w", err)
	}
	return balance, nil
}

func (l *Ledger) putBalance(token string, account [20]byte, balance *big.Int) error {
	raw, err := rlp.EncodeToBytes(balance)
	if err != nil {
		return err
	}
	return l.db.Put(accountKey(token, account), raw)
}

func accountKey(token string, account [20]byte) []byte {
	key := append(append([]byte(nil), accountPrefix...), token...)
	key = append(key, '/')
	return append(key, account[:]...)
}
