package ownership

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

var tokenPrefix = []byte("ownership/token/")

var (
	errAlreadyMinted = errors.New("ownership: token already minted")
	errUnknownToken  = errors.New("ownership: unknown token")
	errZeroAddress   = errors.New("ownership: zero address")
	errNotOwner      = errors.New("ownership: caller is not the owner")
)

// storedToken is the RLP shape of one ownership token: the holder plus the
// operators the holder has approved for it.
type storedToken struct {
	Owner     [20]byte
	Approvals [][20]byte
}

// Registry issues the non-fungible tokens that represent stream control.
// Token identifiers mirror stream identifiers one-to-one; a transfer clears
// any operator approvals granted by the previous holder.
type Registry struct {
	mu sync.Mutex
	db storage.Database
}

var _ stream.OwnershipRegistry = (*Registry)(nil)

// NewRegistry binds a registry to the given backend.
func NewRegistry(db storage.Database) *Registry {
	return &Registry{db: db}
}

// Mint issues the token to its first holder. Identifiers are single-use.
func (r *Registry) Mint(to [20]byte, id *big.Int) error {
	if to == ([20]byte{}) {
		return errZeroAddress
	}
	key, ok := tokenKey(id)
	if !ok {
		return errUnknownToken
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	exists, err := r.db.Has(key)
	if err != nil {
		return err
	}
	if exists {
		return errAlreadyMinted
	}
	return r.put(key, &storedToken{Owner: to})
}

// OwnerOf returns the current holder.
func (r *Registry) OwnerOf(id *big.Int) ([20]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok, _, err := r.get(id)
	if err != nil {
		return [20]byte{}, err
	}
	return tok.Owner, nil
}

// Transfer moves the token to a new holder and clears approvals.
func (r *Registry) Transfer(id *big.Int, to [20]byte) error {
	if to == ([20]byte{}) {
		return errZeroAddress
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	tok, key, err := r.get(id)
	if err != nil {
		return err
	}
	tok.Owner = to
	tok.Approvals = nil
	return r.put(key, tok)
}

// Approve lets the current holder authorize an operator for this token.
func (r *Registry) Approve(caller [20]byte, id *big.Int, operator [20]byte) error {
	if operator == ([20]byte{}) {
		return errZeroAddress
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	tok, key, err := r.get(id)
	if err != nil {
		return err
	}
	if tok.Owner != caller {
		return errNotOwner
	}
	for _, approved := range tok.Approvals {
		if approved == operator {
			return nil
		}
	}
	tok.Approvals = append(tok.Approvals, operator)
	return r.put(key, tok)
}

// Approved reports whether the operator is approved for the token. Unknown
// tokens simply report false.
func (r *Registry) Approved(id *big.Int, operator [20]byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok, _, err := r.get(id)
	if err != nil {
		return false
	}
	for _, approved := range tok.Approvals {
		if approved == operator {
			return true
		}
	}
	return false
}

func (r *Registry) get(id *big.Int) (*storedToken, []byte, error) {
	key, ok := tokenKey(id)
	if !ok {
		return nil, nil, errUnknownToken
	}
	raw, err := r.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil, fmt.Errorf("%w: id %s", errUnknownToken, id)
	}
	if err != nil {
		return nil, nil, err
	}
	var tok storedToken
	if err := rlp.DecodeBytes(raw, &tok); err != nil {
		return nil, nil, fmt.Errorf("ownership: decode token: %w", err)
	}
	return &tok, key, nil
}

func (r *Registry) put(key []byte, tok *storedToken) error {
	raw, err := rlp.EncodeToBytes(tok)
	if err != nil {
		return err
	}
	return r.db.Put(key, raw)
}

func tokenKey(id *big.Int) ([]byte, bool) {
	if id == nil || id.Sign() < 0 {
		return nil, false
	}
	word, overflow := uint256.FromBig(id)
	if overflow {
		return nil, false
	}
	b32 := word.Bytes32()
	return append(append([]byte(nil), tokenPrefix...), b32[:]...), true
}
