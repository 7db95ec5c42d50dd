package stream

import "math/big"

// RoleStreamAdmin gates protocol administration: fee-rate changes, fee
// collector updates and surplus recovery.
const RoleStreamAdmin = "ROLE_STREAM_ADMIN"

// TokenLedger is the fungible-token collaborator. Transfers either fully
// succeed or fail atomically with the call that requested them; any failure
// aborts the whole engine call.
type TokenLedger interface {
	Transfer(token string, from, to [20]byte, amount *big.Int) error
	TransferFrom(token string, from, to [20]byte, amount *big.Int) error
	BalanceOf(token string, account [20]byte) (*big.Int, error)
}

// OwnershipRegistry issues the non-fungible token that represents control of
// a stream. Ownership-token identifiers coincide one-to-one with stream
// identifiers; the holder is authoritative for recipient-side operations.
type OwnershipRegistry interface {
	Mint(to [20]byte, id *big.Int) error
	OwnerOf(id *big.Int) ([20]byte, error)
	Transfer(id *big.Int, to [20]byte) error
	Approved(id *big.Int, operator [20]byte) bool
}

// AccessControl answers role checks for protocol-owner-gated operations.
type AccessControl interface {
	HasRole(role string, account [20]byte) bool
}

// Ledger owns the identifier-to-stream mapping, the monotonic identifier
// counter and the incrementally maintained aggregates. Insert mints the next
// identifier; Put replaces an existing record and reconciles the aggregates
// against the previously stored one.
type Ledger interface {
	InsertStream(s *Stream) (*big.Int, error)
	StreamByID(id *big.Int) (*Stream, bool, error)
	PutStream(s *Stream) error
	ActiveStreamCount() (uint64, error)
	TotalStreams() (uint64, error)
	AggregateBalance(token string) (*big.Int, error)
	AddFeesCollected(token string, amount *big.Int) error
	FeesCollected(token string) (*big.Int, error)
	Tokens() ([]string, error)
	ForEachStream(fn func(*Stream) bool) error
}
