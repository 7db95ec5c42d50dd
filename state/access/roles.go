package access

import (
	"sync"

	"streampay/native/stream"
)

// Roles is an in-memory role registry answering the access-control contract.
// Membership is bootstrapped from configuration at startup; the deterministic
// call model needs no persistence for it.
type Roles struct {
	mu      sync.RWMutex
	members map[string]map[[20]byte]struct{}
}

var _ stream.AccessControl = (*Roles)(nil)

// NewRoles creates an empty registry.
func NewRoles() *Roles {
	return &Roles{members: make(map[string]map[[20]byte]struct{})}
}

// Grant adds an account to a role. Granting twice is a no-op.
func (r *Roles) Grant(role string, account [20]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[role] == nil {
		r.members[role] = make(map[[20]byte]struct{})
	}
	r.members[role][account] = struct{}{}
}

// Revoke removes an account from a role.
func (r *Roles) Revoke(role string, account [20]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members[role], account)
}

// HasRole reports role membership.
func (r *Roles) HasRole(role string, account [20]byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[role][account]
	return ok
}
