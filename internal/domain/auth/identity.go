// Package auth describes who is using the application.
//
// Authentication itself belongs to an external identity provider; this
// package only models the resulting identity and the current-session
// accessor consumed by the order stores.
package auth

import (
	"sync"

	"github.com/go-faster/errors"
)

// Role distinguishes customers from chefs.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleChef     Role = "chef"
)

// ParseRole validates s as a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleCustomer, RoleChef:
		return r, nil
	default:
		return "", errors.Errorf("unknown role %q", s)
	}
}

// Identity is an authenticated user as reported by the identity provider.
type Identity struct {
	ID   string
	Name string
	Role Role
}

// Session reports the identity of the current session, if any.
type Session interface {
	Current() (Identity, bool)
}

// Holder is a Session whose identity can be swapped at sign-in and sign-out.
type Holder struct {
	mu       sync.RWMutex
	identity Identity
	signedIn bool
}

// NewHolder returns a Holder signed in as id. An empty id yields an anonymous
// session.
func NewHolder(id Identity) *Holder {
	h := &Holder{}
	if id.ID != "" {
		h.SignIn(id)
	}
	return h
}

// Current implements Session.
func (h *Holder) Current() (Identity, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.identity, h.signedIn
}

// SignIn makes id the current identity.
func (h *Holder) SignIn(id Identity) {
	h.mu.Lock()
	h.identity, h.signedIn = id, true
	h.mu.Unlock()
}

// SignOut clears the current identity.
func (h *Holder) SignOut() {
	h.mu.Lock()
	h.identity, h.signedIn = Identity{}, false
	h.mu.Unlock()
}
