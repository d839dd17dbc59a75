package net

import (
	"errors"
	"sync"
)

// SessionState tracks where a connection sits in its lifecycle.
type SessionState int

const (
	// StateUnauthenticated is the state of a freshly accepted connection.
	StateUnauthenticated SessionState = iota
	// StateAuthenticated means a login succeeded and a player is bound.
	StateAuthenticated
	// StateClosed is terminal; no further transitions happen.
	StateClosed
)

// ErrBadTransition reports an authentication attempt from the wrong state.
var ErrBadTransition = errors.New("invalid session state transition")

// Session holds the per-connection state the transport layer cares about:
// who is logged in plus the ephemeral interaction windows (trade, bank)
// that die with the connection. All methods are safe for concurrent use.
type Session struct {
	mu       sync.Mutex
	state    SessionState
	userID   int64
	username string

	tradingWith int64
	bankOpen    bool
}

// NewSession starts in StateUnauthenticated.
func NewSession() *Session {
	return &Session{}
}

// Authenticate binds a player to the session. Only valid once, from the
// unauthenticated state; a second login on the same socket is rejected.
func (s *Session) Authenticate(userID int64, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUnauthenticated {
		return ErrBadTransition
	}
	s.state = StateAuthenticated
	s.userID = userID
	s.username = username
	return nil
}

// Authenticated reports whether a player is bound.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateAuthenticated
}

// UserID returns the bound player id, if any.
func (s *Session) UserID() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated {
		return 0, false
	}
	return s.userID, true
}

// Username returns the bound account name, empty when unauthenticated.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated {
		return ""
	}
	return s.username
}

// SetTrading records which merchant the player has a trade window open with.
// Zero clears it.
func (s *Session) SetTrading(npcID int64) {
	s.mu.Lock()
	s.tradingWith = npcID
	s.mu.Unlock()
}

// Trading returns the merchant of the open trade window, if one is open.
func (s *Session) Trading() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tradingWith, s.tradingWith != 0
}

// SetBankOpen toggles the bank window.
func (s *Session) SetBankOpen(open bool) {
	s.mu.Lock()
	s.bankOpen = open
	s.mu.Unlock()
}

// BankOpen reports whether the bank window is open.
func (s *Session) BankOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bankOpen
}

// Close moves the session to its terminal state and returns the player that
// was bound, so disconnect cleanup knows who to remove. Idempotent: only the
// first call reports a bound player.
func (s *Session) Close() (userID int64, wasAuthenticated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAuthenticated {
		userID, wasAuthenticated = s.userID, true
	}
	s.state = StateClosed
	s.tradingWith = 0
	s.bankOpen = false
	return userID, wasAuthenticated
}
