package machine

import "sync"

// TerminalState is the state index of a session whose conversation has
// ended. A session in this state must be evicted by its owner.
const TerminalState = -1

// Session is the live conversational context of one connected client. It is
// created by the session registry on connect and mutated only by the
// interpreter (state index, idle clock) and the registry (username, login
// flag). A mutex guards every field against a client racing its own
// requests.
type Session struct {
	mu sync.Mutex

	username        string
	stateIndex      int
	loggedIn        bool
	lastIdleSeconds int
}

// NewSession creates a session positioned at the Welcome state.
func NewSession(username string) *Session {
	return &Session{username: username}
}

// Username returns the name the session is registered under.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Rename changes the session's username. Only the session registry may call
// this, and only while it holds the registry lock, so that the name always
// matches the registry's map key.
func (s *Session) Rename(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = username
}

// StateIndex returns the session's position in the state graph;
// TerminalState means the conversation has ended.
func (s *Session) StateIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateIndex
}

func (s *Session) setStateIndex(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateIndex = idx
}

// LoggedIn reports whether the session has authenticated.
func (s *Session) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

// SetLoggedIn marks the session as authenticated. Only the registry calls
// this, on successful login or register.
func (s *Session) SetLoggedIn(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedIn = v
}

// swapIdleSeconds records the client's reported idle seconds and returns the
// previously recorded value.
func (s *Session) swapIdleSeconds(now int) (last int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	last = s.lastIdleSeconds
	s.lastIdleSeconds = now
	return last
}
