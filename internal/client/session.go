package client

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hpetrik/chatproto/internal/protocol"
)

// State is the session lifecycle position.
type State int

const (
	StateInit State = iota
	StateAuthenticating
	StateOpen
	StateJoinPending
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAuthenticating:
		return "authenticating"
	case StateOpen:
		return "open"
	case StateJoinPending:
		return "join-pending"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// RequestKind records which category of request an incoming Reply must
// resolve against; the wire Reply carries no correlation to request type.
type RequestKind int

const (
	RequestNone RequestKind = iota
	RequestAuth
	RequestJoin
)

func (k RequestKind) String() string {
	switch k {
	case RequestAuth:
		return "authentication"
	case RequestJoin:
		return "join"
	default:
		return "none"
	}
}

// Session is the single mutable record of the client's protocol position.
// The receive path and the command path both mutate it, serialized behind
// one mutex because a Reply can race with a newly issued command.
type Session struct {
	mu               sync.Mutex
	state            State
	displayName      string
	confirmedChannel string
	pendingChannel   string
	authenticated    bool
	pending          RequestKind
	log              zerolog.Logger
}

func NewSession(log zerolog.Logger) *Session {
	return &Session{state: StateInit, log: log}
}

// BeginAuth transitions Init -> Authenticating and records the outstanding
// authentication request. Re-authentication after a failed Reply is allowed;
// a second attempt while one is outstanding is not.
func (s *Session) BeginAuth(displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInit {
		return fmt.Errorf("%w: authenticate in state %s", ErrIllegalState, s.state)
	}
	if s.pending != RequestNone {
		return fmt.Errorf("%w: %s request already outstanding", ErrIllegalState, s.pending)
	}
	s.state = StateAuthenticating
	s.pending = RequestAuth
	s.displayName = displayName
	s.log.Debug().Str("state", s.state.String()).Msg("authentication requested")
	return nil
}

// BeginJoin transitions Open -> JoinPending and records the channel the
// pending Reply will confirm or reject.
func (s *Session) BeginJoin(channel, displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return fmt.Errorf("%w: join in state %s", ErrIllegalState, s.state)
	}
	if s.pending != RequestNone {
		return fmt.Errorf("%w: %s request already outstanding", ErrIllegalState, s.pending)
	}
	s.state = StateJoinPending
	s.pending = RequestJoin
	s.pendingChannel = channel
	s.displayName = displayName
	s.log.Debug().Str("channel", channel).Msg("join requested")
	return nil
}

// EnsureChatAllowed rejects outbound chat before authentication resolves.
func (s *Session) EnsureChatAllowed(displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen && s.state != StateJoinPending {
		return fmt.Errorf("%w: message in state %s", ErrIllegalState, s.state)
	}
	s.displayName = displayName
	return nil
}

// ApplyReply resolves an inbound Reply against the outstanding request. A
// Reply with no request outstanding is a protocol violation.
func (s *Session) ApplyReply(success bool) (RequestKind, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resolved := s.pending
	switch s.pending {
	case RequestAuth:
		s.pending = RequestNone
		if success {
			s.state = StateOpen
			s.authenticated = true
			s.confirmedChannel = protocol.DefaultChannel
		} else {
			s.state = StateInit
		}
	case RequestJoin:
		s.pending = RequestNone
		if success {
			s.confirmedChannel = s.pendingChannel
		}
		s.pendingChannel = ""
		s.state = StateOpen
	default:
		return RequestNone, fmt.Errorf("%w: REPLY with no outstanding request", protocol.ErrUnexpectedFrame)
	}
	s.log.Debug().
		Str("request", resolved.String()).
		Bool("success", success).
		Str("state", s.state.String()).
		Msg("reply resolved")
	return resolved, nil
}

// AllowsInboundChat reports whether inbound chat messages are surfaced;
// arrivals before authentication are discarded.
func (s *Session) AllowsInboundChat() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateOpen || s.state == StateJoinPending
}

// HasPendingRequest reports whether a Reply is currently expected. The
// datagram transport consults this for its deduplication exception.
func (s *Session) HasPendingRequest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != RequestNone
}

// Terminate moves the session to its terminal state. Idempotent.
func (s *Session) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTerminated {
		return
	}
	s.state = StateTerminated
	s.pending = RequestNone
	s.pendingChannel = ""
	s.log.Debug().Msg("session terminated")
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) DisplayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayName
}

func (s *Session) Channel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmedChannel
}

func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}
