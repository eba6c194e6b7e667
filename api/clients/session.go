package clients

import (
	"crypto/tls"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/atomic"
)

// SessionState is the lifecycle position of a single request's session.
type SessionState int32

const (
	StateIdle SessionState = iota
	StateSessionOpen
	StateSent
	StateSucceeded
	StateFailed
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSessionOpen:
		return "SESSION_OPEN"
	case StateSent:
		return "SENT"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateFailed:
		return "FAILED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// session owns the TLS connection context of exactly one request. It is
// never reused: Close releases every connection it opened.
type session struct {
	state *atomic.Int32
	hook  func(SessionState)

	transport *http.Transport
	client    *http.Client
}

func newSession(hook func(SessionState)) *session {
	s := &session{state: atomic.NewInt32(int32(StateIdle)), hook: hook}
	s.notify(StateIdle)
	return s
}

func (s *session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *session) transition(to SessionState) {
	s.state.Store(int32(to))
	s.notify(to)
}

func (s *session) notify(to SessionState) {
	if s.hook != nil {
		s.hook(to)
	}
}

// open prepares the HTTPS client. proxy may be nil for a direct connection.
func (s *session) open(tlsConfig *tls.Config, proxy func(*http.Request) (*url.URL, error), timeout time.Duration) {
	s.transport = &http.Transport{
		TLSClientConfig:     tlsConfig,
		Proxy:               proxy,
		DisableKeepAlives:   true,
		ForceAttemptHTTP2:   false,
		TLSHandshakeTimeout: timeout,
	}
	s.client = &http.Client{
		Transport: s.transport,
		Timeout:   timeout,
	}
	s.transition(StateSessionOpen)
}

// Close releases the session. It is safe to call on a session that never
// opened and it always ends in StateClosed.
func (s *session) Close() {
	if s.transport != nil {
		s.transport.CloseIdleConnections()
	}
	s.transition(StateClosed)
}
