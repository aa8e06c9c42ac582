// Package probe contains the collaborator contracts between the
// verification orchestrator and the protocol layer.
// This package does not import anything from other mailprobe packages
// to avoid circular imports.
package probe

import (
	"context"
	"time"
)

// Session is one live conversation slot against a mail exchanger.
// A Session is only valid inside the SessionProvider scope that produced it.
type Session interface {
	// Cmd sends a single command line and returns the server's reply code
	// and message.
	Cmd(format string, args ...any) (code int, msg string, err error)

	// Reset returns the session to a clean transaction state so a new
	// probe can run on it.
	Reset() error
}

// SessionProvider yields scoped probe sessions. The session passed to fn is
// released on every exit path, success or failure, before WithSession
// returns. fn's error is forwarded unchanged.
type SessionProvider interface {
	WithSession(ctx context.Context, host, senderDomain string, fn func(Session) error) error
}

// Outcome is the prober's interpretation of one protocol exchange.
// Deferred=false means the remote gave a definitive verdict in Accepted;
// Deferred=true means the remote greylisted the probe and RetryAfter holds
// the wait before the single allowed retry.
type Outcome struct {
	Deferred   bool
	Accepted   bool
	RetryAfter time.Duration
}

// Prober executes the protocol-level deliverability check on a session.
// An error means the attempt itself failed (transport or protocol trouble),
// as opposed to the remote reaching a verdict.
type Prober interface {
	Probe(ctx context.Context, s Session, recipient, senderAddress string) (Outcome, error)
}
