package smtpprobe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mailprobe/mailprobe/probe"
)

// Prober drives the MAIL FROM / RCPT TO exchange on a session and maps the
// server's reply to a probe.Outcome.
type Prober struct {
	greylistDelay time.Duration
}

var _ probe.Prober = (*Prober)(nil)

// NewProber creates a prober. Only Config.GreylistDelay is consulted.
func NewProber(cfg Config) *Prober {
	return &Prober{greylistDelay: cfg.withDefaults().GreylistDelay}
}

// Probe asks the session's exchanger whether it would accept mail for
// recipient from senderAddress. A 2xx RCPT reply is a definitive accept, a
// 5xx a definitive reject; the transient codes mail transfer agents use for
// greylisting become a deferral with the configured retry delay. Everything
// else is an attempt error.
func (p *Prober) Probe(ctx context.Context, s probe.Session, recipient, senderAddress string) (probe.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return probe.Outcome{}, err
	}

	code, msg, err := s.Cmd("MAIL FROM:<%s>", senderAddress)
	if err != nil {
		return probe.Outcome{}, fmt.Errorf("MAIL FROM: %w", err)
	}
	if code >= 400 {
		return probe.Outcome{}, fmt.Errorf("MAIL FROM rejected: %d %s", code, msg)
	}

	code, msg, err = s.Cmd("RCPT TO:<%s>", recipient)
	if err != nil {
		return probe.Outcome{}, fmt.Errorf("RCPT TO: %w", err)
	}

	switch {
	case code >= 200 && code < 300:
		return probe.Outcome{Accepted: true}, nil
	case isDeferral(code, msg):
		return probe.Outcome{Deferred: true, RetryAfter: p.greylistDelay}, nil
	case code >= 500:
		return probe.Outcome{Accepted: false}, nil
	default:
		return probe.Outcome{}, fmt.Errorf("unexpected RCPT reply: %d %s", code, msg)
	}
}

// isDeferral recognizes the transient replies greylisting implementations
// send: 421/450/451, or any 4xx whose text names the technique.
func isDeferral(code int, msg string) bool {
	switch code {
	case 421, 450, 451:
		return true
	}
	if code >= 400 && code < 500 {
		lower := strings.ToLower(msg)
		return strings.Contains(lower, "greylist") || strings.Contains(lower, "graylist")
	}
	return false
}
