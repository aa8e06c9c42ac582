package mailprobe

import (
	"log/slog"
	"time"

	"github.com/mailprobe/mailprobe/probe"
	"github.com/mailprobe/mailprobe/resolve"
	"github.com/mailprobe/mailprobe/smtpprobe"
)

// Identity is the claimed origin of a probe. It is presented to the remote
// system as-is and never validated for ownership.
type Identity struct {
	// SenderDomain is greeted to the exchanger (EHLO). Default: local host name.
	SenderDomain string
	// SenderAddress is the claimed envelope sender. Default: postmaster@<SenderDomain>.
	SenderAddress string
}

// Options configures a Verifier. The zero value of every field selects a
// sensible default.
type Options struct {
	// Resolver performs MX lookups. Default: a DNS resolver querying the
	// system nameservers directly.
	Resolver resolve.Resolver

	// Provider yields scoped probe sessions. Default: a pooled SMTP
	// session provider built from SMTP below. Supplying a Provider makes
	// Close a no-op; the caller owns its lifecycle.
	Provider probe.SessionProvider

	// Prober drives the protocol-level check. Default: an SMTP
	// MAIL FROM/RCPT TO prober built from SMTP below.
	Prober probe.Prober

	// Identity is the default claimed origin, overridable per Verify call.
	Identity Identity

	// MaxResolutions caps MX resolutions in flight process-wide. Default: 256.
	MaxResolutions int64

	// CacheTTL is how long MX results are reused. Default: 5m.
	CacheTTL time.Duration

	// SMTP configures the default provider and prober.
	SMTP smtpprobe.Config

	// Logger receives per-attempt diagnostics at debug level.
	// Default: slog.Default().
	Logger *slog.Logger
}
