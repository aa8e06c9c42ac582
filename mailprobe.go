// Package mailprobe determines whether a remote mail system would accept
// delivery to an address, without sending a message. It resolves the
// domain's mail exchangers, probes them in priority order and interprets
// the remote replies, honoring a single greylisting deferral per host.
//
// Basic usage:
//
//	v := mailprobe.New()
//	defer v.Close()
//
//	ok, err := v.Verify(ctx, "user@example.com")
//
// A "false" verdict with a nil error means the remote system would not
// accept the address (or the domain has no mail service at all); an error
// means every exchanger attempt failed. A "true" verdict does not guarantee
// actual deliverability: catch-all servers and policy filtering are outside
// this probe's observational power.
package mailprobe

import "github.com/mailprobe/mailprobe/probe"

// Session is a re-export from the probe package so that consumers
// providing their own collaborators don't need to import it directly.
type Session = probe.Session

// SessionProvider is a re-export.
type SessionProvider = probe.SessionProvider

// Prober is a re-export.
type Prober = probe.Prober

// Outcome is a re-export.
type Outcome = probe.Outcome
