package mailprobe

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/mailprobe/mailprobe/internal/mxcache"
	"github.com/mailprobe/mailprobe/internal/parse"
	"github.com/mailprobe/mailprobe/internal/throttle"
	"github.com/mailprobe/mailprobe/probe"
	"github.com/mailprobe/mailprobe/resolve"
	"github.com/mailprobe/mailprobe/smtpprobe"
)

// Verifier answers whether a remote mail system would accept delivery to an
// address. A Verifier is safe for concurrent use; call Close when done to
// release pooled sessions.
type Verifier struct {
	cache    *mxcache.Cache
	provider probe.SessionProvider
	prober   probe.Prober
	identity Identity
	logger   *slog.Logger
	pool     *smtpprobe.Pool // owned default provider, nil if caller-supplied
}

// New creates a Verifier. With no options it resolves through the system
// nameservers and probes exchangers on port 25 with a pooled SMTP provider.
func New(opts ...Options) *Verifier {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}

	if o.Resolver == nil {
		o.Resolver = resolve.NewDNSResolver(resolve.Config{})
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 5 * time.Minute
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	v := &Verifier{
		cache: mxcache.New(throttledResolver{
			r: o.Resolver,
			t: throttle.New(o.MaxResolutions),
		}, o.CacheTTL),
		identity: effectiveIdentity(o.Identity),
		logger:   o.Logger,
	}

	v.provider = o.Provider
	v.prober = o.Prober
	if v.provider == nil {
		v.pool = smtpprobe.NewPool(o.SMTP)
		v.provider = v.pool
	}
	if v.prober == nil {
		v.prober = smtpprobe.NewProber(o.SMTP)
	}

	return v
}

// Close releases resources held by the Verifier. Safe to call multiple
// times; a no-op when the caller supplied its own session provider.
func (v *Verifier) Close() error {
	if v.pool != nil {
		return v.pool.Close()
	}
	return nil
}

// Verify reports whether the remote mail system for address's domain would
// accept delivery to it. A domain with no mail exchangers yields
// (false, nil). Exchangers are tried strictly in ascending priority order;
// the first definitive verdict wins, attempt failures fall through to the
// next host, and when every host fails the last error is returned.
func (v *Verifier) Verify(ctx context.Context, address string, ident ...Identity) (bool, error) {
	addr := parse.NewAddress(address)
	if !addr.Valid {
		return false, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	records, err := v.cache.LookupMX(ctx, addr.Domain)
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", addr.Domain, err)
	}
	hosts := resolve.OrderHosts(records)
	if len(hosts) == 0 {
		v.logger.Debug("domain has no mail exchangers", "domain", addr.Domain)
		return false, nil
	}

	id := v.identity
	if len(ident) > 0 {
		if ident[0].SenderDomain != "" {
			id.SenderDomain = ident[0].SenderDomain
		}
		if ident[0].SenderAddress != "" {
			id.SenderAddress = ident[0].SenderAddress
		}
	}

	var lastErr error
	for _, host := range hosts {
		accepted, err := v.attemptHost(ctx, host, addr.Raw, id)
		if err != nil {
			lastErr = err
			v.logger.Debug("exchanger attempt failed",
				"domain", addr.Domain, "host", host, "error", err)
			continue
		}
		return accepted, nil
	}
	return false, lastErr
}

// attemptHost runs one host's full attempt inside a session scope. The
// session is released by the provider on every exit path.
func (v *Verifier) attemptHost(ctx context.Context, host, recipient string, id Identity) (bool, error) {
	var verdict bool
	err := v.provider.WithSession(ctx, host, id.SenderDomain, func(s probe.Session) error {
		var aerr error
		verdict, aerr = v.attempt(ctx, s, recipient, id.SenderAddress)
		return aerr
	})
	return verdict, err
}

// attempt probes one session, honoring at most one greylisting deferral.
// The two-state loop makes the retry bound structural: once deferralUsed is
// set, a second deferral fails the attempt instead of waiting again.
func (v *Verifier) attempt(ctx context.Context, s probe.Session, recipient, senderAddress string) (bool, error) {
	deferralUsed := false
	for {
		out, err := v.prober.Probe(ctx, s, recipient, senderAddress)
		if err != nil {
			return false, err
		}
		if !out.Deferred {
			return out.Accepted, nil
		}
		if deferralUsed {
			return false, ErrGreylistRepeated
		}
		deferralUsed = true

		v.logger.Debug("greylisted, retrying once", "wait", out.RetryAfter)
		if err := sleep(ctx, out.RetryAfter); err != nil {
			return false, err
		}
		if err := s.Reset(); err != nil {
			return false, fmt.Errorf("reset after greylist deferral: %w", err)
		}
	}
}

// sleep waits for d unless ctx ends first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// effectiveIdentity fills unset identity fields from the local host name.
func effectiveIdentity(id Identity) Identity {
	if id.SenderDomain == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "localhost"
		}
		id.SenderDomain = host
	}
	if id.SenderAddress == "" {
		id.SenderAddress = "postmaster@" + id.SenderDomain
	}
	return id
}

// throttledResolver bounds concurrent resolutions; waiters queue FIFO.
type throttledResolver struct {
	r resolve.Resolver
	t *throttle.Throttle
}

func (tr throttledResolver) LookupMX(ctx context.Context, domain string) ([]*net.MX, error) {
	if err := tr.t.Acquire(ctx); err != nil {
		return nil, err
	}
	defer tr.t.Release()
	return tr.r.LookupMX(ctx, domain)
}
