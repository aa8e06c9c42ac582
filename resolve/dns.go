package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Config configures the DNS resolver.
type Config struct {
	// Nameservers is a list of DNS servers to query (e.g., "8.8.8.8:53").
	// If empty, system resolvers from /etc/resolv.conf are used,
	// falling back to public DNS (8.8.8.8, 1.1.1.1).
	Nameservers []string

	// Timeout is the timeout for individual DNS queries. Default is 5 seconds.
	Timeout time.Duration

	// Retries is the number of retries for failed queries. Default is 2.
	Retries int
}

// DNSResolver implements Resolver using github.com/miekg/dns, querying the
// configured nameservers directly.
type DNSResolver struct {
	config Config
	client *dns.Client
}

// NewDNSResolver creates a DNS resolver with the given configuration.
func NewDNSResolver(config Config) *DNSResolver {
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if config.Retries == 0 {
		config.Retries = 2
	}
	if len(config.Nameservers) == 0 {
		config.Nameservers = systemNameservers()
	}

	return &DNSResolver{
		config: config,
		client: &dns.Client{
			Timeout: config.Timeout,
		},
	}
}

// LookupMX retrieves the MX records for the given domain. NXDOMAIN and an
// empty answer section both mean the domain has no mail service and return
// an empty set with a nil error.
func (r *DNSResolver) LookupMX(ctx context.Context, domain string) ([]*net.MX, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(domain), dns.TypeMX)
	m.RecursionDesired = true

	var lastErr error
	for i := 0; i <= r.config.Retries; i++ {
		for _, server := range r.config.Nameservers {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			resp, _, err := r.client.ExchangeContext(ctx, m, server)
			if err != nil {
				lastErr = fmt.Errorf("mx query against %s: %w", server, err)
				continue
			}

			switch resp.Rcode {
			case dns.RcodeSuccess:
				var records []*net.MX
				for _, rr := range resp.Answer {
					if mx, ok := rr.(*dns.MX); ok {
						records = append(records, &net.MX{
							Host: mx.Mx,
							Pref: mx.Preference,
						})
					}
				}
				// An empty answer is "no mail service", not a failure.
				return records, nil
			case dns.RcodeNameError:
				return nil, nil
			default:
				lastErr = fmt.Errorf("mx query against %s: %s", server, dns.RcodeToString[resp.Rcode])
			}
		}
	}

	if lastErr == nil {
		lastErr = errors.New("resolve: no nameservers configured")
	}
	return nil, lastErr
}

// systemNameservers tries to get system DNS servers from resolv.conf.
func systemNameservers() []string {
	config, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(config.Servers) == 0 {
		return []string{"8.8.8.8:53", "1.1.1.1:53"}
	}

	servers := make([]string, 0, len(config.Servers))
	for _, s := range config.Servers {
		if !strings.Contains(s, ":") {
			s = s + ":" + config.Port
		}
		servers = append(servers, s)
	}
	return servers
}
