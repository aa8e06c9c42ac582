package resolve

import (
	"context"
	"errors"
	"net"
)

// StdResolver implements Resolver using the standard library resolver.
// Useful when queries should go through the platform's stub resolver
// instead of hitting nameservers directly.
type StdResolver struct {
	resolver *net.Resolver
}

// NewStdResolver creates a resolver backed by net.DefaultResolver.
func NewStdResolver() *StdResolver {
	return &StdResolver{resolver: net.DefaultResolver}
}

// LookupMX retrieves MX records via the standard library, mapping
// "no such host" to an empty result.
func (r *StdResolver) LookupMX(ctx context.Context, domain string) ([]*net.MX, error) {
	records, err := r.resolver.LookupMX(ctx, domain)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return nil, nil
		}
		// The stdlib can return usable records alongside an error when
		// some entries are malformed.
		if len(records) > 0 {
			return records, nil
		}
		return nil, err
	}
	return records, nil
}
