package resolve

import (
	"context"
	"errors"
	"net"
	"slices"
)

// ErrServFail is the error the Mock resolver returns for domains listed in
// Fail, standing in for resolver-infrastructure failures.
var ErrServFail = errors.New("resolve: server failure")

// Mock is a Resolver used for testing. Records are configured per domain;
// domains absent from MX resolve as "no mail service".
type Mock struct {
	// MX maps domains to their MX records.
	MX map[string][]*net.MX

	// Fail contains domains whose lookup returns ErrServFail.
	Fail []string
}

var _ Resolver = Mock{}

// LookupMX returns the configured records for domain.
func (m Mock) LookupMX(ctx context.Context, domain string) ([]*net.MX, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if slices.Contains(m.Fail, domain) {
		return nil, ErrServFail
	}
	return m.MX[domain], nil
}
