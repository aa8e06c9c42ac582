// Package resolve discovers the mail exchangers advertised by a domain.
package resolve

import (
	"context"
	"net"
	"sort"
	"strings"
)

// Resolver looks up the MX records for a domain.
//
// A domain with no mail service (NXDOMAIN or no MX data) yields an empty
// record set and a nil error; only resolver-infrastructure failures produce
// an error.
type Resolver interface {
	LookupMX(ctx context.Context, domain string) ([]*net.MX, error)
}

// OrderHosts returns the exchanger hostnames ordered by ascending
// preference value (lower value = more preferred). The sort is stable, so
// exchangers sharing a preference keep their resolver order. Trailing dots
// are stripped and the preference values are discarded.
func OrderHosts(records []*net.MX) []string {
	sorted := make([]*net.MX, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Pref < sorted[j].Pref
	})

	hosts := make([]string, 0, len(sorted))
	for _, r := range sorted {
		host := strings.TrimSuffix(r.Host, ".")
		if host == "" {
			continue
		}
		hosts = append(hosts, host)
	}
	return hosts
}
