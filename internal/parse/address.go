// Package parse turns raw recipient strings into their local part and
// resolvable domain.
package parse

import (
	"net/mail"
	"strings"

	"golang.org/x/net/idna"
)

// Address is a parsed recipient address. Domain is the ASCII/Punycode form
// used for resolution and probing; the local part is treated as opaque.
type Address struct {
	Raw    string // the original, trimmed input
	Local  string // the part before the last @
	Domain string // the part after the last @, ASCII form
	Valid  bool   // false if Raw cannot be parsed
}

// NewAddress parses the given recipient string. If parsing fails,
// Valid=false but Raw is always populated. Internationalized local parts
// (RFC 6531 / SMTPUTF8) and internationalized domain names (IDNA2008) are
// supported.
func NewAddress(raw string) Address {
	raw = strings.TrimSpace(raw)

	// net/mail handles most ASCII forms, including "Name <a@b>". Unicode
	// local parts fall through to the raw input.
	candidate := raw
	if addr, err := mail.ParseAddress(raw); err == nil {
		candidate = addr.Address
	} else if addr, err := mail.ParseAddress("<" + raw + ">"); err == nil {
		candidate = addr.Address
	}

	at := strings.LastIndex(candidate, "@")
	if at < 1 || at == len(candidate)-1 {
		return Address{Raw: raw}
	}
	local, domain := candidate[:at], candidate[at+1:]

	ascii, err := domainToASCII(strings.ToLower(domain))
	if err != nil {
		return Address{Raw: raw}
	}

	return Address{
		Raw:    raw,
		Local:  local,
		Domain: ascii,
		Valid:  true,
	}
}

// domainToASCII converts an internationalized domain to its Punycode form
// via IDNA2008. Pure ASCII domains pass through untouched.
func domainToASCII(domain string) (string, error) {
	for _, r := range domain {
		if r > 127 {
			return idna.Lookup.ToASCII(domain)
		}
	}
	return domain, nil
}
