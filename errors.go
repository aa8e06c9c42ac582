package mailprobe

import "errors"

var (
	// ErrInvalidAddress is returned when Verify is given a string that
	// cannot be parsed into local-part@domain.
	ErrInvalidAddress = errors.New("mailprobe: invalid recipient address")

	// ErrGreylistRepeated marks a host that deferred again after its one
	// allowed greylisting retry. It fails that host's attempt and triggers
	// fallback to the next exchanger.
	ErrGreylistRepeated = errors.New("mailprobe: server applied greylisting after the allowed retry")
)
