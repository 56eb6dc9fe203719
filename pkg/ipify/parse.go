package ipify

import (
	"net/netip"
	"strings"

	"github.com/pkg/errors"
)

// ParseAddress trims text and parses it as an IPv4 or IPv6 literal.
func ParseAddress(text string) (netip.Addr, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return netip.Addr{}, errors.Wrap(ErrInvalidArgument, "address text is empty")
	}

	addr, err := netip.ParseAddr(trimmed)
	if err != nil {
		return netip.Addr{}, &AddressFormatError{Input: trimmed, Err: err}
	}
	return addr, nil
}
