package discovery

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// ErrMalformedAddress marks an ipAddrTable entry whose address and netmask do
// not form a valid network. It fails the discovery of that device.
var ErrMalformedAddress = errors.New("malformed address/netmask pair")

// StripQuotes removes one surrounding double quote from each end of a
// rendered value: `"Gi0/1"` → `Gi0/1`. Inner quotes are kept.
func StripQuotes(v string) string {
	v = strings.TrimPrefix(v, `"`)
	return strings.TrimSuffix(v, `"`)
}

// NormalizeMAC converts an ifPhysAddress rendered as hex octets into
// colon-separated hex.
//
//	`"00 1A 2B 3C 4D 5E "` → `00:1A:2B:3C:4D:5E`
//	`""`                   → ``
//
// The column is always walked with WalkHex, so every octet, including NUL
// and space bytes, arrives as a two-digit hex field.
func NormalizeMAC(raw string) string {
	return strings.Join(strings.Fields(StripQuotes(raw)), ":")
}

// AdminEnabled maps ifAdminStatus to a boolean: only up(1) is enabled.
// testing(3), down(2) and anything unexpected are disabled.
func AdminEnabled(v string) bool {
	return v == adminStatusUp
}

// IndexFromOID returns the trailing arc of a row OID as an interface index.
// ok is false when the arc is not a valid InterfaceIndex.
func IndexFromOID(oid string) (idx uint32, ok bool) {
	arc := oid
	if dot := strings.LastIndexByte(oid, '.'); dot >= 0 {
		arc = oid[dot+1:]
	}
	return parseIndex(arc)
}

// SuffixAfter strips the table root and its trailing dot from a row OID,
// returning the row's index part:
//
//	SuffixAfter("1.3.6.1.2.1.4.20.1.2.10.0.0.5", "1.3.6.1.2.1.4.20.1.2") → "10.0.0.5"
//
// ok is false when the OID is not under root or has no index.
func SuffixAfter(oid, root string) (string, bool) {
	rest, found := strings.CutPrefix(oid, root+".")
	if !found || rest == "" {
		return "", false
	}
	return rest, true
}

// parseIndex parses a decimal InterfaceIndex (1..2147483647).
func parseIndex(s string) (uint32, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 31)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint32(n), true
}

// NetworkCIDR combines an IPv4 address with its dotted-decimal netmask and
// returns the network in CIDR form: ("10.0.0.5", "255.255.255.0") →
// "10.0.0.0/24". Non-contiguous masks are rejected.
func NetworkCIDR(address, netmask string) (string, error) {
	addr, err := netip.ParseAddr(StripQuotes(address))
	if err != nil || !addr.Is4() {
		return "", fmt.Errorf("%w: address %q", ErrMalformedAddress, address)
	}
	mask, err := netip.ParseAddr(StripQuotes(netmask))
	if err != nil || !mask.Is4() {
		return "", fmt.Errorf("%w: netmask %q", ErrMalformedAddress, netmask)
	}

	m4 := mask.As4()
	ones, bits := net.IPMask(m4[:]).Size()
	if bits == 0 {
		return "", fmt.Errorf("%w: non-contiguous netmask %q", ErrMalformedAddress, netmask)
	}

	prefix, err := addr.Prefix(ones)
	if err != nil {
		return "", fmt.Errorf("%w: %s/%d: %v", ErrMalformedAddress, address, ones, err)
	}
	return prefix.String(), nil
}
