package config

import (
	"fmt"
	"net/netip"
	"time"
)

// MaxNetworkHosts bounds how many addresses a single network target may
// expand to.
const MaxNetworkHosts = 1 << 16

// DeviceConfig is the fully-resolved configuration for discovering a single
// address.
type DeviceConfig struct {
	// IP is the management address of the device. Empty on the template
	// carried by a Target.
	IP string

	// Port is the UDP port for SNMP requests (default 161).
	Port int

	// Timeout is the per-request timeout enforced by the session.
	Timeout time.Duration

	// Retries is the number of retry attempts the session makes on timeout.
	Retries int

	// ExponentialTimeout enables exponential backoff between retries.
	ExponentialTimeout bool

	Credentials Credentials

	// Site, Role and Platform are caller-supplied labels; they are never
	// queried from the device.
	Site     string
	Role     string
	Platform string

	// SiteFromLocation uses the device's sysLocation as its site when Site is
	// empty.
	SiteFromLocation bool
}

// Target is one validated selection: a single address or a network range,
// plus the configuration applied to every address in it.
type Target struct {
	Address string
	Network string
	Device  DeviceConfig
}

// String returns the address or network the target selects.
func (t Target) String() string {
	if t.Network != "" {
		return t.Network
	}
	return t.Address
}

// Addresses expands the target into the addresses to discover. IPv4 networks
// wider than /31 exclude their network and broadcast addresses. IPv6 networks
// wider than /127 exclude only the subnet-router anycast address (the first
// one); IPv6 has no broadcast.
func (t Target) Addresses() ([]string, error) {
	if t.Address != "" {
		addr, err := netip.ParseAddr(t.Address)
		if err != nil {
			return nil, fmt.Errorf("%w: target address %q: %v", ErrInvalid, t.Address, err)
		}
		return []string{addr.String()}, nil
	}

	prefix, err := netip.ParsePrefix(t.Network)
	if err != nil {
		return nil, fmt.Errorf("%w: target network %q: %v", ErrInvalid, t.Network, err)
	}
	prefix = prefix.Masked()

	hostBits := prefix.Addr().BitLen() - prefix.Bits()
	if hostBits > 16 {
		return nil, fmt.Errorf("%w: target network %s exceeds %d addresses", ErrInvalid, prefix, MaxNetworkHosts)
	}

	addrs := make([]string, 0, 1<<hostBits)
	for a := prefix.Addr(); a.IsValid() && prefix.Contains(a); a = a.Next() {
		addrs = append(addrs, a.String())
	}
	if hostBits > 1 && len(addrs) > 2 {
		if prefix.Addr().Is4() {
			addrs = addrs[1 : len(addrs)-1]
		} else {
			addrs = addrs[1:]
		}
	}
	return addrs, nil
}

// Devices returns one DeviceConfig per address in the target.
func (t Target) Devices() ([]DeviceConfig, error) {
	addrs, err := t.Addresses()
	if err != nil {
		return nil, err
	}
	out := make([]DeviceConfig, len(addrs))
	for i, a := range addrs {
		dc := t.Device
		dc.IP = a
		out[i] = dc
	}
	return out, nil
}
