// Package trap turns received SNMP trap and inform PDUs into Notifications
// that say which agent changed and whether its inventory should be
// rediscovered. It handles the v1 versus v2c/v3 PDU differences; the UDP
// socket lives in the trapreceiver package.
package trap

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
)

// ─────────────────────────────────────────────────────────────────────────────
// Well-known OIDs
// ─────────────────────────────────────────────────────────────────────────────

const (
	oidSnmpTrapOID = ".1.3.6.1.6.3.1.1.4.1.0"

	// ifIndex column; linkUp/linkDown carry ifIndex.N as a payload varbind.
	oidIfIndex = ".1.3.6.1.2.1.2.2.1.1."

	OIDColdStart       = ".1.3.6.1.6.3.1.1.5.1"
	OIDWarmStart       = ".1.3.6.1.6.3.1.1.5.2"
	OIDLinkDown        = ".1.3.6.1.6.3.1.1.5.3"
	OIDLinkUp          = ".1.3.6.1.6.3.1.1.5.4"
	OIDAuthFailure     = ".1.3.6.1.6.3.1.1.5.5"
	OIDEntConfigChange = ".1.3.6.1.2.1.47.2.0.1"
)

// kinds names the notifications this package recognises. Everything else is
// reported as "other".
var kinds = map[string]string{
	OIDColdStart:       "coldStart",
	OIDWarmStart:       "warmStart",
	OIDLinkDown:        "linkDown",
	OIDLinkUp:          "linkUp",
	OIDAuthFailure:     "authenticationFailure",
	OIDEntConfigChange: "entConfigChange",
}

// refreshKinds are the notifications after which a device's interfaces or
// addresses may differ from the last discovery.
var refreshKinds = map[string]bool{
	"coldStart":       true,
	"warmStart":       true,
	"linkDown":        true,
	"linkUp":          true,
	"entConfigChange": true,
}

// ─────────────────────────────────────────────────────────────────────────────
// Notification
// ─────────────────────────────────────────────────────────────────────────────

// Notification is one parsed trap or inform.
type Notification struct {
	Timestamp time.Time `json:"timestamp"`

	// Address is the agent that sent the notification. For v1 traps the
	// PDU's agent-addr wins over the UDP source.
	Address string `json:"address"`

	// Version is "v1", "v2c" or "v3".
	Version string `json:"version"`

	// TrapOID is the dotted notification OID with a leading dot. v1 traps
	// are mapped to their v2 equivalent (RFC 3584 §3.1).
	TrapOID string `json:"trap_oid"`

	// Kind is the short name of TrapOID, or "other".
	Kind string `json:"kind"`

	// IfIndex is the interface named by linkUp/linkDown, 0 when absent.
	IfIndex int `json:"if_index,omitempty"`
}

// Refresh reports whether the notification signals an inventory change.
func (n Notification) Refresh() bool { return refreshKinds[n.Kind] }

// ─────────────────────────────────────────────────────────────────────────────
// Parse
// ─────────────────────────────────────────────────────────────────────────────

// Parse converts a packet received by a gosnmp TrapListener into a
// Notification. Informs are parsed like traps; acknowledging them is the
// listener's job.
func Parse(pkt *gosnmp.SnmpPacket, remoteAddr *net.UDPAddr) (Notification, error) {
	if pkt == nil {
		return Notification{}, fmt.Errorf("trap: nil packet")
	}

	n := Notification{Timestamp: time.Now().UTC()}
	if remoteAddr != nil {
		n.Address = remoteAddr.IP.String()
	}

	var payload []gosnmp.SnmpPDU
	switch pkt.Version {
	case gosnmp.Version1:
		n.Version = "v1"
		if pkt.AgentAddress != "" && pkt.AgentAddress != "0.0.0.0" {
			n.Address = pkt.AgentAddress
		}
		n.TrapOID = v1TrapOID(pkt)
		payload = pkt.Variables
	case gosnmp.Version2c, gosnmp.Version3:
		if pkt.Version == gosnmp.Version2c {
			n.Version = "v2c"
		} else {
			n.Version = "v3"
		}
		n.TrapOID, payload = v2TrapOID(pkt.Variables)
	default:
		return n, fmt.Errorf("trap: unsupported SNMP version %v", pkt.Version)
	}

	if n.Address == "" {
		return n, fmt.Errorf("trap: no sender address")
	}

	n.Kind = kinds[n.TrapOID]
	if n.Kind == "" {
		n.Kind = "other"
	}
	if n.Kind == "linkUp" || n.Kind == "linkDown" {
		n.IfIndex = ifIndex(payload)
	}
	return n, nil
}

// v1TrapOID applies the RFC 3584 §3.1 mapping:
//
//	generic 0-5 → .1.3.6.1.6.3.1.1.5.<generic+1>
//	generic 6   → <enterprise>.0.<specific>
func v1TrapOID(pkt *gosnmp.SnmpPacket) string {
	if pkt.GenericTrap >= 0 && pkt.GenericTrap < 6 {
		return fmt.Sprintf(".1.3.6.1.6.3.1.1.5.%d", pkt.GenericTrap+1)
	}
	return fmt.Sprintf("%s.0.%d", normaliseOID(pkt.Enterprise), pkt.SpecificTrap)
}

// v2TrapOID finds snmpTrapOID.0 and returns its value with the varbinds that
// follow it. Agents that omit sysUpTime.0 are tolerated; a PDU without
// snmpTrapOID.0 yields an empty OID and the whole list as payload.
func v2TrapOID(vars []gosnmp.SnmpPDU) (string, []gosnmp.SnmpPDU) {
	for i, v := range vars {
		if normaliseOID(v.Name) != oidSnmpTrapOID {
			continue
		}
		return normaliseOID(fmt.Sprintf("%v", v.Value)), vars[i+1:]
	}
	return "", vars
}

// ifIndex returns the value of the first ifIndex.N varbind, falling back to
// the N in its name.
func ifIndex(vars []gosnmp.SnmpPDU) int {
	for _, v := range vars {
		name := normaliseOID(v.Name)
		if !strings.HasPrefix(name, oidIfIndex) {
			continue
		}
		if v.Type == gosnmp.Integer {
			if idx := int(gosnmp.ToBigInt(v.Value).Int64()); idx > 0 {
				return idx
			}
		}
		var idx int
		if _, err := fmt.Sscanf(strings.TrimPrefix(name, oidIfIndex), "%d", &idx); err == nil && idx > 0 {
			return idx
		}
	}
	return 0
}

// normaliseOID ensures a leading dot and no trailing dot.
func normaliseOID(oid string) string {
	oid = strings.TrimSpace(oid)
	if oid == "" {
		return ""
	}
	if !strings.HasPrefix(oid, ".") {
		oid = "." + oid
	}
	return strings.TrimSuffix(oid, ".")
}
