// Package poller is the query-client side of SNMP Diode. It converts a
// resolved DeviceConfig into a live gosnmp session, exposes the Get / Walk
// operations the discovery engine needs, and runs discoveries for many
// addresses on a bounded worker pool.
package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/vpbank/snmp_diode/pkg/snmpdiode/config"
)

// ─────────────────────────────────────────────────────────────────────────────
// Session factory: DeviceConfig → *gosnmp.GoSNMP
// ─────────────────────────────────────────────────────────────────────────────

// NewSession creates and connects a gosnmp session for the given device
// configuration. The caller is responsible for closing session.Conn.
func NewSession(ctx context.Context, cfg config.DeviceConfig) (*gosnmp.GoSNMP, error) {
	g := &gosnmp.GoSNMP{
		Context:            ctx,
		Target:             cfg.IP,
		Port:               uint16(cfg.Port),
		Transport:          "udp",
		Timeout:            cfg.Timeout,
		Retries:            cfg.Retries,
		ExponentialTimeout: cfg.ExponentialTimeout,
		MaxOids:            gosnmp.MaxOids,
		MaxRepetitions:     25,
	}
	if g.Timeout <= 0 {
		g.Timeout = time.Duration(config.DefaultTimeout) * time.Millisecond
	}

	cred := cfg.Credentials
	switch cred.Version {
	case config.V2c:
		g.Version = gosnmp.Version2c
		g.Community = cred.Community
	case config.V3:
		g.Version = gosnmp.Version3
		g.SecurityModel = gosnmp.UserSecurityModel
		g.MsgFlags = snmpv3MsgFlags(cred.Level)
		g.ContextName = cred.ContextName
		g.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 cred.Username,
			AuthenticationProtocol:   mapAuthProto(cred.AuthProtocol),
			AuthenticationPassphrase: cred.AuthPassphrase,
			PrivacyProtocol:          mapPrivProto(cred.PrivProtocol),
			PrivacyPassphrase:        cred.PrivPassphrase,
		}
	default:
		return nil, fmt.Errorf("unsupported SNMP version %s", cred.Version)
	}

	if err := g.Connect(); err != nil {
		return nil, fmt.Errorf("snmp connect %s:%d: %w", cfg.IP, cfg.Port, err)
	}
	return g, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// SNMPv3 helpers
// ─────────────────────────────────────────────────────────────────────────────

func snmpv3MsgFlags(level config.SecLevel) gosnmp.SnmpV3MsgFlags {
	switch level {
	case config.AuthPriv:
		return gosnmp.AuthPriv
	case config.AuthNoPriv:
		return gosnmp.AuthNoPriv
	default:
		return gosnmp.NoAuthNoPriv
	}
}

func mapAuthProto(s string) gosnmp.SnmpV3AuthProtocol {
	switch s {
	case "md5":
		return gosnmp.MD5
	case "sha":
		return gosnmp.SHA
	case "sha224":
		return gosnmp.SHA224
	case "sha256":
		return gosnmp.SHA256
	case "sha384":
		return gosnmp.SHA384
	case "sha512":
		return gosnmp.SHA512
	default:
		return gosnmp.NoAuth
	}
}

func mapPrivProto(s string) gosnmp.SnmpV3PrivProtocol {
	switch s {
	case "des":
		return gosnmp.DES
	case "aes":
		return gosnmp.AES
	case "aes192":
		return gosnmp.AES192
	case "aes256":
		return gosnmp.AES256
	case "aes192c":
		return gosnmp.AES192C
	case "aes256c":
		return gosnmp.AES256C
	default:
		return gosnmp.NoPriv
	}
}
