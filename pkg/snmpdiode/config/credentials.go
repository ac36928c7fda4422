package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is wrapped by every configuration validation failure. Errors
// carrying it are fatal before any discovery is attempted.
var ErrInvalid = errors.New("invalid configuration")

// ─────────────────────────────────────────────────────────────────────────────
// Version
// ─────────────────────────────────────────────────────────────────────────────

// Version is the SNMP protocol version used for a target.
type Version int

const (
	V2c Version = iota + 1
	V3
)

func (v Version) String() string {
	switch v {
	case V2c:
		return "2c"
	case V3:
		return "3"
	default:
		return fmt.Sprintf("Version(%d)", int(v))
	}
}

// ParseVersion accepts "2", "2c", "v2c", "3" and "v3".
func ParseVersion(s string) (Version, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "2", "2c", "v2c":
		return V2c, nil
	case "3", "v3":
		return V3, nil
	default:
		return 0, fmt.Errorf("%w: unsupported SNMP version %q (expected 2, v2c or 3)", ErrInvalid, s)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// SecLevel
// ─────────────────────────────────────────────────────────────────────────────

// SecLevel is the SNMPv3 USM security level.
type SecLevel int

const (
	NoAuthNoPriv SecLevel = iota + 1
	AuthNoPriv
	AuthPriv
)

func (l SecLevel) String() string {
	switch l {
	case NoAuthNoPriv:
		return "noAuthNoPriv"
	case AuthNoPriv:
		return "authNoPriv"
	case AuthPriv:
		return "authPriv"
	default:
		return fmt.Sprintf("SecLevel(%d)", int(l))
	}
}

// ParseSecLevel accepts the net-snmp spellings, case-insensitively.
func ParseSecLevel(s string) (SecLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "noauthnopriv":
		return NoAuthNoPriv, nil
	case "authnopriv":
		return AuthNoPriv, nil
	case "authpriv":
		return AuthPriv, nil
	default:
		return 0, fmt.Errorf("%w: unsupported security level %q (expected noAuthNoPriv, authNoPriv or authPriv)", ErrInvalid, s)
	}
}

var (
	authProtocols = map[string]bool{"md5": true, "sha": true, "sha224": true, "sha256": true, "sha384": true, "sha512": true}
	privProtocols = map[string]bool{"des": true, "aes": true, "aes192": true, "aes256": true, "aes192c": true, "aes256c": true}
)

// ─────────────────────────────────────────────────────────────────────────────
// Credentials
// ─────────────────────────────────────────────────────────────────────────────

// Credentials is the opaque, pre-validated descriptor handed to the session
// factory. Which fields are meaningful is fixed by Version and Level; a value
// returned by NewCredentials never needs re-checking downstream.
type Credentials struct {
	Version Version

	// Community is the v2c community string.
	Community string

	// Level and the fields below apply to v3 only.
	Level          SecLevel
	Username       string
	AuthProtocol   string // md5, sha, sha224, sha256, sha384, sha512
	AuthPassphrase string
	PrivProtocol   string // des, aes, aes192, aes256, aes192c, aes256c
	PrivPassphrase string
	ContextName    string
}

// NewCredentials builds Credentials from a resolved TargetSpec and validates
// the version × security-level combination.
func NewCredentials(s TargetSpec) (Credentials, error) {
	version, err := ParseVersion(s.Version)
	if err != nil {
		return Credentials{}, err
	}

	c := Credentials{Version: version}
	switch version {
	case V2c:
		c.Community = s.Community
	case V3:
		c.Username = s.Username
		c.AuthProtocol = strings.ToLower(s.AuthProtocol)
		c.AuthPassphrase = s.AuthPassphrase
		c.PrivProtocol = strings.ToLower(s.PrivProtocol)
		c.PrivPassphrase = s.PrivPassphrase
		c.ContextName = s.ContextName
		if s.SecurityLevel != "" {
			if c.Level, err = ParseSecLevel(s.SecurityLevel); err != nil {
				return Credentials{}, err
			}
		} else if c.Level, err = inferLevel(c); err != nil {
			return Credentials{}, err
		}
	}
	if err := c.Validate(); err != nil {
		return Credentials{}, err
	}
	return c, nil
}

// Validate reports whether the combination of fields is usable.
func (c Credentials) Validate() error {
	switch c.Version {
	case V2c:
		if c.Community == "" {
			return fmt.Errorf("%w: SNMP v2c requires a community string", ErrInvalid)
		}
		return nil
	case V3:
		return c.validateV3()
	default:
		return fmt.Errorf("%w: SNMP version not set", ErrInvalid)
	}
}

func (c Credentials) validateV3() error {
	if c.Username == "" {
		return fmt.Errorf("%w: SNMP v3 requires a username", ErrInvalid)
	}
	switch c.Level {
	case NoAuthNoPriv:
		return nil
	case AuthNoPriv, AuthPriv:
	default:
		return fmt.Errorf("%w: SNMP v3 security level not set", ErrInvalid)
	}

	if !authProtocols[c.AuthProtocol] {
		return fmt.Errorf("%w: security level %s requires an authentication protocol, got %q", ErrInvalid, c.Level, c.AuthProtocol)
	}
	if c.AuthPassphrase == "" {
		return fmt.Errorf("%w: security level %s requires an authentication passphrase", ErrInvalid, c.Level)
	}
	if c.Level == AuthNoPriv {
		return nil
	}
	if !privProtocols[c.PrivProtocol] {
		return fmt.Errorf("%w: security level %s requires a privacy protocol, got %q", ErrInvalid, c.Level, c.PrivProtocol)
	}
	if c.PrivPassphrase == "" {
		return fmt.Errorf("%w: security level %s requires a privacy passphrase", ErrInvalid, c.Level)
	}
	return nil
}

// inferLevel derives the security level from the configured protocols when
// the operator did not name one.
func inferLevel(c Credentials) (SecLevel, error) {
	hasAuth := c.AuthProtocol != "" && c.AuthProtocol != "noauth"
	hasPriv := c.PrivProtocol != "" && c.PrivProtocol != "nopriv"
	switch {
	case hasAuth && hasPriv:
		return AuthPriv, nil
	case hasAuth:
		return AuthNoPriv, nil
	case hasPriv:
		return 0, fmt.Errorf("%w: SNMP v3 privacy requires authentication", ErrInvalid)
	default:
		return NoAuthNoPriv, nil
	}
}
