// Package config provides target and credential configuration for SNMP Diode.
//
// Targets come from up to three layers, highest priority first:
//
//	command-line flags         → one ad-hoc target (address or network)
//	YAML file (-config.file)   → defaults block + list of targets
//	environment variables      → secrets and fallbacks
//
// Every layer is expressed as a TargetSpec. Resolve merges the layers, applies
// hard-coded fallbacks, and validates credentials once, producing Targets that
// the rest of the application uses without further checks.
package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Hard-coded fallbacks applied when no layer sets a value.
const (
	DefaultPort    = 161
	DefaultTimeout = 3000 // milliseconds
	DefaultRetries = 1
	DefaultVersion = "2c"
)

// ─────────────────────────────────────────────────────────────────────────────
// TargetSpec
// ─────────────────────────────────────────────────────────────────────────────

// TargetSpec is the raw, unvalidated form of a target. It maps 1-to-1 with the
// YAML schema and is also filled from flags and the environment. Zero values
// mean "not set" and are filled from lower-priority layers.
type TargetSpec struct {
	Address string `yaml:"address"`
	Network string `yaml:"network"`

	Port               int  `yaml:"port"`
	Timeout            int  `yaml:"timeout"` // milliseconds
	Retries            int  `yaml:"retries"`
	ExponentialTimeout bool `yaml:"exponential_timeout"`

	Version        string `yaml:"version"`
	Community      string `yaml:"community"`
	SecurityLevel  string `yaml:"security_level"`
	Username       string `yaml:"username"`
	AuthProtocol   string `yaml:"authentication_protocol"`
	AuthPassphrase string `yaml:"authentication_passphrase"`
	PrivProtocol   string `yaml:"privacy_protocol"`
	PrivPassphrase string `yaml:"privacy_passphrase"`
	ContextName    string `yaml:"context_name"`

	Site             string `yaml:"site"`
	Role             string `yaml:"role"`
	Platform         string `yaml:"platform"`
	SiteFromLocation bool   `yaml:"site_from_location"`
}

// HasSelection reports whether the spec names an address or a network.
func (s TargetSpec) HasSelection() bool {
	return s.Address != "" || s.Network != ""
}

// merge fills zero fields in dst with values from src. Address and Network
// are never inherited: a defaults layer cannot select targets.
func merge(dst, src TargetSpec) TargetSpec {
	if dst.Port == 0 {
		dst.Port = src.Port
	}
	if dst.Timeout == 0 {
		dst.Timeout = src.Timeout
	}
	if dst.Retries == 0 {
		dst.Retries = src.Retries
	}
	if !dst.ExponentialTimeout {
		dst.ExponentialTimeout = src.ExponentialTimeout
	}
	if dst.Version == "" {
		dst.Version = src.Version
	}
	if dst.Community == "" {
		dst.Community = src.Community
	}
	if dst.SecurityLevel == "" {
		dst.SecurityLevel = src.SecurityLevel
	}
	if dst.Username == "" {
		dst.Username = src.Username
	}
	if dst.AuthProtocol == "" {
		dst.AuthProtocol = src.AuthProtocol
	}
	if dst.AuthPassphrase == "" {
		dst.AuthPassphrase = src.AuthPassphrase
	}
	if dst.PrivProtocol == "" {
		dst.PrivProtocol = src.PrivProtocol
	}
	if dst.PrivPassphrase == "" {
		dst.PrivPassphrase = src.PrivPassphrase
	}
	if dst.ContextName == "" {
		dst.ContextName = src.ContextName
	}
	if dst.Site == "" {
		dst.Site = src.Site
	}
	if dst.Role == "" {
		dst.Role = src.Role
	}
	if dst.Platform == "" {
		dst.Platform = src.Platform
	}
	if !dst.SiteFromLocation {
		dst.SiteFromLocation = src.SiteFromLocation
	}
	return dst
}

// ─────────────────────────────────────────────────────────────────────────────
// Environment
// ─────────────────────────────────────────────────────────────────────────────

// SpecFromEnv reads the lowest-priority layer from environment variables.
// Secrets belong here rather than on the command line.
//
//	SNMP_VERSION, SNMP_COMMUNITY, SNMP_V3_USERNAME, SNMP_V3_SECURITY_LEVEL,
//	SNMP_V3_AUTH_PROTOCOL, SNMP_V3_AUTH_PASSPHRASE,
//	SNMP_V3_PRIV_PROTOCOL, SNMP_V3_PRIV_PASSPHRASE
func SpecFromEnv() TargetSpec {
	return TargetSpec{
		Version:        os.Getenv("SNMP_VERSION"),
		Community:      os.Getenv("SNMP_COMMUNITY"),
		Username:       os.Getenv("SNMP_V3_USERNAME"),
		SecurityLevel:  os.Getenv("SNMP_V3_SECURITY_LEVEL"),
		AuthProtocol:   os.Getenv("SNMP_V3_AUTH_PROTOCOL"),
		AuthPassphrase: os.Getenv("SNMP_V3_AUTH_PASSPHRASE"),
		PrivProtocol:   os.Getenv("SNMP_V3_PRIV_PROTOCOL"),
		PrivPassphrase: os.Getenv("SNMP_V3_PRIV_PASSPHRASE"),
	}
}

// EnvOr returns the environment variable key, or def when it is unset or empty.
func EnvOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ─────────────────────────────────────────────────────────────────────────────
// YAML file
// ─────────────────────────────────────────────────────────────────────────────

// File is the decoded form of a targets YAML file:
//
//	defaults:
//	  version: 2c
//	  community: public
//	  site: dc1
//	targets:
//	  - address: 192.0.2.1
//	    role: core-switch
//	  - network: 198.51.100.0/28
//	    version: 3
//	    security_level: authPriv
//	    username: diode
//	    authentication_protocol: sha
//	    authentication_passphrase: secret1
//	    privacy_protocol: aes
//	    privacy_passphrase: secret2
type File struct {
	Defaults TargetSpec   `yaml:"defaults"`
	Targets  []TargetSpec `yaml:"targets"`
}

// LoadFile reads and strictly decodes a targets file. Unknown keys are
// rejected so that typos in credential fields do not silently fall back.
func LoadFile(path string, logger *slog.Logger) (*File, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalid, path, err)
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalid, path, err)
	}
	logger.Debug("config: loaded targets file", "file", path, "targets", len(f.Targets))
	return &f, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Resolve
// ─────────────────────────────────────────────────────────────────────────────

// Resolve merges the flag, file and environment layers into validated
// Targets. file may be nil. When cli selects an address or network it becomes
// an additional target ahead of the file's own targets.
//
// All problems are accumulated and returned together so that operators see
// every mistake at once.
func Resolve(cli TargetSpec, file *File, env TargetSpec) ([]Target, error) {
	var defaults TargetSpec
	var specs []TargetSpec
	if file != nil {
		defaults = file.Defaults
	}
	if cli.HasSelection() {
		specs = append(specs, cli)
	}
	if file != nil {
		for _, s := range file.Targets {
			// Flag-level credentials and labels apply to file targets too,
			// below the target's own values.
			specs = append(specs, merge(s, cli))
		}
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: provide either a target address or a target network", ErrInvalid)
	}

	var (
		targets []Target
		errs    []string
	)
	for i, s := range specs {
		t, err := resolveTarget(merge(merge(s, defaults), env))
		if err != nil {
			errs = append(errs, fmt.Sprintf("target %d (%s): %v", i+1, s.label(), err))
			continue
		}
		targets = append(targets, t)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %d target error(s):\n  %s", ErrInvalid, len(errs), strings.Join(errs, "\n  "))
	}
	return targets, nil
}

func (s TargetSpec) label() string {
	switch {
	case s.Address != "" && s.Network != "":
		return s.Address + "+" + s.Network
	case s.Address != "":
		return s.Address
	case s.Network != "":
		return s.Network
	default:
		return "no address"
	}
}

// resolveTarget applies hard-coded fallbacks to a fully merged spec and
// validates it.
func resolveTarget(s TargetSpec) (Target, error) {
	if s.Address != "" && s.Network != "" {
		return Target{}, fmt.Errorf("%w: address and network are mutually exclusive", ErrInvalid)
	}
	if !s.HasSelection() {
		return Target{}, fmt.Errorf("%w: target has neither address nor network", ErrInvalid)
	}

	if s.Port == 0 {
		s.Port = DefaultPort
	}
	if s.Port < 0 || s.Port > 65535 {
		return Target{}, fmt.Errorf("%w: port %d out of range", ErrInvalid, s.Port)
	}
	if s.Timeout == 0 {
		s.Timeout = DefaultTimeout
	}
	if s.Retries == 0 {
		s.Retries = DefaultRetries
	}
	if s.Version == "" {
		s.Version = DefaultVersion
	}

	creds, err := NewCredentials(s)
	if err != nil {
		return Target{}, err
	}

	t := Target{
		Address: s.Address,
		Network: s.Network,
		Device: DeviceConfig{
			Port:               s.Port,
			Timeout:            time.Duration(s.Timeout) * time.Millisecond,
			Retries:            s.Retries,
			ExponentialTimeout: s.ExponentialTimeout,
			Credentials:        creds,
			Site:               s.Site,
			Role:               s.Role,
			Platform:           s.Platform,
			SiteFromLocation:   s.SiteFromLocation,
		},
	}
	// Parse the selection now so malformed addresses are configuration errors.
	if _, err := t.Addresses(); err != nil {
		return Target{}, err
	}
	return t, nil
}

// noopWriter discards log output.
type noopWriter struct{}

func (noopWriter) Write(b []byte) (int, error) { return len(b), nil }
