// Package decoder renders raw gosnmp PDU values into the printable text form
// the discovery engine joins on. The output follows the net-snmp "sprint"
// conventions: printable octet strings are quoted, binary octet strings are
// quoted upper-case hex octets each followed by a space, integers are decimal,
// IpAddress is dotted-decimal and OIDs carry no leading dot. Columns holding
// raw octets (ifPhysAddress) go through RenderHex, which never guesses text.
package decoder

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gosnmp/gosnmp"
)

// ErrNoValue is returned by Render for exception PDUs (NoSuchObject,
// NoSuchInstance, EndOfMibView) and Null, which carry no value.
var ErrNoValue = errors.New("decoder: pdu carries no value")

// ─────────────────────────────────────────────────────────────────────────────
// SNMP PDU Type → String
// ─────────────────────────────────────────────────────────────────────────────

// PDUTypeString returns the human-readable name for a gosnmp Asn1BER type tag.
func PDUTypeString(t gosnmp.Asn1BER) string {
	switch t {
	case gosnmp.Integer:
		return "Integer"
	case gosnmp.BitString:
		return "BitString"
	case gosnmp.OctetString:
		return "OctetString"
	case gosnmp.Null:
		return "Null"
	case gosnmp.ObjectIdentifier:
		return "ObjectIdentifier"
	case gosnmp.ObjectDescription:
		return "ObjectDescription"
	case gosnmp.IPAddress:
		return "IpAddress"
	case gosnmp.Counter32:
		return "Counter32"
	case gosnmp.Gauge32:
		return "Gauge32"
	case gosnmp.TimeTicks:
		return "TimeTicks"
	case gosnmp.Opaque:
		return "Opaque"
	case gosnmp.NsapAddress:
		return "NsapAddress"
	case gosnmp.Counter64:
		return "Counter64"
	case gosnmp.Uinteger32:
		return "Unsigned32"
	case gosnmp.OpaqueFloat:
		return "OpaqueFloat"
	case gosnmp.OpaqueDouble:
		return "OpaqueDouble"
	case gosnmp.NoSuchObject:
		return "NoSuchObject"
	case gosnmp.NoSuchInstance:
		return "NoSuchInstance"
	case gosnmp.EndOfMibView:
		return "EndOfMibView"
	default:
		return fmt.Sprintf("Unknown(0x%02X)", uint8(t))
	}
}

// IsErrorType returns true when the PDU type signals an SNMP retrieval error
// rather than an actual value. Callers should skip these varbinds.
func IsErrorType(t gosnmp.Asn1BER) bool {
	return t == gosnmp.NoSuchObject || t == gosnmp.NoSuchInstance || t == gosnmp.EndOfMibView || t == gosnmp.Null
}

// ─────────────────────────────────────────────────────────────────────────────
// Rendering
// ─────────────────────────────────────────────────────────────────────────────

// Render converts one PDU value to its printable text form. Exception PDUs
// return ErrNoValue so that walkers can skip them.
func Render(pdu gosnmp.SnmpPDU) (string, error) {
	if IsErrorType(pdu.Type) {
		return "", fmt.Errorf("%w: %s is %s", ErrNoValue, NormaliseOID(pdu.Name), PDUTypeString(pdu.Type))
	}

	switch pdu.Type {
	case gosnmp.Integer:
		v, err := toInt64(pdu.Value)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(v, 10), nil

	case gosnmp.Counter32, gosnmp.Gauge32, gosnmp.TimeTicks,
		gosnmp.Uinteger32, gosnmp.Counter64:
		v, err := toUint64(pdu.Value)
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(v, 10), nil

	case gosnmp.OctetString, gosnmp.ObjectDescription, gosnmp.Opaque, gosnmp.BitString:
		return renderOctets(toBytes(pdu.Value)), nil

	case gosnmp.ObjectIdentifier:
		return toOIDString(pdu.Value), nil

	case gosnmp.IPAddress:
		return toIPString(pdu.Value), nil

	case gosnmp.OpaqueFloat:
		if f, ok := pdu.Value.(float32); ok {
			return strconv.FormatFloat(float64(f), 'f', -1, 32), nil
		}
		return fmt.Sprintf("%v", pdu.Value), nil

	case gosnmp.OpaqueDouble:
		if f, ok := pdu.Value.(float64); ok {
			return strconv.FormatFloat(f, 'f', -1, 64), nil
		}
		return fmt.Sprintf("%v", pdu.Value), nil

	default:
		if b, ok := pdu.Value.([]byte); ok {
			return renderOctets(b), nil
		}
		return fmt.Sprintf("%v", pdu.Value), nil
	}
}

// RenderHex is Render for columns whose octet strings are binary by
// definition, such as ifPhysAddress: every octet is rendered as spaced hex,
// including trailing NULs and bytes that happen to be printable. Non-octet
// types render as in Render.
func RenderHex(pdu gosnmp.SnmpPDU) (string, error) {
	switch pdu.Type {
	case gosnmp.OctetString, gosnmp.Opaque, gosnmp.BitString:
		return hexOctets(toBytes(pdu.Value)), nil
	default:
		return Render(pdu)
	}
}

// NormaliseOID strips a leading dot and any whitespace from an OID string.
// All OIDs handed to the discovery engine are in the no-leading-dot form.
func NormaliseOID(oid string) string {
	oid = strings.TrimSpace(oid)
	return strings.TrimPrefix(oid, ".")
}

// ─────────────────────────────────────────────────────────────────────────────
// Low-level conversion helpers
// ─────────────────────────────────────────────────────────────────────────────

// renderOctets quotes text (valid UTF-8 without control characters) and falls
// back to spaced hex for anything else. Trailing NULs that some agents append
// to DisplayStrings are dropped, but an all-NUL value is still rendered as hex.
func renderOctets(b []byte) string {
	if len(b) == 0 {
		return `""`
	}
	text := strings.TrimRight(string(b), "\x00")
	if text != "" && isText(text) {
		return `"` + text + `"`
	}
	return hexOctets(b)
}

// hexOctets renders b as quoted upper-case hex octets, each followed by a
// space: `"00 1A 2B "`. An empty slice renders as `""`.
func hexOctets(b []byte) string {
	if len(b) == 0 {
		return `""`
	}
	var sb strings.Builder
	sb.Grow(len(b)*3 + 2)
	sb.WriteByte('"')
	for _, octet := range b {
		fmt.Fprintf(&sb, "%02X ", octet)
	}
	sb.WriteByte('"')
	return sb.String()
}

func isText(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

func toBytes(v interface{}) []byte {
	switch x := v.(type) {
	case []byte:
		return x
	case string:
		return []byte(x)
	case nil:
		return nil
	default:
		return []byte(fmt.Sprintf("%v", v))
	}
}

// toInt64 converts the raw gosnmp value to int64.
// gosnmp returns integers as int / int32 / int64 depending on the PDU.
func toInt64(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	default:
		return 0, fmt.Errorf("decoder: cannot convert %T to int64", v)
	}
}

// toUint64 converts the raw gosnmp value to uint64.
func toUint64(v interface{}) (uint64, error) {
	switch x := v.(type) {
	case int:
		if x < 0 {
			return 0, fmt.Errorf("decoder: negative value %d cannot be converted to uint64", x)
		}
		return uint64(x), nil
	case int64:
		if x < 0 {
			return 0, fmt.Errorf("decoder: negative value %d cannot be converted to uint64", x)
		}
		return uint64(x), nil
	case uint:
		return uint64(x), nil
	case uint32:
		return uint64(x), nil
	case uint64:
		return x, nil
	default:
		return 0, fmt.Errorf("decoder: cannot convert %T to uint64", v)
	}
}

// toOIDString returns the dotted-decimal OID string. gosnmp already returns
// ObjectIdentifier values as strings with a leading dot.
func toOIDString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return NormaliseOID(x)
	case []byte:
		return NormaliseOID(string(x))
	default:
		return fmt.Sprintf("%v", v)
	}
}

// toIPString converts an IpAddress value (4-byte slice or string) to dotted-
// decimal notation, e.g. "192.168.1.1".
func toIPString(v interface{}) string {
	switch x := v.(type) {
	case string:
		if ip := net.ParseIP(x); ip != nil {
			return x
		}
		if b := []byte(x); len(b) == 4 {
			return net.IP(b).String()
		}
		return x
	case []byte:
		if len(x) == 4 || len(x) == 16 {
			return net.IP(x).String()
		}
		return fmt.Sprintf("%x", x)
	default:
		return fmt.Sprintf("%v", v)
	}
}
