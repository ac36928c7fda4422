package decoder_test

import (
	"errors"
	"testing"

	"github.com/gosnmp/gosnmp"
	"github.com/vpbank/snmp_diode/snmp/decoder"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		pdu  gosnmp.SnmpPDU
		want string
	}{
		{
			name: "integer",
			pdu:  gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.2.2.1.7.1", Type: gosnmp.Integer, Value: 1},
			want: "1",
		},
		{
			name: "gauge",
			pdu:  gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.2.2.1.5.1", Type: gosnmp.Gauge32, Value: uint(1000000000)},
			want: "1000000000",
		},
		{
			name: "counter64",
			pdu:  gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.31.1.1.1.6.1", Type: gosnmp.Counter64, Value: uint64(18446744073709551615)},
			want: "18446744073709551615",
		},
		{
			name: "printable octet string is quoted",
			pdu:  gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.2.2.1.2.1", Type: gosnmp.OctetString, Value: []byte("GigabitEthernet0/1")},
			want: `"GigabitEthernet0/1"`,
		},
		{
			name: "trailing NULs dropped from text",
			pdu:  gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.1.5.0", Type: gosnmp.OctetString, Value: []byte("core-sw1\x00\x00")},
			want: `"core-sw1"`,
		},
		{
			name: "binary octet string is spaced hex",
			pdu:  gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.2.2.1.6.1", Type: gosnmp.OctetString, Value: []byte{0x00, 0x1a, 0x2b, 0x3c, 0x4d, 0x5e}},
			want: `"00 1A 2B 3C 4D 5E "`,
		},
		{
			name: "all-zero MAC stays hex",
			pdu:  gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.2.2.1.6.2", Type: gosnmp.OctetString, Value: []byte{0, 0, 0, 0, 0, 0}},
			want: `"00 00 00 00 00 00 "`,
		},
		{
			name: "utf-8 octet string is text",
			pdu:  gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.31.1.1.1.18.1", Type: gosnmp.OctetString, Value: []byte("Cổng uplink")},
			want: `"Cổng uplink"`,
		},
		{
			name: "invalid utf-8 is hex",
			pdu:  gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.31.1.1.1.18.2", Type: gosnmp.OctetString, Value: []byte{0x43, 0xe1, 0xbb}},
			want: `"43 E1 BB "`,
		},
		{
			name: "DEL is a control character",
			pdu:  gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.31.1.1.1.18.3", Type: gosnmp.OctetString, Value: []byte{0x61, 0x7f}},
			want: `"61 7F "`,
		},
		{
			name: "empty octet string",
			pdu:  gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.2.2.1.6.3", Type: gosnmp.OctetString, Value: []byte{}},
			want: `""`,
		},
		{
			name: "object identifier loses leading dot",
			pdu:  gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.1.2.0", Type: gosnmp.ObjectIdentifier, Value: ".1.3.6.1.4.1.9.1.1208"},
			want: "1.3.6.1.4.1.9.1.1208",
		},
		{
			name: "ip address string",
			pdu:  gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.4.20.1.1.10.0.0.5", Type: gosnmp.IPAddress, Value: "10.0.0.5"},
			want: "10.0.0.5",
		},
		{
			name: "ip address bytes",
			pdu:  gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.4.20.1.3.10.0.0.5", Type: gosnmp.IPAddress, Value: []byte{255, 255, 255, 0}},
			want: "255.255.255.0",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decoder.Render(tc.pdu)
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			if got != tc.want {
				t.Errorf("Render = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRenderHex(t *testing.T) {
	tests := []struct {
		name  string
		value []byte
		want  string
	}{
		{name: "binary", value: []byte{0x00, 0x1a, 0x2b, 0x3c, 0x4d, 0x5e}, want: `"00 1A 2B 3C 4D 5E "`},
		{name: "printable bytes stay hex", value: []byte("ABCDEF"), want: `"41 42 43 44 45 46 "`},
		{name: "trailing NUL kept", value: []byte{0x41, 0x42, 0x43, 0x44, 0x45, 0x00}, want: `"41 42 43 44 45 00 "`},
		{name: "inner space", value: []byte{0x41, 0x20, 0x42, 0x43, 0x44, 0x45}, want: `"41 20 42 43 44 45 "`},
		{name: "trailing space", value: []byte{0x41, 0x42, 0x43, 0x44, 0x45, 0x20}, want: `"41 42 43 44 45 20 "`},
		{name: "empty", value: []byte{}, want: `""`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decoder.RenderHex(gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.2.2.1.6.1", Type: gosnmp.OctetString, Value: tc.value})
			if err != nil {
				t.Fatalf("RenderHex: %v", err)
			}
			if got != tc.want {
				t.Errorf("RenderHex = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRenderHex_NonOctetFallsBack(t *testing.T) {
	got, err := decoder.RenderHex(gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.2.2.1.7.1", Type: gosnmp.Integer, Value: 2})
	if err != nil || got != "2" {
		t.Errorf("RenderHex = %q, %v, want 2", got, err)
	}
	if _, err := decoder.RenderHex(gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.2.2.1.6.9", Type: gosnmp.NoSuchInstance}); !errors.Is(err, decoder.ErrNoValue) {
		t.Errorf("err = %v, want ErrNoValue", err)
	}
}

func TestRender_ExceptionPDUs(t *testing.T) {
	for _, typ := range []gosnmp.Asn1BER{gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView, gosnmp.Null} {
		_, err := decoder.Render(gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.1.6.0", Type: typ})
		if !errors.Is(err, decoder.ErrNoValue) {
			t.Errorf("%s: err = %v, want ErrNoValue", decoder.PDUTypeString(typ), err)
		}
	}
}

func TestRender_IntegerTypeMismatch(t *testing.T) {
	_, err := decoder.Render(gosnmp.SnmpPDU{Name: ".1.3.6.1.2.1.2.2.1.7.1", Type: gosnmp.Integer, Value: "up"})
	if err == nil {
		t.Fatal("expected error for non-numeric Integer value")
	}
}

func TestPDUTypeString_Unknown(t *testing.T) {
	if got := decoder.PDUTypeString(gosnmp.Asn1BER(0xEE)); got != "Unknown(0xEE)" {
		t.Errorf("PDUTypeString = %q", got)
	}
}

func TestNormaliseOID(t *testing.T) {
	if got := decoder.NormaliseOID("  .1.3.6.1.2.1.1.5.0 "); got != "1.3.6.1.2.1.1.5.0" {
		t.Errorf("NormaliseOID = %q", got)
	}
}
