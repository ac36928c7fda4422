package discovery_test

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"github.com/gosnmp/gosnmp"

	"github.com/vpbank/snmp_diode/models"
	"github.com/vpbank/snmp_diode/pkg/snmpdiode/config"
	"github.com/vpbank/snmp_diode/pkg/snmpdiode/discovery"
	"github.com/vpbank/snmp_diode/pkg/snmpdiode/poller"
)

func engineFor(agent *fakeAgent) *discovery.Engine {
	dial := func(context.Context, config.DeviceConfig) (discovery.QueryClient, error) {
		return agent, nil
	}
	return discovery.New(nil, dial, nil)
}

func TestBuildInterfaces_EndToEnd(t *testing.T) {
	got, err := discovery.BuildInterfaces(singleInterfaceAgent(), nil)
	if err != nil {
		t.Fatalf("BuildInterfaces: %v", err)
	}
	want := []models.Interface{{
		Name:        "GigabitEthernet0/1",
		MACAddress:  "00:11:22:33:44:55",
		Enabled:     true,
		Address:     "192.168.1.0/24",
		Description: "uplink",
	}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got  %+v\nwant %+v", got, want)
	}
}

func TestBuildInterfaces_WalkOrder(t *testing.T) {
	agent := singleInterfaceAgent()
	if _, err := discovery.BuildInterfaces(agent, nil); err != nil {
		t.Fatalf("BuildInterfaces: %v", err)
	}
	want := []string{
		discovery.OIDIfDescr,
		discovery.OIDIfPhysAddress,
		discovery.OIDIfAdminStatus,
		discovery.OIDIPAdEntAddr,
		discovery.OIDIPAdEntIfIdx,
		discovery.OIDIPAdEntMask,
		discovery.OIDIfAlias,
	}
	if !reflect.DeepEqual(agent.walked, want) {
		t.Errorf("walk order = %v, want %v", agent.walked, want)
	}
	if !reflect.DeepEqual(agent.hex, []string{discovery.OIDIfPhysAddress}) {
		t.Errorf("hex walks = %v, want only ifPhysAddress", agent.hex)
	}
}

func TestBuildInterfaces_Switch(t *testing.T) {
	got, err := discovery.BuildInterfaces(switchAgent(), nil)
	if err != nil {
		t.Fatalf("BuildInterfaces: %v", err)
	}
	want := []models.Interface{
		{Name: "ge-0/0/0", MACAddress: "00:1A:2B:3C:4D:5E", Enabled: true, Description: "to core"},
		{Name: "ge-0/0/1", MACAddress: "00:1A:2B:3C:4D:5F", Enabled: false},
		{Name: "vlan.10", Enabled: false, Address: "10.0.0.0/24"},
		{Name: "lo0", Enabled: true, Address: "127.0.0.0/8"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got\n%+v\nwant\n%+v", got, want)
	}
}

// Rows for indices 99, 42, 77 and 55 never appear in the name table. They
// must vanish without an error and without creating partial interfaces.
func TestBuildInterfaces_JoinDrop(t *testing.T) {
	got, err := discovery.BuildInterfaces(switchAgent(), nil)
	if err != nil {
		t.Fatalf("BuildInterfaces: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d interfaces, want 4", len(got))
	}
	for _, ifc := range got {
		if ifc.Name == "" {
			t.Errorf("partial interface created: %+v", ifc)
		}
		if ifc.MACAddress == "DE:AD:BE:EF:00:01" || ifc.Description == "ghost" || ifc.Address == "172.16.0.0/16" {
			t.Errorf("orphan row joined: %+v", ifc)
		}
	}
}

func TestBuildInterfaces_OnlySecondaryRows(t *testing.T) {
	agent := switchAgent()
	agent.tables[discovery.OIDIfDescr] = nil
	got, err := discovery.BuildInterfaces(agent, nil)
	if err != nil {
		t.Fatalf("BuildInterfaces: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %+v, want no interfaces", got)
	}
}

func TestBuildInterfaces_Idempotent(t *testing.T) {
	base, err := discovery.BuildInterfaces(switchAgent(), nil)
	if err != nil {
		t.Fatalf("BuildInterfaces: %v", err)
	}
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		got, err := discovery.BuildInterfaces(switchAgent().shuffled(r), nil)
		if err != nil {
			t.Fatalf("shuffle %d: %v", i, err)
		}
		if !reflect.DeepEqual(got, base) {
			t.Fatalf("shuffle %d differs:\n%+v\nvs\n%+v", i, got, base)
		}
	}
}

func TestBuildInterfaces_AddressJoin(t *testing.T) {
	d := discovery.OIDIfDescr
	agent := &fakeAgent{tables: map[string][]poller.Row{
		d: {row(d, "3", `"Vlan3"`)},
		discovery.OIDIPAdEntAddr:  {row(discovery.OIDIPAdEntAddr, "10.0.0.5", "10.0.0.5")},
		discovery.OIDIPAdEntIfIdx: {row(discovery.OIDIPAdEntIfIdx, "10.0.0.5", "3")},
		discovery.OIDIPAdEntMask:  {row(discovery.OIDIPAdEntMask, "10.0.0.5", "255.255.255.0")},
	}}
	got, err := discovery.BuildInterfaces(agent, nil)
	if err != nil {
		t.Fatalf("BuildInterfaces: %v", err)
	}
	if len(got) != 1 || got[0].Address != "10.0.0.0/24" {
		t.Errorf("got %+v, want address 10.0.0.0/24", got)
	}
}

// Non-integer indices are dropped, never reported.
func TestBuildInterfaces_NonIntegerIndex(t *testing.T) {
	d := discovery.OIDIfDescr
	s := discovery.OIDIfAdminStatus
	agent := &fakeAgent{tables: map[string][]poller.Row{
		d: {row(d, "1", `"eth0"`), row(d, "abc", `"bogus"`)},
		s: {row(s, "1", "1"), row(s, "1.5", "2")},
		discovery.OIDIPAdEntAddr:  {row(discovery.OIDIPAdEntAddr, "10.1.1.1", "10.1.1.1")},
		discovery.OIDIPAdEntIfIdx: {row(discovery.OIDIPAdEntIfIdx, "10.1.1.1", "one")},
		discovery.OIDIPAdEntMask:  {row(discovery.OIDIPAdEntMask, "10.1.1.1", "255.255.255.0")},
	}}
	got, err := discovery.BuildInterfaces(agent, nil)
	if err != nil {
		t.Fatalf("BuildInterfaces: %v", err)
	}
	want := []models.Interface{{Name: "eth0", Enabled: true}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestBuildInterfaces_MalformedNetmask(t *testing.T) {
	agent := singleInterfaceAgent()
	agent.tables[discovery.OIDIPAdEntMask] = []poller.Row{
		row(discovery.OIDIPAdEntMask, "192.168.1.10", "255.0.255.0"),
	}
	_, err := discovery.BuildInterfaces(agent, nil)
	if !errors.Is(err, discovery.ErrMalformedAddress) {
		t.Errorf("err = %v, want ErrMalformedAddress", err)
	}
}

func TestBuildInterfaces_WalkFailure(t *testing.T) {
	for _, root := range []string{discovery.OIDIfDescr, discovery.OIDIPAdEntMask, discovery.OIDIfAlias} {
		agent := singleInterfaceAgent()
		agent.failOn = root
		if _, err := discovery.BuildInterfaces(agent, nil); !errors.Is(err, errTimeout) {
			t.Errorf("fail on %s: err = %v, want timeout", root, err)
		}
	}
}

func TestEngineDiscover(t *testing.T) {
	agent := singleInterfaceAgent()
	cfg := config.DeviceConfig{IP: "192.0.2.10", Site: "hq", Role: "router", Platform: "ios"}

	dev, err := engineFor(agent).Discover(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if !agent.closed {
		t.Error("session not closed")
	}
	if dev.Address != "192.0.2.10" || dev.Name != "edge-rtr1" {
		t.Errorf("identity = %q %q", dev.Address, dev.Name)
	}
	if dev.Manufacturer != "Cisco" || dev.DeviceType != "catalyst2960S-48FPD" {
		t.Errorf("catalog = %q %q", dev.Manufacturer, dev.DeviceType)
	}
	if dev.Site != "hq" || dev.Role != "router" || dev.Platform != "ios" {
		t.Errorf("target metadata = %q %q %q", dev.Site, dev.Role, dev.Platform)
	}
	if dev.Location != "dc-hanoi" {
		t.Errorf("Location = %q", dev.Location)
	}
	if len(dev.Interfaces) != 1 {
		t.Errorf("interfaces = %+v", dev.Interfaces)
	}
}

func TestEngineDiscover_Fallbacks(t *testing.T) {
	agent := switchAgent()
	agent.scalars = map[string]string{
		discovery.OIDSysObjectID: "1.3.6.1.4.1.99999.1.1",
		discovery.OIDSysLocation: `"rack 12"`,
	}
	cfg := config.DeviceConfig{IP: "192.0.2.20", SiteFromLocation: true}

	dev, err := engineFor(agent).Discover(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if dev.Name != "192.0.2.20" {
		t.Errorf("Name = %q, want address fallback", dev.Name)
	}
	if dev.Manufacturer != models.Unknown || dev.DeviceType != models.Unknown {
		t.Errorf("catalog = %q %q, want unknown", dev.Manufacturer, dev.DeviceType)
	}
	if dev.Site != "rack 12" {
		t.Errorf("Site = %q, want location", dev.Site)
	}
}

func TestEngineDiscover_Errors(t *testing.T) {
	t.Run("dial", func(t *testing.T) {
		dial := func(context.Context, config.DeviceConfig) (discovery.QueryClient, error) {
			return nil, errTimeout
		}
		_, err := discovery.New(nil, dial, nil).Discover(context.Background(), config.DeviceConfig{IP: "192.0.2.1"})
		if !errors.Is(err, errTimeout) || !strings.Contains(err.Error(), "192.0.2.1") {
			t.Errorf("err = %v", err)
		}
	})
	t.Run("scalar", func(t *testing.T) {
		agent := singleInterfaceAgent()
		agent.failOn = discovery.OIDSysObjectID
		_, err := engineFor(agent).Discover(context.Background(), config.DeviceConfig{IP: "192.0.2.1"})
		if !errors.Is(err, errTimeout) {
			t.Errorf("err = %v", err)
		}
		if !agent.closed {
			t.Error("session not closed after failure")
		}
	})
	t.Run("walk", func(t *testing.T) {
		agent := singleInterfaceAgent()
		agent.failOn = discovery.OIDIfAlias
		_, err := engineFor(agent).Discover(context.Background(), config.DeviceConfig{IP: "192.0.2.1"})
		if !errors.Is(err, errTimeout) || !strings.Contains(err.Error(), "192.0.2.1") {
			t.Errorf("err = %v", err)
		}
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Raw octets through the production client
// ─────────────────────────────────────────────────────────────────────────────

// pduConn is a poller.Conn serving raw gosnmp PDUs per walk root.
type pduConn map[string][]gosnmp.SnmpPDU

func (c pduConn) Get([]string) (*gosnmp.SnmpPacket, error) { return &gosnmp.SnmpPacket{}, nil }

func (c pduConn) BulkWalkAll(root string) ([]gosnmp.SnmpPDU, error) { return c[root], nil }

func octets(root, index string, b []byte) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Name: "." + root + "." + index, Type: gosnmp.OctetString, Value: b}
}

func TestBuildInterfaces_RawOctets(t *testing.T) {
	d := discovery.OIDIfDescr
	m := discovery.OIDIfPhysAddress
	l := discovery.OIDIfAlias
	conn := pduConn{
		d: {
			octets(d, "1", []byte("ge-0/0/1")),
			octets(d, "2", []byte("ge-0/0/2")),
			octets(d, "3", []byte("ge-0/0/3")),
			octets(d, "4", []byte("Giao diện 4")),
		},
		m: {
			octets(m, "1", []byte{0x41, 0x42, 0x43, 0x44, 0x45, 0x00}),
			octets(m, "2", []byte{0x41, 0x20, 0x42, 0x43, 0x44, 0x45}),
			octets(m, "3", []byte{0x41, 0x42, 0x43, 0x44, 0x45, 0x20}),
			octets(m, "4", []byte{0x00, 0x1a, 0x2b, 0x3c, 0x4d, 0x5e}),
		},
		l: {
			octets(l, "1", []byte("Cổng uplink")),
		},
	}
	client := poller.NewClient("192.0.2.1", conn, nil)

	got, err := discovery.BuildInterfaces(client, nil)
	if err != nil {
		t.Fatalf("BuildInterfaces: %v", err)
	}
	want := []models.Interface{
		{Name: "ge-0/0/1", MACAddress: "41:42:43:44:45:00", Description: "Cổng uplink"},
		{Name: "ge-0/0/2", MACAddress: "41:20:42:43:44:45"},
		{Name: "ge-0/0/3", MACAddress: "41:42:43:44:45:20"},
		{Name: "Giao diện 4", MACAddress: "00:1A:2B:3C:4D:5E"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got  %+v\nwant %+v", got, want)
	}
}
