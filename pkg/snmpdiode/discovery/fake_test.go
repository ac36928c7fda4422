package discovery_test

import (
	"errors"
	"math/rand"

	"github.com/vpbank/snmp_diode/pkg/snmpdiode/discovery"
	"github.com/vpbank/snmp_diode/pkg/snmpdiode/poller"
	"github.com/vpbank/snmp_diode/snmp/decoder"
)

// fakeAgent is an in-memory QueryClient. Values are already rendered the way
// poller.Client renders them.
type fakeAgent struct {
	scalars map[string]string
	tables  map[string][]poller.Row
	failOn  string // walk root or scalar OID that returns a transport error
	walked  []string
	hex     []string // roots requested through WalkHex
	closed  bool
}

var errTimeout = errors.New("request timeout (after 1 retries)")

func (f *fakeAgent) Get(oid string) (string, error) {
	if oid == f.failOn {
		return "", errTimeout
	}
	v, ok := f.scalars[oid]
	if !ok {
		return "", decoder.ErrNoValue
	}
	return v, nil
}

func (f *fakeAgent) Walk(root string) ([]poller.Row, error) {
	f.walked = append(f.walked, root)
	if root == f.failOn {
		return nil, errTimeout
	}
	return f.tables[root], nil
}

// WalkHex serves the same tables; fixture MAC rows are already hex.
func (f *fakeAgent) WalkHex(root string) ([]poller.Row, error) {
	f.hex = append(f.hex, root)
	return f.Walk(root)
}

func (f *fakeAgent) Close() error {
	f.closed = true
	return nil
}

// shuffled returns a copy of the agent with every table in a random order.
func (f *fakeAgent) shuffled(r *rand.Rand) *fakeAgent {
	out := &fakeAgent{scalars: f.scalars, tables: make(map[string][]poller.Row, len(f.tables))}
	for root, rows := range f.tables {
		cp := append([]poller.Row(nil), rows...)
		r.Shuffle(len(cp), func(i, j int) { cp[i], cp[j] = cp[j], cp[i] })
		out.tables[root] = cp
	}
	return out
}

func row(root, index, value string) poller.Row {
	return poller.Row{OID: root + "." + index, Value: value}
}

// singleInterfaceAgent is one uplink carrying one address.
func singleInterfaceAgent() *fakeAgent {
	return &fakeAgent{
		scalars: map[string]string{
			discovery.OIDSysName:     `"edge-rtr1"`,
			discovery.OIDSysObjectID: "1.3.6.1.4.1.9.1.1208",
			discovery.OIDSysLocation: `"dc-hanoi"`,
		},
		tables: map[string][]poller.Row{
			discovery.OIDIfDescr:       {row(discovery.OIDIfDescr, "1", `"GigabitEthernet0/1"`)},
			discovery.OIDIfPhysAddress: {row(discovery.OIDIfPhysAddress, "1", `"00 11 22 33 44 55 "`)},
			discovery.OIDIfAdminStatus: {row(discovery.OIDIfAdminStatus, "1", "1")},
			discovery.OIDIPAdEntAddr:   {row(discovery.OIDIPAdEntAddr, "192.168.1.10", "192.168.1.10")},
			discovery.OIDIPAdEntIfIdx:  {row(discovery.OIDIPAdEntIfIdx, "192.168.1.10", "1")},
			discovery.OIDIPAdEntMask:   {row(discovery.OIDIPAdEntMask, "192.168.1.10", "255.255.255.0")},
			discovery.OIDIfAlias:       {row(discovery.OIDIfAlias, "1", `"uplink"`)},
		},
	}
}

// switchAgent has several interfaces, multiple addresses per interface and
// secondary rows for indices the name table never lists.
func switchAgent() *fakeAgent {
	d := discovery.OIDIfDescr
	m := discovery.OIDIfPhysAddress
	s := discovery.OIDIfAdminStatus
	a := discovery.OIDIPAdEntAddr
	x := discovery.OIDIPAdEntIfIdx
	n := discovery.OIDIPAdEntMask
	l := discovery.OIDIfAlias
	return &fakeAgent{
		scalars: map[string]string{
			discovery.OIDSysName:     `"access-sw7"`,
			discovery.OIDSysObjectID: ".1.3.6.1.4.1.2636.1.1.1.2.29",
		},
		tables: map[string][]poller.Row{
			d: {
				row(d, "1", `"ge-0/0/0"`),
				row(d, "2", `"ge-0/0/1"`),
				row(d, "3", `"vlan.10"`),
				row(d, "10", `"lo0"`),
			},
			m: {
				row(m, "1", `"00 1A 2B 3C 4D 5E "`),
				row(m, "2", `"00 1A 2B 3C 4D 5F "`),
				row(m, "3", `""`),
				row(m, "99", `"DE AD BE EF 00 01 "`),
			},
			s: {
				row(s, "1", "1"),
				row(s, "2", "2"),
				row(s, "3", "3"),
				row(s, "10", "1"),
				row(s, "42", "1"),
			},
			a: {
				row(a, "10.0.0.9", "10.0.0.9"),
				row(a, "10.0.0.5", "10.0.0.5"),
				row(a, "127.0.0.1", "127.0.0.1"),
				row(a, "172.16.0.1", "172.16.0.1"),
				row(a, "192.0.2.1", "192.0.2.1"),
			},
			x: {
				row(x, "10.0.0.9", "3"),
				row(x, "10.0.0.5", "3"),
				row(x, "127.0.0.1", "10"),
				row(x, "172.16.0.1", "77"),
				row(x, "192.0.2.1", "1"),
			},
			n: {
				row(n, "10.0.0.9", "255.255.255.252"),
				row(n, "10.0.0.5", "255.255.255.0"),
				row(n, "127.0.0.1", "255.0.0.0"),
				row(n, "172.16.0.1", "255.255.0.0"),
			},
			l: {
				row(l, "1", `"to core"`),
				row(l, "2", `""`),
				row(l, "55", `"ghost"`),
			},
		},
	}
}
