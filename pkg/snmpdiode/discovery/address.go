package discovery

import (
	"net/netip"
	"sort"

	"github.com/vpbank/snmp_diode/pkg/snmpdiode/poller"
)

// addrBuilder is the scratch record for one ipAddrTable entry. It is folded
// into its owning interface and then discarded.
type addrBuilder struct {
	address    string
	ifIndex    uint32
	hasIfIndex bool
	netmask    string
}

// resolveAddresses walks the three ipAddrTable columns and sets the CIDR
// address of every interface that owns an entry with both an ifIndex and a
// netmask. Incomplete entries and entries for unknown interfaces are dropped;
// a malformed address/netmask pair fails the whole call.
func resolveAddresses(client QueryClient, t *interfaceTable) error {
	rows, err := client.Walk(OIDIPAdEntAddr)
	if err != nil {
		return err
	}
	scratch := make(map[string]*addrBuilder, len(rows))
	for _, row := range rows {
		scratch[row.Value] = &addrBuilder{address: row.Value}
	}

	rows, err = client.Walk(OIDIPAdEntIfIdx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		a, ok := addressFor(scratch, row, OIDIPAdEntIfIdx)
		if !ok {
			continue
		}
		idx, ok := parseIndex(row.Value)
		if !ok {
			t.dropped++
			t.logger.Debug("discovery: drop address with non-integer ifIndex", "address", a.address, "value", row.Value)
			continue
		}
		a.ifIndex, a.hasIfIndex = idx, true
	}

	rows, err = client.Walk(OIDIPAdEntMask)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if a, ok := addressFor(scratch, row, OIDIPAdEntMask); ok {
			a.netmask = row.Value
		}
	}

	for _, a := range sortedAddresses(scratch) {
		if !a.hasIfIndex || a.netmask == "" {
			continue
		}
		b, ok := t.lookup(a.ifIndex, "ipAddrTable")
		if !ok {
			continue
		}
		cidr, err := NetworkCIDR(a.address, a.netmask)
		if err != nil {
			return err
		}
		// An interface keeps its lowest address when it has several.
		if b.address == "" {
			b.address = cidr
		}
	}
	return nil
}

// addressFor finds the scratch entry a column row belongs to. The row's index
// is the address itself.
func addressFor(scratch map[string]*addrBuilder, row poller.Row, root string) (*addrBuilder, bool) {
	key, ok := SuffixAfter(row.OID, root)
	if !ok {
		return nil, false
	}
	a, ok := scratch[key]
	return a, ok
}

// sortedAddresses orders scratch entries by address so that folding is
// independent of walk order.
func sortedAddresses(scratch map[string]*addrBuilder) []*addrBuilder {
	out := make([]*addrBuilder, 0, len(scratch))
	for _, a := range scratch {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		ai, erri := netip.ParseAddr(out[i].address)
		aj, errj := netip.ParseAddr(out[j].address)
		switch {
		case erri == nil && errj == nil:
			return ai.Less(aj)
		case erri == nil || errj == nil:
			// Parseable addresses sort first.
			return erri == nil
		default:
			return out[i].address < out[j].address
		}
	})
	return out
}
