package discovery

import (
	"log/slog"
	"sort"

	"github.com/vpbank/snmp_diode/models"
	"github.com/vpbank/snmp_diode/pkg/snmpdiode/poller"
)

// QueryClient is the query session the engine drives. *poller.Client is the
// production implementation. WalkHex renders octet strings as hex regardless
// of content and is used for columns that hold raw bytes.
type QueryClient interface {
	Get(oid string) (string, error)
	Walk(root string) ([]poller.Row, error)
	WalkHex(root string) ([]poller.Row, error)
	Close() error
}

// ifaceBuilder accumulates one interface while the tables are joined.
type ifaceBuilder struct {
	name        string
	mac         string
	enabled     bool
	address     string
	description string
}

// interfaceTable is the scratch state of one discovery: every interface seen
// in the name table, keyed by ifIndex. Secondary tables only update entries
// that already exist here.
type interfaceTable struct {
	byIndex map[uint32]*ifaceBuilder
	logger  *slog.Logger
	dropped int
}

func newInterfaceTable(logger *slog.Logger) *interfaceTable {
	return &interfaceTable{byIndex: make(map[uint32]*ifaceBuilder), logger: logger}
}

// lookup returns the builder for idx. A miss is counted and logged but is
// never an error: secondary tables regularly carry rows for indices the name
// table does not list.
func (t *interfaceTable) lookup(idx uint32, table string) (*ifaceBuilder, bool) {
	b, ok := t.byIndex[idx]
	if !ok {
		t.dropped++
		t.logger.Debug("discovery: drop row for unknown interface", "table", table, "if_index", idx)
	}
	return b, ok
}

// rowIndex extracts the trailing ifIndex of a row. Rows whose index is not an
// integer are dropped.
func (t *interfaceTable) rowIndex(row poller.Row, table string) (uint32, bool) {
	idx, ok := IndexFromOID(row.OID)
	if !ok {
		t.dropped++
		t.logger.Debug("discovery: drop row with non-integer index", "table", table, "oid", row.OID)
	}
	return idx, ok
}

func (t *interfaceTable) seedNames(rows []poller.Row) {
	for _, row := range rows {
		idx, ok := t.rowIndex(row, "ifDescr")
		if !ok {
			continue
		}
		t.byIndex[idx] = &ifaceBuilder{name: row.Value}
	}
}

func (t *interfaceTable) joinMAC(rows []poller.Row) {
	for _, row := range rows {
		idx, ok := t.rowIndex(row, "ifPhysAddress")
		if !ok {
			continue
		}
		if b, ok := t.lookup(idx, "ifPhysAddress"); ok {
			b.mac = NormalizeMAC(row.Value)
		}
	}
}

func (t *interfaceTable) joinAdminStatus(rows []poller.Row) {
	for _, row := range rows {
		idx, ok := t.rowIndex(row, "ifAdminStatus")
		if !ok {
			continue
		}
		if b, ok := t.lookup(idx, "ifAdminStatus"); ok {
			b.enabled = AdminEnabled(row.Value)
		}
	}
}

// joinDescription keys rows by everything after the table root rather than
// the last arc alone, so a row with a compound index never matches.
func (t *interfaceTable) joinDescription(rows []poller.Row) {
	for _, row := range rows {
		suffix, ok := SuffixAfter(row.OID, OIDIfAlias)
		if !ok {
			continue
		}
		idx, ok := parseIndex(suffix)
		if !ok {
			t.dropped++
			t.logger.Debug("discovery: drop row with non-integer index", "table", "ifAlias", "oid", row.OID)
			continue
		}
		if b, ok := t.lookup(idx, "ifAlias"); ok {
			b.description = StripQuotes(row.Value)
		}
	}
}

// interfaces returns the assembled interfaces ordered by ascending ifIndex, so
// the result does not depend on the order the agent returned rows in.
func (t *interfaceTable) interfaces() []models.Interface {
	indices := make([]uint32, 0, len(t.byIndex))
	for idx := range t.byIndex {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	out := make([]models.Interface, 0, len(indices))
	for _, idx := range indices {
		b := t.byIndex[idx]
		out = append(out, models.Interface{
			Name:        StripQuotes(b.name),
			MACAddress:  b.mac,
			Enabled:     b.enabled,
			Address:     b.address,
			Description: b.description,
		})
	}
	return out
}

// BuildInterfaces walks the interface and address tables in their fixed
// order and joins them into one record per interface:
//
//	ifDescr → ifPhysAddress → ifAdminStatus → ipAddrTable → ifAlias
//
// Any walk failure aborts the build.
func BuildInterfaces(client QueryClient, logger *slog.Logger) ([]models.Interface, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	t := newInterfaceTable(logger)

	steps := []struct {
		root string
		walk func(string) ([]poller.Row, error)
		join func([]poller.Row)
	}{
		{OIDIfDescr, client.Walk, t.seedNames},
		{OIDIfPhysAddress, client.WalkHex, t.joinMAC},
		{OIDIfAdminStatus, client.Walk, t.joinAdminStatus},
	}
	for _, s := range steps {
		rows, err := s.walk(s.root)
		if err != nil {
			return nil, err
		}
		s.join(rows)
	}

	if err := resolveAddresses(client, t); err != nil {
		return nil, err
	}

	rows, err := client.Walk(OIDIfAlias)
	if err != nil {
		return nil, err
	}
	t.joinDescription(rows)

	logger.Debug("discovery: interfaces joined",
		"interfaces", len(t.byIndex),
		"dropped_rows", t.dropped,
	)
	return t.interfaces(), nil
}
