package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/vpbank/snmp_diode/pkg/snmpdiode/config"
	"github.com/vpbank/snmp_diode/snmp/decoder"
)

// Row is one varbind returned by a table walk, with its OID in no-leading-dot
// form and its value rendered by decoder.Render.
type Row struct {
	OID   string
	Value string
}

// Conn is the subset of *gosnmp.GoSNMP used by Client. Tests substitute an
// in-memory agent.
type Conn interface {
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	BulkWalkAll(rootOid string) ([]gosnmp.SnmpPDU, error)
}

// Client is the query session for one device. It is not safe for concurrent
// use; each discovery opens its own.
type Client struct {
	target string
	conn   Conn
	closer func() error
	logger *slog.Logger
}

// Dial opens a session to cfg.IP. Transport and authentication failures are
// returned here or on the first query.
func Dial(ctx context.Context, cfg config.DeviceConfig, logger *slog.Logger) (*Client, error) {
	g, err := NewSession(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c := NewClient(cfg.IP, g, logger)
	c.closer = func() error {
		if g.Conn == nil {
			return nil
		}
		return g.Conn.Close()
	}
	return c, nil
}

// NewClient wraps an already connected Conn.
func NewClient(target string, conn Conn, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Client{target: target, conn: conn, logger: logger}
}

// Get fetches a single scalar. An exception PDU (noSuchObject etc.) is
// returned as an error wrapping decoder.ErrNoValue.
func (c *Client) Get(oid string) (string, error) {
	pkt, err := c.conn.Get([]string{oid})
	if err != nil {
		return "", fmt.Errorf("snmp get %s %s: %w", c.target, oid, err)
	}
	if pkt.Error != gosnmp.NoError {
		return "", fmt.Errorf("snmp get %s %s: agent returned %s", c.target, oid, pkt.Error)
	}
	if len(pkt.Variables) == 0 {
		return "", fmt.Errorf("snmp get %s %s: %w", c.target, oid, decoder.ErrNoValue)
	}
	return decoder.Render(pkt.Variables[0])
}

// Walk returns every row under root in agent order. Exception varbinds are
// skipped; any other render failure aborts the walk.
func (c *Client) Walk(root string) ([]Row, error) {
	return c.walk(root, decoder.Render)
}

// WalkHex is Walk for columns of raw octets: values are rendered with
// decoder.RenderHex, so bytes that look like text are still returned as hex.
func (c *Client) WalkHex(root string) ([]Row, error) {
	return c.walk(root, decoder.RenderHex)
}

func (c *Client) walk(root string, render func(gosnmp.SnmpPDU) (string, error)) ([]Row, error) {
	started := time.Now()
	pdus, err := c.conn.BulkWalkAll(root)
	if err != nil {
		return nil, fmt.Errorf("snmp walk %s %s: %w", c.target, root, err)
	}

	rows := make([]Row, 0, len(pdus))
	for _, pdu := range pdus {
		v, err := render(pdu)
		if errors.Is(err, decoder.ErrNoValue) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("snmp walk %s %s: %w", c.target, root, err)
		}
		rows = append(rows, Row{OID: decoder.NormaliseOID(pdu.Name), Value: v})
	}

	c.logger.Debug("poller: walk completed",
		"target", c.target,
		"root", root,
		"rows", len(rows),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return rows, nil
}

// Close releases the underlying UDP socket.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

// noopWriter discards log output.
type noopWriter struct{}

func (noopWriter) Write(b []byte) (int, error) { return len(b), nil }
