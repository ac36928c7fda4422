// Package discovery is the correlation engine of SNMP Diode. For one address
// it issues three scalar queries and a fixed sequence of table walks, joins
// the tables on their index keys, and assembles a single models.Device.
//
// Lookup misses are never errors: unresolved vendors become "unknown" and
// rows that reference unknown interfaces are dropped. Transport failures and
// malformed address/netmask pairs abort the discovery of that address only.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vpbank/snmp_diode/models"
	"github.com/vpbank/snmp_diode/pkg/snmpdiode/catalog"
	"github.com/vpbank/snmp_diode/pkg/snmpdiode/config"
	"github.com/vpbank/snmp_diode/pkg/snmpdiode/poller"
	"github.com/vpbank/snmp_diode/snmp/decoder"
)

// Dialer opens a query session for one device.
type Dialer func(ctx context.Context, cfg config.DeviceConfig) (QueryClient, error)

// Engine runs discoveries. It holds no per-device state and is safe for
// concurrent use by the worker pool.
type Engine struct {
	catalog *catalog.Catalog
	dial    Dialer
	logger  *slog.Logger
}

// New creates an Engine. A nil catalog selects the built-in one; a nil dial
// opens real gosnmp sessions.
func New(cat *catalog.Catalog, dial Dialer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if cat == nil {
		cat = catalog.Default()
	}
	if dial == nil {
		dial = func(ctx context.Context, cfg config.DeviceConfig) (QueryClient, error) {
			return poller.Dial(ctx, cfg, logger)
		}
	}
	return &Engine{catalog: cat, dial: dial, logger: logger}
}

// Discover queries cfg.IP once and returns the assembled device. There are
// no retries at this layer; the session's own timeout and retry settings
// bound how long it takes.
func (e *Engine) Discover(ctx context.Context, cfg config.DeviceConfig) (models.Device, error) {
	client, err := e.dial(ctx, cfg)
	if err != nil {
		return models.Device{}, fmt.Errorf("discovery %s: open session: %w", cfg.IP, err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			e.logger.Debug("discovery: session close failed", "address", cfg.IP, "error", err.Error())
		}
	}()

	name, err := e.scalar(client, cfg.IP, OIDSysName)
	if err != nil {
		return models.Device{}, fmt.Errorf("discovery %s: sysName: %w", cfg.IP, err)
	}
	sysObjectID, err := e.scalar(client, cfg.IP, OIDSysObjectID)
	if err != nil {
		return models.Device{}, fmt.Errorf("discovery %s: sysObjectID: %w", cfg.IP, err)
	}
	location, err := e.scalar(client, cfg.IP, OIDSysLocation)
	if err != nil {
		return models.Device{}, fmt.Errorf("discovery %s: sysLocation: %w", cfg.IP, err)
	}

	manufacturer, deviceType := e.catalog.Lookup(sysObjectID)

	ifaces, err := BuildInterfaces(client, e.logger.With("address", cfg.IP))
	if err != nil {
		return models.Device{}, fmt.Errorf("discovery %s: %w", cfg.IP, err)
	}

	dev := models.Device{
		Address:      cfg.IP,
		Name:         StripQuotes(name),
		Manufacturer: manufacturer,
		DeviceType:   deviceType,
		Platform:     cfg.Platform,
		Site:         cfg.Site,
		Role:         cfg.Role,
		Location:     StripQuotes(location),
		Interfaces:   ifaces,
	}
	if dev.Name == "" {
		dev.Name = cfg.IP
	}
	if dev.Site == "" && cfg.SiteFromLocation {
		dev.Site = dev.Location
	}

	e.logger.Info("discovery: device assembled",
		"address", cfg.IP,
		"name", dev.Name,
		"manufacturer", dev.Manufacturer,
		"device_type", dev.DeviceType,
		"interfaces", len(dev.Interfaces),
	)
	return dev, nil
}

// scalar fetches one scalar. An agent that does not implement the object
// yields an empty value, not an error.
func (e *Engine) scalar(client QueryClient, address, oid string) (string, error) {
	v, err := client.Get(oid)
	if errors.Is(err, decoder.ErrNoValue) {
		e.logger.Debug("discovery: scalar not available", "address", address, "oid", oid)
		return "", nil
	}
	return v, err
}

// noopWriter discards log output.
type noopWriter struct{}

func (noopWriter) Write(b []byte) (int, error) { return len(b), nil }
