// Package entities flattens an assembled models.Device into the ordered entity
// stream consumed by the ingestion service.
package entities

import (
	"log/slog"

	"github.com/vpbank/snmp_diode/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Producer interface
// ─────────────────────────────────────────────────────────────────────────────

// Producer converts a discovered Device into its entity sequence.
// Implementations must be safe for concurrent use.
type Producer interface {
	Produce(dev models.Device) []models.Entity
}

// ─────────────────────────────────────────────────────────────────────────────
// EntityProducer
// ─────────────────────────────────────────────────────────────────────────────

// EntityProducer is the production Producer. It holds no state besides its
// logger.
type EntityProducer struct {
	logger *slog.Logger
}

// New constructs an EntityProducer. Pass nil for a no-op logger.
func New(logger *slog.Logger) *EntityProducer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopProducerWriter{}, nil))
	}
	return &EntityProducer{logger: logger}
}

// Produce implements Producer.
func (p *EntityProducer) Produce(dev models.Device) []models.Entity {
	out := Project(dev)
	p.logger.Debug("produce: projected device",
		"device", dev.Name,
		"address", dev.Address,
		"interfaces", len(dev.Interfaces),
		"entity_count", len(out),
	)
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Projection
// ─────────────────────────────────────────────────────────────────────────────

// Project returns the entities for dev in ingestion order: the device first,
// then for each interface (in collection order) its interface entity followed
// immediately by its address entity when one was resolved.
//
//	[device, iface1, addr1, iface2, iface3, addr3, ...]
func Project(dev models.Device) []models.Entity {
	out := make([]models.Entity, 0, 1+2*len(dev.Interfaces))
	out = append(out, models.Entity{Device: deviceEntity(dev)})

	for _, ifc := range dev.Interfaces {
		out = append(out, models.Entity{Interface: &models.InterfaceEntity{
			Name:        ifc.Name,
			MACAddress:  ifc.MACAddress,
			Description: ifc.Description,
			Device:      dev.Name,
			Site:        dev.Site,
			Enabled:     ifc.Enabled,
		}})
		if ifc.Address == "" {
			continue
		}
		out = append(out, models.Entity{IPAddress: &models.IPAddressEntity{
			Address:   ifc.Address,
			Interface: ifc.Name,
			Device:    dev.Name,
			Site:      dev.Site,
		}})
	}
	return out
}

func deviceEntity(dev models.Device) *models.DeviceEntity {
	manufacturer, deviceType := dev.Manufacturer, dev.DeviceType
	if manufacturer == "" {
		manufacturer = models.Unknown
	}
	if deviceType == "" {
		deviceType = models.Unknown
	}
	return &models.DeviceEntity{
		Name:         dev.Name,
		DeviceType:   deviceType,
		Manufacturer: manufacturer,
		Platform:     dev.Platform,
		Site:         dev.Site,
		Role:         dev.Role,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// noopProducerWriter discards log output when no logger is provided
// ─────────────────────────────────────────────────────────────────────────────

type noopProducerWriter struct{}

func (noopProducerWriter) Write(p []byte) (int, error) { return len(p), nil }
