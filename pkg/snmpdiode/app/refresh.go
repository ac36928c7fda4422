package app

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/google/uuid"

	"github.com/vpbank/snmp_diode/models"
	"github.com/vpbank/snmp_diode/pkg/snmpdiode/config"
	"github.com/vpbank/snmp_diode/snmp/trap"
)

// ErrUnknownAddress is returned by Refresh for an address no target selects.
var ErrUnknownAddress = errors.New("address not selected by any target")

// DefaultCooldown is the minimum gap between two trap-driven refreshes of the
// same address.
const DefaultCooldown = time.Minute

// Refresh rediscovers a single address with the credentials and labels of
// the target that selected it, then delivers and records the result like a
// one-address Run. The address must belong to the configured targets.
func (a *App) Refresh(ctx context.Context, address string) (models.Report, error) {
	dc, ok := a.lookup(address)
	if !ok {
		return models.Report{}, fmt.Errorf("app: refresh %s: %w", address, ErrUnknownAddress)
	}

	rep := models.Report{
		ID:        uuid.New(),
		StartedAt: time.Now().UTC(),
		Errors:    make(map[string]string),
	}
	dev, err := a.discoverer.Discover(ctx, dc)
	if err != nil {
		rep.Errors[dc.IP] = err.Error()
	} else {
		rep.Devices = []models.Device{dev}
	}
	rep.FinishedAt = time.Now().UTC()

	return rep, a.finish(ctx, rep, "app: refresh complete")
}

// Watch refreshes the sender of every notification that signals an
// inventory change until events is closed or ctx is cancelled. Repeats for
// one address inside cooldown are coalesced into the refresh already done;
// the next scheduled run picks up anything later. A cooldown <= 0 selects
// DefaultCooldown.
func (a *App) Watch(ctx context.Context, events <-chan trap.Notification, cooldown time.Duration) {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	last := make(map[string]time.Time)

	for {
		var n trap.Notification
		var ok bool
		select {
		case <-ctx.Done():
			return
		case n, ok = <-events:
			if !ok {
				return
			}
		}

		if !n.Refresh() {
			continue
		}
		if t, seen := last[n.Address]; seen && n.Timestamp.Sub(t) < cooldown {
			a.logger.Debug("app: refresh coalesced", "address", n.Address, "kind", n.Kind)
			continue
		}
		last[n.Address] = n.Timestamp

		a.logger.Info("app: refresh requested",
			"address", n.Address,
			"kind", n.Kind,
			"if_index", n.IfIndex,
		)
		rep, err := a.Refresh(ctx, n.Address)
		switch {
		case errors.Is(err, ErrUnknownAddress):
			a.logger.Debug("app: notification from unmanaged address", "address", n.Address)
		case err != nil:
			a.logger.Error("app: refresh failed", "address", n.Address, "error", err.Error())
		default:
			for addr, msg := range rep.Errors {
				a.logger.Warn("app: refresh discovery failed", "address", addr, "error", msg)
			}
		}
	}
}

// lookup finds the DeviceConfig for address. IPv4-mapped IPv6 sources are
// matched against their IPv4 form.
func (a *App) lookup(address string) (dc config.DeviceConfig, ok bool) {
	if p, err := netip.ParseAddr(address); err == nil {
		address = p.Unmap().String()
	}
	i, ok := a.byAddr[address]
	if !ok {
		return dc, false
	}
	return a.devices[i], true
}
