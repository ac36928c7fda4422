// Package models defines the core data structures shared across all layers of
// SNMP Diode. Discovery produces a Device, the projector flattens it into an
// ordered []Entity, and the app wraps every batch run in a Report. Nothing in
// this package depends on any other internal package.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Unknown is the sentinel used for manufacturer and device type whenever the
// catalog cannot resolve them.
const Unknown = "unknown"

// Device is one discovered host, fully assembled from a single query session.
type Device struct {
	// Address is the management address the device was polled on.
	Address string `json:"address"`

	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	DeviceType   string `json:"device_type"`
	Platform     string `json:"platform,omitempty"`
	Site         string `json:"site,omitempty"`
	Role         string `json:"role,omitempty"`

	// Location is sysLocation with quotes stripped. It is only projected as the
	// site when the target enables site_from_location.
	Location string `json:"location,omitempty"`

	// Interfaces are ordered by ascending ifIndex.
	Interfaces []Interface `json:"interfaces"`
}

// Interface is one network interface on a Device. The ifIndex used to join
// the SNMP tables is deliberately not carried here.
type Interface struct {
	Name        string `json:"name"`
	MACAddress  string `json:"mac_address,omitempty"`
	Enabled     bool   `json:"enabled"`
	Address     string `json:"address,omitempty"` // CIDR, e.g. "192.168.1.0/24"
	Description string `json:"description"`
}

// Report is the outcome of one batch run over every configured target.
// Successful devices and per-address errors are kept apart so that ingestion
// only ever sees what was discovered cleanly.
type Report struct {
	// ID identifies the run in the history store and the logs.
	ID uuid.UUID `json:"id"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Devices holds every successful discovery, sorted by address.
	Devices []Device `json:"devices"`

	// Errors maps a target address to the message of its discovery failure.
	Errors map[string]string `json:"errors,omitempty"`
}

// Attempted returns the number of addresses the run tried to discover.
func (r Report) Attempted() int {
	return len(r.Devices) + len(r.Errors)
}
