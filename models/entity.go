package models

import "time"

// Entity is one self-contained record in the stream handed to the ingestion
// service. Exactly one of the pointer fields is set. The JSON field names are
// part of the ingestion wire contract.
type Entity struct {
	Device    *DeviceEntity    `json:"device,omitempty"`
	Interface *InterfaceEntity `json:"interface,omitempty"`
	IPAddress *IPAddressEntity `json:"ip_address,omitempty"`
}

// Kind names the populated variant: "device", "interface" or "ip_address".
func (e Entity) Kind() string {
	switch {
	case e.Device != nil:
		return "device"
	case e.Interface != nil:
		return "interface"
	case e.IPAddress != nil:
		return "ip_address"
	default:
		return ""
	}
}

// DeviceEntity is the projected form of a Device.
type DeviceEntity struct {
	Name         string `json:"name"`
	DeviceType   string `json:"device_type"`
	Manufacturer string `json:"manufacturer"`
	Platform     string `json:"platform,omitempty"`
	Site         string `json:"site,omitempty"`
	Role         string `json:"role,omitempty"`
}

// InterfaceEntity is the projected form of an Interface.
type InterfaceEntity struct {
	Name        string `json:"name"`
	MACAddress  string `json:"mac_address,omitempty"`
	Description string `json:"description"`
	Device      string `json:"device"`
	Site        string `json:"site,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// IPAddressEntity binds a resolved CIDR address to its owning interface.
type IPAddressEntity struct {
	Address   string `json:"address"`
	Interface string `json:"interface"`
	Device    string `json:"device"`
	Site      string `json:"site,omitempty"`
}

// Batch is the projected entity stream of one device, as written by the dry
// run output and handed to the ingestion client.
type Batch struct {
	Timestamp time.Time `json:"timestamp"`
	Address   string    `json:"address"`
	Device    string    `json:"device"`
	Entities  []Entity  `json:"entities"`
}
