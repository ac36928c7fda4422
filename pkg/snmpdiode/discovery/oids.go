package discovery

// Scalars queried once per device (SNMPv2-MIB system group).
const (
	OIDSysName     = "1.3.6.1.2.1.1.5.0"
	OIDSysObjectID = "1.3.6.1.2.1.1.2.0"
	OIDSysLocation = "1.3.6.1.2.1.1.6.0"
)

// Tables walked per device, in join order.
const (
	OIDIfDescr       = "1.3.6.1.2.1.2.2.1.2"     // IF-MIB ifDescr, seeds interfaces
	OIDIfPhysAddress = "1.3.6.1.2.1.2.2.1.6"     // IF-MIB ifPhysAddress
	OIDIfAdminStatus = "1.3.6.1.2.1.2.2.1.7"     // IF-MIB ifAdminStatus
	OIDIPAdEntAddr   = "1.3.6.1.2.1.4.20.1.1"    // IP-MIB ipAdEntAddr
	OIDIPAdEntIfIdx  = "1.3.6.1.2.1.4.20.1.2"    // IP-MIB ipAdEntIfIndex
	OIDIPAdEntMask   = "1.3.6.1.2.1.4.20.1.3"    // IP-MIB ipAdEntNetMask
	OIDIfAlias       = "1.3.6.1.2.1.31.1.1.1.18" // IF-MIB ifAlias, interface description
)

// adminStatusUp is the ifAdminStatus value for up(1).
const adminStatusUp = "1"
