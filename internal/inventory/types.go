package inventory

// Types mirror the subset of the inventory REST schema the manager
// reads. All objects are owned by the inventory system and treated as
// read-only here.

// Device is a network device record
type Device struct {
	ID         int        `json:"id"`
	Name       string     `json:"name"`
	Status     Status     `json:"status"`
	DeviceType DeviceType `json:"device_type"`
}

// Status is the inventory's enumerated state wrapper
type Status struct {
	Value string `json:"value"`
}

// DeviceType carries the hardware model, used as the SONiC HWSKU
type DeviceType struct {
	Model string `json:"model"`
	Slug  string `json:"slug"`
}

// Interface is a device interface record
type Interface struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	MgmtOnly     bool   `json:"mgmt_only"`
	UntaggedVLAN *VLAN  `json:"untagged_vlan"`
	TaggedVLANs  []VLAN `json:"tagged_vlans"`
}

// IPAddress is an address assignment record. Address carries a prefix
// length suffix ("10.0.0.5/24") as stored by the inventory.
type IPAddress struct {
	ID      int    `json:"id"`
	Address string `json:"address"`
}

// VLAN is a VLAN record. Identity for deduplication is the inventory id.
type VLAN struct {
	ID   int    `json:"id"`
	VID  int    `json:"vid"`
	Name string `json:"name"`
}

// FilterClause is one match clause of the device eligibility filter.
// A device is eligible when it matches any clause (state plus all tags).
type FilterClause struct {
	State string   `json:"state"`
	Tags  []string `json:"tag"`
}
