package sonic

import (
	"fmt"
	"strconv"

	"github.com/metalbox-io/sonic-manager/internal/inventory"
)

// DeviceFacts are the inventory-derived inputs to config assembly.
// Any of them may be empty when the inventory was unreachable; the
// builder emits whatever it can.
type DeviceFacts struct {
	Device    *inventory.Device
	Loopbacks []inventory.Interface
	OOBIP     string
	VLANs     []inventory.VLAN
}

// ConfigDB is the subset of a SONiC configuration document this
// manager emits. Tables keep their config_db.json names.
type ConfigDB struct {
	DeviceMetadata    map[string]DeviceMetadata `json:"DEVICE_METADATA"`
	LoopbackInterface map[string]struct{}       `json:"LOOPBACK_INTERFACE,omitempty"`
	MgmtInterface     map[string]struct{}       `json:"MGMT_INTERFACE,omitempty"`
	VLAN              map[string]VLANEntry      `json:"VLAN,omitempty"`
	Port              map[string]PortEntry      `json:"PORT,omitempty"`
}

// DeviceMetadata is the per-host metadata table entry
type DeviceMetadata struct {
	Hostname string `json:"hostname"`
	HWSKU    string `json:"hwsku,omitempty"`
}

// VLANEntry is one VLAN table entry
type VLANEntry struct {
	VLANID string `json:"vlanid"`
}

// mgmtInterfaceName is the SONiC management port
const mgmtInterfaceName = "eth0"

// BuildConfig assembles a config document from device facts and the
// hardware's port table.
func BuildConfig(facts DeviceFacts, ports map[string]PortEntry) *ConfigDB {
	cfg := &ConfigDB{
		DeviceMetadata: map[string]DeviceMetadata{
			"localhost": {
				Hostname: facts.Device.Name,
				HWSKU:    facts.Device.DeviceType.Model,
			},
		},
	}

	if len(facts.Loopbacks) > 0 {
		cfg.LoopbackInterface = make(map[string]struct{}, len(facts.Loopbacks))
		for _, iface := range facts.Loopbacks {
			cfg.LoopbackInterface[iface.Name] = struct{}{}
		}
	}

	if facts.OOBIP != "" {
		cfg.MgmtInterface = map[string]struct{}{
			mgmtInterfaceName + "|" + facts.OOBIP: {},
		}
	}

	if len(facts.VLANs) > 0 {
		cfg.VLAN = make(map[string]VLANEntry, len(facts.VLANs))
		for _, vlan := range facts.VLANs {
			cfg.VLAN[fmt.Sprintf("Vlan%d", vlan.VID)] = VLANEntry{VLANID: strconv.Itoa(vlan.VID)}
		}
	}

	if len(ports) > 0 {
		cfg.Port = ports
	}

	return cfg
}
