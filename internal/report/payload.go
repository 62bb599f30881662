package report

import (
	"github.com/stone-age-io/inventory-agent/internal/sysinfo"
)

// Fixed payload values expected by the inventory server
const (
	StatusActive          = "active"
	InventorySourceMethod = "inventory_agent_clt"
)

// Payload is the JSON body POSTed to the inventory server
type Payload struct {
	Name                  string   `json:"name"`
	Description           string   `json:"description"`
	MainIPv4              *string  `json:"main_ipv4"`
	IPv4List              []string `json:"ip_v4_list"`
	IPv6List              []string `json:"ip_v6_list"`
	Status                string   `json:"status"`
	InventorySourceMethod string   `json:"inventory_source_method"`
	SystemOS              string   `json:"system_os"`
	SystemRelease         string   `json:"system_release"`
	SystemArchitecture    string   `json:"system_architecture"`
	Hostname              string   `json:"hostname"`
	PythonVersion         string   `json:"python_version"` // Runtime version; the field name is part of the server API
	VirtualizationMethod  []string `json:"virtualization_method"`
	UpdateDate            string   `json:"update_date"`
}

// NewPayload maps a snapshot onto the server payload. An empty name falls
// back to the hostname.
func NewPayload(snap *sysinfo.Snapshot, name, description string) Payload {
	if name == "" {
		name = snap.Hostname
	}

	return Payload{
		Name:                  name,
		Description:           description,
		MainIPv4:              snap.MainIPv4,
		IPv4List:              nonNil(snap.IPv4List),
		IPv6List:              nonNil(snap.IPv6List),
		Status:                StatusActive,
		InventorySourceMethod: InventorySourceMethod,
		SystemOS:              snap.OSName,
		SystemRelease:         snap.OSRelease,
		SystemArchitecture:    snap.OSArchitecture,
		Hostname:              snap.Hostname,
		PythonVersion:         snap.RuntimeVersion,
		VirtualizationMethod:  nonNil(snap.VirtualizationMethods),
		UpdateDate:            snap.UpdateDate(),
	}
}

// nonNil keeps empty lists as [] rather than null on the wire
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
