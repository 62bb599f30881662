package sysinfo

import (
	"time"

	"github.com/stone-age-io/inventory-agent/internal/probe"
)

// Snapshot is the bundle of host facts produced once per reporting cycle.
// It is built by Collector and must be treated as read-only afterwards.
type Snapshot struct {
	Hostname              string            `json:"hostname"`
	OSName                string            `json:"os_name"`
	OSRelease             string            `json:"os_release"`
	OSArchitecture        string            `json:"os_architecture"`
	RuntimeVersion        string            `json:"runtime_version"`
	MainIPv4              *string           `json:"main_ipv4"`
	IPv4List              []string          `json:"ipv4_list"`
	IPv6List              []string          `json:"ipv6_list"`
	Interfaces            []InterfaceAddrs  `json:"interfaces"`
	VirtualizationMethods []string          `json:"virtualization_methods"`
	Detections            []probe.Detection `json:"detections"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// InterfaceAddrs holds the addresses of one network interface split by family
type InterfaceAddrs struct {
	Name string   `json:"name"`
	IPv4 []string `json:"ipv4"`
	IPv6 []string `json:"ipv6"`
}

// UpdateDate returns the snapshot time as an ISO-8601 (RFC 3339) UTC string
func (s *Snapshot) UpdateDate() string {
	return s.UpdatedAt.UTC().Format(time.RFC3339)
}
