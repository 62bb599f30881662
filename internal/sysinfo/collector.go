package sysinfo

import (
	"context"
	"net/netip"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/stone-age-io/inventory-agent/internal/probe"
	"go.uber.org/zap"
)

const userAgent = "inventory-agent/1.0"

// osNames maps GOOS-style identifiers to the names the inventory server expects
var osNames = map[string]string{
	"linux":   "Linux",
	"windows": "Windows",
	"darwin":  "Darwin",
	"freebsd": "FreeBSD",
	"openbsd": "OpenBSD",
	"netbsd":  "NetBSD",
}

// Collector gathers host identity and network facts
type Collector struct {
	logger     *zap.Logger
	publicIP   *PublicIPResolver // nil disables the lookup
	hostInfo   func(ctx context.Context) (*host.InfoStat, error)
	interfaces func(ctx context.Context) (psnet.InterfaceStatList, error)
	release    func() string
	now        func() time.Time
}

// NewCollector creates a collector. publicIP may be nil.
func NewCollector(logger *zap.Logger, publicIP *PublicIPResolver) *Collector {
	return &Collector{
		logger:     logger,
		publicIP:   publicIP,
		hostInfo:   host.InfoWithContext,
		interfaces: psnet.InterfacesWithContext,
		release:    kernelRelease,
		now:        time.Now,
	}
}

// Collect builds a snapshot from the host and the given detection result.
// It always returns a snapshot; unavailable facts are left empty and logged.
func (c *Collector) Collect(ctx context.Context, detection probe.Result) *Snapshot {
	snap := &Snapshot{
		RuntimeVersion:        runtime.Version(),
		VirtualizationMethods: detection.Methods(),
		Detections:            detection.Detections,
	}

	c.collectIdentity(ctx, snap)
	c.collectInterfaces(ctx, snap)

	if c.publicIP != nil {
		snap.MainIPv4 = c.publicIP.Lookup(ctx)
	}

	snap.UpdatedAt = c.now().UTC()

	c.logger.Debug("System info collected",
		zap.String("hostname", snap.Hostname),
		zap.String("os", snap.OSName),
		zap.String("release", snap.OSRelease),
		zap.String("architecture", snap.OSArchitecture),
		zap.Strings("ipv4", snap.IPv4List),
		zap.Strings("ipv6", snap.IPv6List),
		zap.Bool("public_ip", snap.MainIPv4 != nil))

	return snap
}

// collectIdentity fills hostname and OS fields, falling back to the Go
// runtime for anything gopsutil could not read
func (c *Collector) collectIdentity(ctx context.Context, snap *Snapshot) {
	info, err := c.hostInfo(ctx)
	if err != nil {
		c.logger.Warn("Failed to collect host info", zap.Error(err))
	}
	if info == nil {
		info = &host.InfoStat{}
	}

	snap.Hostname = info.Hostname
	if snap.Hostname == "" {
		if name, err := os.Hostname(); err == nil {
			snap.Hostname = name
		}
	}

	goos := info.OS
	if goos == "" {
		goos = runtime.GOOS
	}
	snap.OSName = DisplayOSName(goos)

	snap.OSRelease = info.KernelVersion
	if snap.OSRelease == "" {
		snap.OSRelease = c.release()
	}

	snap.OSArchitecture = info.KernelArch
	if snap.OSArchitecture == "" {
		snap.OSArchitecture = runtime.GOARCH
	}
}

// collectInterfaces partitions every interface address into IPv4 and IPv6,
// keeping enumeration order
func (c *Collector) collectInterfaces(ctx context.Context, snap *Snapshot) {
	snap.IPv4List = []string{}
	snap.IPv6List = []string{}
	snap.Interfaces = []InterfaceAddrs{}

	ifaces, err := c.interfaces(ctx)
	if err != nil {
		c.logger.Warn("Failed to enumerate network interfaces", zap.Error(err))
		return
	}

	for _, iface := range ifaces {
		entry := InterfaceAddrs{
			Name: iface.Name,
			IPv4: []string{},
			IPv6: []string{},
		}

		for _, a := range iface.Addrs {
			addr, ok := parseInterfaceAddr(a.Addr)
			if !ok {
				c.logger.Debug("Skipping unparseable interface address",
					zap.String("interface", iface.Name),
					zap.String("addr", a.Addr))
				continue
			}

			if addr.Is4() {
				entry.IPv4 = append(entry.IPv4, addr.String())
				snap.IPv4List = append(snap.IPv4List, addr.String())
			} else {
				entry.IPv6 = append(entry.IPv6, addr.String())
				snap.IPv6List = append(snap.IPv6List, addr.String())
			}
		}

		snap.Interfaces = append(snap.Interfaces, entry)
	}
}

// parseInterfaceAddr accepts "addr" or "addr/prefix" as reported by gopsutil
func parseInterfaceAddr(s string) (netip.Addr, bool) {
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// DisplayOSName returns the conventional capitalized OS name
func DisplayOSName(goos string) string {
	if name, ok := osNames[strings.ToLower(goos)]; ok {
		return name
	}
	return goos
}
