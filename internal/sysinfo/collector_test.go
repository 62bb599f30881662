package sysinfo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/stone-age-io/inventory-agent/internal/probe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2026, 3, 14, 14, 30, 0, 0, time.UTC)

func newTestCollector(publicIP *PublicIPResolver) *Collector {
	c := NewCollector(zap.NewNop(), publicIP)
	c.hostInfo = func(context.Context) (*host.InfoStat, error) {
		return &host.InfoStat{
			Hostname:      "hv-01",
			OS:            "linux",
			KernelVersion: "6.5.11-7-pve",
			KernelArch:    "x86_64",
		}, nil
	}
	c.interfaces = func(context.Context) (psnet.InterfaceStatList, error) {
		return psnet.InterfaceStatList{
			{Name: "lo", Addrs: psnet.InterfaceAddrList{{Addr: "127.0.0.1/8"}, {Addr: "::1/128"}}},
			{Name: "eth0", Addrs: psnet.InterfaceAddrList{
				{Addr: "192.168.1.10/24"},
				{Addr: "fe80::5054:ff:fe12:3456/64"},
				{Addr: "10.0.0.5/8"},
			}},
			{Name: "docker0", Addrs: psnet.InterfaceAddrList{{Addr: "172.17.0.1/16"}, {Addr: "bogus"}}},
		}, nil
	}
	c.release = func() string { return "uname-release" }
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestCollect(t *testing.T) {
	c := newTestCollector(nil)
	detection := probe.Result{Detections: []probe.Detection{
		{Method: "docker", State: probe.DetectionActive},
		{Method: "proxmox", State: probe.DetectionNotInstalled},
		{Method: "kvm", State: probe.DetectionInstalled},
	}}

	snap := c.Collect(context.Background(), detection)

	assert.Equal(t, "hv-01", snap.Hostname)
	assert.Equal(t, "Linux", snap.OSName)
	assert.Equal(t, "6.5.11-7-pve", snap.OSRelease)
	assert.Equal(t, "x86_64", snap.OSArchitecture)
	assert.Equal(t, runtime.Version(), snap.RuntimeVersion)
	assert.Equal(t, []string{"127.0.0.1", "192.168.1.10", "10.0.0.5", "172.17.0.1"}, snap.IPv4List)
	assert.Equal(t, []string{"::1", "fe80::5054:ff:fe12:3456"}, snap.IPv6List)
	assert.Equal(t, []string{"docker", "kvm"}, snap.VirtualizationMethods)
	assert.Nil(t, snap.MainIPv4)
	assert.Equal(t, "2026-03-14T14:30:00Z", snap.UpdateDate())

	require.Len(t, snap.Interfaces, 3)
	assert.Equal(t, InterfaceAddrs{
		Name: "eth0",
		IPv4: []string{"192.168.1.10", "10.0.0.5"},
		IPv6: []string{"fe80::5054:ff:fe12:3456"},
	}, snap.Interfaces[1])
	assert.Equal(t, []string{}, snap.Interfaces[2].IPv6)
}

func TestCollectFallsBackWhenHostInfoFails(t *testing.T) {
	c := newTestCollector(nil)
	c.hostInfo = func(context.Context) (*host.InfoStat, error) {
		return nil, errors.New("not implemented yet")
	}
	c.interfaces = func(context.Context) (psnet.InterfaceStatList, error) {
		return nil, errors.New("permission denied")
	}

	snap := c.Collect(context.Background(), probe.Result{})

	assert.NotEmpty(t, snap.Hostname)
	assert.Equal(t, DisplayOSName(runtime.GOOS), snap.OSName)
	assert.Equal(t, runtime.GOARCH, snap.OSArchitecture)
	assert.Equal(t, "uname-release", snap.OSRelease, "release falls back to uname")
	assert.NotNil(t, snap.IPv4List)
	assert.Empty(t, snap.IPv4List)
	assert.NotNil(t, snap.VirtualizationMethods)
	assert.Empty(t, snap.VirtualizationMethods)
}

func TestCollectWithPublicIP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ip":"203.0.113.7"}`))
	}))
	defer srv.Close()

	c := newTestCollector(NewPublicIPResolver(srv.URL, time.Second, zap.NewNop()))

	snap := c.Collect(context.Background(), probe.Result{})

	require.NotNil(t, snap.MainIPv4)
	assert.Equal(t, "203.0.113.7", *snap.MainIPv4)
}

func TestParseInterfaceAddr(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "192.168.1.10/24", want: "192.168.1.10", ok: true},
		{in: "192.168.1.10", want: "192.168.1.10", ok: true},
		{in: "::ffff:10.0.0.1/96", want: "10.0.0.1", ok: true},
		{in: "2001:db8::1/64", want: "2001:db8::1", ok: true},
		{in: "fe80::1%eth0", want: "fe80::1%eth0", ok: true},
		{in: "", ok: false},
		{in: "not-an-ip/24", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			addr, ok := parseInterfaceAddr(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, addr.String())
			}
		})
	}
}

func TestDisplayOSName(t *testing.T) {
	assert.Equal(t, "Linux", DisplayOSName("linux"))
	assert.Equal(t, "FreeBSD", DisplayOSName("freebsd"))
	assert.Equal(t, "Windows", DisplayOSName("Windows"))
	assert.Equal(t, "plan9", DisplayOSName("plan9"))
}
