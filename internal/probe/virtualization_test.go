package probe

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// allInstalled returns a runner on which every detection command succeeds
func allInstalled() *fakeRunner {
	return newFakeRunner().
		set("docker --version", ok("Docker version 24.0.7, build afdd53b")).
		set("pveversion", ok("pve-manager/8.1.3/b46aac3b42da5d15 (running kernel: 6.5.11-7-pve)")).
		set("lxc-checkconfig", ok("LXC version 5.0.2\n--- Namespaces ---")).
		set("qemu-system-x86_64 --version", ok("QEMU emulator version 8.1.2")).
		set("kvm --version", ok("QEMU emulator version 8.1.2"))
}

func allActive() fakeServices {
	return fakeServices{"docker": ServiceActive, "pvedaemon": ServiceActive, "lxc": ServiceActive}
}

func TestDetectAllPresent(t *testing.T) {
	d := NewDetector(allInstalled(), allActive(), zap.NewNop())

	result := d.Detect(context.Background())

	assert.Equal(t, []string{"docker", "proxmox", "lxc", "qemu", "kvm"}, result.Methods())
	require.Len(t, result.Detections, 5)
	assert.Equal(t, "Docker version 24.0.7, build afdd53b", result.Detections[0].Version)
	assert.Equal(t, "LXC version 5.0.2", result.Detections[2].Version)
}

func TestDetectAllAbsent(t *testing.T) {
	d := NewDetector(newFakeRunner(), allActive(), zap.NewNop())

	result := d.Detect(context.Background())

	methods := result.Methods()
	require.NotNil(t, methods)
	assert.Empty(t, methods)
	for _, det := range result.Detections {
		assert.Equal(t, DetectionNotInstalled, det.State, det.Method)
	}
}

func TestDetectCommandAbsentOrFailing(t *testing.T) {
	for _, p := range DefaultProbes {
		command := p.Command[0]
		if len(p.Command) > 1 {
			command += " " + p.Command[1]
		}

		for name, res := range map[string]CommandResult{
			"not found": {Status: CommandNotFound, ExitCode: -1},
			"non-zero":  {Status: CommandFailed, ExitCode: 1},
			"timed out": {Status: CommandTimedOut, ExitCode: -1},
			"no output": {Status: CommandOK},
		} {
			t.Run(p.Method+"/"+name, func(t *testing.T) {
				runner := allInstalled().set(command, res)
				d := NewDetector(runner, allActive(), zap.NewNop())

				result := d.Detect(context.Background())

				assert.NotContains(t, result.Methods(), p.Method)
				assert.Len(t, result.Methods(), 4)
			})
		}
	}
}

func TestDetectTimeoutIsDistinctState(t *testing.T) {
	runner := allInstalled().set("docker --version", CommandResult{Status: CommandTimedOut, ExitCode: -1})
	d := NewDetector(runner, allActive(), zap.NewNop())

	result := d.Detect(context.Background())

	assert.Equal(t, DetectionTimedOut, result.Detections[0].State)
}

func TestDetectServiceInactive(t *testing.T) {
	tests := []struct {
		method  string
		service string
		state   ServiceState
		want    DetectionState
	}{
		{method: MethodDocker, service: "docker", state: ServiceInactive, want: DetectionInactive},
		{method: MethodProxmox, service: "pvedaemon", state: ServiceInactive, want: DetectionInactive},
		{method: MethodLXC, service: "lxc", state: ServiceInactive, want: DetectionInactive},
		{method: MethodDocker, service: "docker", state: ServiceUnknown, want: DetectionServiceUnknown},
		{method: MethodLXC, service: "lxc", state: ServiceUnknown, want: DetectionServiceUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.method+"/"+tt.state.String(), func(t *testing.T) {
			services := allActive()
			services[tt.service] = tt.state
			d := NewDetector(allInstalled(), services, zap.NewNop())

			result := d.Detect(context.Background())

			assert.NotContains(t, result.Methods(), tt.method)
			for _, det := range result.Detections {
				if det.Method == tt.method {
					assert.Equal(t, tt.want, det.State)
				}
			}
		})
	}
}

func TestDetectServiceLessProbesIgnoreServices(t *testing.T) {
	services := fakeServices{
		"docker": ServiceInactive, "pvedaemon": ServiceInactive, "lxc": ServiceInactive,
		"libvirtd": ServiceInactive, "qemu": ServiceInactive, "kvm": ServiceInactive,
	}
	d := NewDetector(allInstalled(), services, zap.NewNop())

	result := d.Detect(context.Background())

	assert.Equal(t, []string{"qemu", "kvm"}, result.Methods())
	assert.Equal(t, DetectionInstalled, result.Detections[3].State)
	assert.Equal(t, DetectionInstalled, result.Detections[4].State)
}

func TestDetectRecoversFromProbePanic(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	runner := allInstalled()
	runner.panics["docker --version"] = true
	d := NewDetector(runner, allActive(), zap.New(core))

	var result Result
	require.NotPanics(t, func() {
		result = d.Detect(context.Background())
	})

	assert.Equal(t, []string{"proxmox", "lxc", "qemu", "kvm"}, result.Methods())
	assert.Equal(t, DetectionErrored, result.Detections[0].State)
	assert.Contains(t, result.Detections[0].Error, "probe panicked")

	panics := logs.FilterMessage("Panic recovered in virtualization probe").All()
	require.Len(t, panics, 1)
	assert.Equal(t, "docker", panics[0].ContextMap()["method"])
}

func TestDetectFixedOrder(t *testing.T) {
	runner := allInstalled()
	d := NewDetector(runner, allActive(), zap.NewNop())

	d.Detect(context.Background())

	assert.Equal(t, []string{
		"docker --version",
		"pveversion",
		"lxc-checkconfig",
		"qemu-system-x86_64 --version",
		"kvm --version",
	}, runner.calls)
}

func TestDetectCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := allInstalled()
	d := NewDetector(runner, allActive(), zap.NewNop())

	result := d.Detect(ctx)

	assert.Empty(t, runner.calls)
	assert.Empty(t, result.Methods())
	require.Len(t, result.Detections, 5)
	for _, det := range result.Detections {
		assert.Equal(t, DetectionSkipped, det.State)
	}
}

func TestDetectionJSON(t *testing.T) {
	data, err := json.Marshal(Detection{Method: "docker", State: DetectionActive, Version: "Docker version 24"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"docker","state":"active","version":"Docker version 24"}`, string(data))
}
