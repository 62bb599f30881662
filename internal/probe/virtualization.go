package probe

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"
)

// Virtualization methods reported to the inventory server
const (
	MethodDocker  = "docker"
	MethodProxmox = "proxmox"
	MethodLXC     = "lxc"
	MethodQEMU    = "qemu"
	MethodKVM     = "kvm"
)

// Probe describes how to detect one virtualization technology. Service is
// empty for technologies that have no daemon to check.
type Probe struct {
	Method  string
	Command []string
	Service string
}

// DefaultProbes is the fixed probe table, in reporting order
var DefaultProbes = []Probe{
	{Method: MethodDocker, Command: []string{"docker", "--version"}, Service: "docker"},
	{Method: MethodProxmox, Command: []string{"pveversion"}, Service: "pvedaemon"},
	{Method: MethodLXC, Command: []string{"lxc-checkconfig"}, Service: "lxc"},
	{Method: MethodQEMU, Command: []string{"qemu-system-x86_64", "--version"}},
	{Method: MethodKVM, Command: []string{"kvm", "--version"}},
}

// DetectionState is the outcome of a single probe
type DetectionState int

const (
	DetectionNotInstalled DetectionState = iota
	DetectionInstalled                   // detected, no service to check
	DetectionActive                      // detected and service active
	DetectionInactive                    // detected but service inactive
	DetectionServiceUnknown              // detected but service manager unavailable
	DetectionTimedOut                    // detection command timed out
	DetectionCommandFailed               // detection command exited non-zero
	DetectionErrored                     // probe panicked
	DetectionSkipped                     // context cancelled before the probe ran
)

var detectionStateNames = map[DetectionState]string{
	DetectionNotInstalled:   "not_installed",
	DetectionInstalled:      "installed",
	DetectionActive:         "active",
	DetectionInactive:       "inactive",
	DetectionServiceUnknown: "service_unknown",
	DetectionTimedOut:       "timed_out",
	DetectionCommandFailed:  "command_failed",
	DetectionErrored:        "errored",
	DetectionSkipped:        "skipped",
}

func (s DetectionState) String() string {
	if name, ok := detectionStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the state by name in JSON
func (s DetectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Detection is the result of probing one technology
type Detection struct {
	Method  string         `json:"method"`
	State   DetectionState `json:"state"`
	Version string         `json:"version,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Present reports whether the technology counts as in use
func (d Detection) Present() bool {
	return d.State == DetectionInstalled || d.State == DetectionActive
}

// Result holds every detection of one aggregation pass, in probe order
type Result struct {
	Detections []Detection
}

// Methods returns the present technologies in probe order. The slice is
// never nil.
func (r Result) Methods() []string {
	methods := make([]string, 0, len(r.Detections))
	for _, d := range r.Detections {
		if d.Present() {
			methods = append(methods, d.Method)
		}
	}
	return methods
}

// Detector runs the virtualization probes
type Detector struct {
	runner   Runner
	services ServiceChecker
	probes   []Probe
	logger   *zap.Logger
}

// NewDetector creates a detector for DefaultProbes
func NewDetector(runner Runner, services ServiceChecker, logger *zap.Logger) *Detector {
	return &Detector{
		runner:   runner,
		services: services,
		probes:   DefaultProbes,
		logger:   logger,
	}
}

// Detect runs every probe in order. A failing probe never prevents the
// others from running.
func (d *Detector) Detect(ctx context.Context) Result {
	result := Result{Detections: make([]Detection, 0, len(d.probes))}

	for _, p := range d.probes {
		if err := ctx.Err(); err != nil {
			result.Detections = append(result.Detections, Detection{
				Method: p.Method,
				State:  DetectionSkipped,
				Error:  err.Error(),
			})
			continue
		}
		result.Detections = append(result.Detections, d.runProbe(ctx, p))
	}

	d.logger.Debug("Virtualization detection complete",
		zap.Strings("methods", result.Methods()))

	return result
}

// runProbe isolates a single probe so a panic is recorded instead of
// aborting the aggregation
func (d *Detector) runProbe(ctx context.Context, p Probe) (det Detection) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("Panic recovered in virtualization probe",
				zap.String("method", p.Method),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
			det = Detection{
				Method: p.Method,
				State:  DetectionErrored,
				Error:  fmt.Sprintf("probe panicked: %v", r),
			}
		}
	}()

	return d.probe(ctx, p)
}

func (d *Detector) probe(ctx context.Context, p Probe) Detection {
	det := Detection{Method: p.Method}
	log := d.logger.With(zap.String("method", p.Method))

	log.Debug("Checking virtualization method")

	res := d.runner.Run(ctx, p.Command[0], p.Command[1:]...)
	switch res.Status {
	case CommandNotFound:
		det.State = DetectionNotInstalled
		log.Debug("Not installed")
		return det
	case CommandTimedOut:
		det.State = DetectionTimedOut
		log.Debug("Detection command timed out")
		return det
	case CommandFailed:
		det.State = DetectionCommandFailed
		if res.Err != nil {
			det.Error = res.Err.Error()
		}
		log.Debug("Detection command failed", zap.Int("exit_code", res.ExitCode))
		return det
	}

	if res.Output == "" {
		det.State = DetectionNotInstalled
		log.Debug("Detection command produced no output")
		return det
	}

	det.Version = firstLine(res.Output)
	log.Debug("Installed", zap.String("version", det.Version))

	if p.Service == "" {
		det.State = DetectionInstalled
		return det
	}

	switch state := d.services.State(ctx, p.Service); state {
	case ServiceActive:
		det.State = DetectionActive
	case ServiceInactive:
		det.State = DetectionInactive
	default:
		det.State = DetectionServiceUnknown
	}
	log.Debug("Service checked",
		zap.String("service", p.Service),
		zap.Stringer("state", det.State))

	return det
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
