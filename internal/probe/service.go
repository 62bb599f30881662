package probe

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ServiceState is the answer of the host service manager for one unit
type ServiceState int

const (
	// ServiceUnknown means the service manager could not be asked
	ServiceUnknown ServiceState = iota

	// ServiceActive means the service is running
	ServiceActive

	// ServiceInactive means the service is stopped, failed or not installed
	ServiceInactive
)

func (s ServiceState) String() string {
	switch s {
	case ServiceActive:
		return "active"
	case ServiceInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// ServiceChecker asks the host service manager about a service
type ServiceChecker interface {
	State(ctx context.Context, name string) ServiceState
}

// busTimeout bounds a single D-Bus round trip
const busTimeout = 5 * time.Second

// errBusUnavailable is returned by the bus query on platforms without systemd D-Bus
var errBusUnavailable = errors.New("systemd bus not available on this platform")

// SystemdChecker queries systemd over D-Bus and falls back to
// `systemctl is-active` when the bus cannot be reached
type SystemdChecker struct {
	runner   Runner
	logger   *zap.Logger
	queryBus func(ctx context.Context, unit string) (ServiceState, error)
}

// NewSystemdChecker creates a checker that uses runner for the systemctl fallback
func NewSystemdChecker(runner Runner, logger *zap.Logger) *SystemdChecker {
	return &SystemdChecker{
		runner:   runner,
		logger:   logger,
		queryBus: systemdBusState,
	}
}

// State returns the state of the named service
func (c *SystemdChecker) State(ctx context.Context, name string) ServiceState {
	busCtx, cancel := context.WithTimeout(ctx, busTimeout)
	state, err := c.queryBus(busCtx, unitName(name))
	cancel()
	if err == nil {
		c.logger.Debug("Service state from systemd bus",
			zap.String("service", name),
			zap.Stringer("state", state))
		return state
	}

	c.logger.Debug("systemd bus query failed, falling back to systemctl",
		zap.String("service", name),
		zap.Error(err))

	return c.systemctlState(ctx, name)
}

// systemctlState runs `systemctl is-active`, which prints the unit state even
// when it exits non-zero
func (c *SystemdChecker) systemctlState(ctx context.Context, name string) ServiceState {
	res := c.runner.Run(ctx, "systemctl", "is-active", name)

	switch res.Status {
	case CommandNotFound, CommandTimedOut:
		c.logger.Debug("systemctl unavailable",
			zap.String("service", name),
			zap.Stringer("status", res.Status))
		return ServiceUnknown
	case CommandFailed:
		// No state printed: systemctl ran but could not talk to systemd
		if res.Output == "" {
			return ServiceUnknown
		}
	}

	return mapActiveState(res.Output)
}

// mapActiveState converts a systemd ActiveState to a ServiceState
func mapActiveState(activeState string) ServiceState {
	switch strings.TrimSpace(activeState) {
	case "active", "reloading":
		return ServiceActive
	case "":
		return ServiceUnknown
	default:
		// inactive, failed, activating, deactivating, unknown (no such unit)
		return ServiceInactive
	}
}

// unitName appends the .service suffix when the name has no unit type
func unitName(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return name + ".service"
}
