//go:build linux

package probe

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/dbus"
)

// systemdBusState reads the unit's ActiveState and LoadState from systemd
func systemdBusState(ctx context.Context, unit string) (ServiceState, error) {
	conn, err := dbus.NewWithContext(ctx)
	if err != nil {
		return ServiceUnknown, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	defer conn.Close()

	props, err := conn.GetUnitPropertiesContext(ctx, unit)
	if err != nil {
		return ServiceUnknown, fmt.Errorf("failed to get unit properties: %w", err)
	}

	if load, _ := props["LoadState"].(string); load == "not-found" {
		return ServiceInactive, nil
	}

	active, ok := props["ActiveState"].(string)
	if !ok {
		return ServiceUnknown, fmt.Errorf("unit %s has no ActiveState", unit)
	}

	return mapActiveState(active), nil
}
