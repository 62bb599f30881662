//go:build !linux

package probe

import "context"

// systemdBusState always fails off Linux so the checker uses systemctl
func systemdBusState(ctx context.Context, unit string) (ServiceState, error) {
	return ServiceUnknown, errBusUnavailable
}
