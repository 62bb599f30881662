//go:build unix

package sysinfo

import (
	"golang.org/x/sys/unix"
)

// kernelRelease returns the uname release, or "" if uname fails
func kernelRelease() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return ""
	}
	return unix.ByteSliceToString(uts.Release[:])
}
