//go:build !unix

package sysinfo

func kernelRelease() string {
	return ""
}
