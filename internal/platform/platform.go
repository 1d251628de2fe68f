// Package platform includes runtime-specific code needed by the native JIT
// backend: mapping generated code into executable memory.
package platform

import (
	"errors"
	"runtime"
)

// CompilerSupported returns true if the native backend can run on this host.
func CompilerSupported() bool {
	return runtime.GOARCH == "amd64" && mmapSupported
}

// MmapCodeSegment copies the code into a new executable region and returns the
// byte slice of the region. The region is mapped writable, filled, then made
// read-execute: it is never writable and executable at the same time.
//
// See https://man7.org/linux/man-pages/man2/mmap.2.html for mmap API and flags.
func MmapCodeSegment(code []byte) ([]byte, error) {
	if len(code) == 0 {
		panic(errors.New("BUG: MmapCodeSegment with zero length"))
	}
	return mmapCodeSegment(code)
}

// MunmapCodeSegment unmaps the given memory region.
func MunmapCodeSegment(code []byte) error {
	if len(code) == 0 {
		panic(errors.New("BUG: MunmapCodeSegment with zero length"))
	}
	return munmapCodeSegment(code)
}
