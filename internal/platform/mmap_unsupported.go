//go:build !unix

package platform

import (
	"fmt"
	"runtime"
)

const mmapSupported = false

var errUnsupported = fmt.Errorf("mmap unsupported on GOOS=%s. Use the threaded backend instead.", runtime.GOOS)

func mmapCodeSegment([]byte) ([]byte, error) {
	return nil, errUnsupported
}

func munmapCodeSegment([]byte) error {
	return errUnsupported
}
