//go:build !amd64

package jit

import "errors"

// NewNativeBackend returns an error: there is no native backend for this
// architecture. Use NewThreadedBackend.
func NewNativeBackend() (Backend, error) {
	return nil, errors.New("native backend is not supported on this host")
}
