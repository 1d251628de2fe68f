//go:build !amd64

package armature

const NativeSupported = false
